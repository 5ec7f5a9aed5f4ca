// SPDX-License-Identifier: MPL-2.0

// Package logging builds the process logger: human-readable output on
// stderr and, optionally, a JSON audit log in a file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	slogmulti "github.com/samber/slog-multi"
)

// Prefix is printed before every console line.
const Prefix = "ingest"

// Options configures New.
type Options struct {
	// Console receives human-readable output. nil means os.Stderr.
	Console io.Writer
	// Verbose lowers the level from info to debug.
	Verbose bool
	// File, when set, receives every record as JSON lines (appended).
	File string
}

// New returns a logger and a function that closes the log file, if any.
func New(opts Options) (*slog.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	level := slog.LevelInfo
	charmLevel := log.InfoLevel
	if opts.Verbose {
		level = slog.LevelDebug
		charmLevel = log.DebugLevel
	}

	consoleHandler := log.NewWithOptions(console, log.Options{
		Prefix:          Prefix,
		Level:           charmLevel,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})

	if opts.File == "" {
		return slog.New(consoleHandler), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return NewWithWriters(consoleHandler, f, level), f.Close, nil
}

// NewWithWriters fans records out to console and a JSON handler on file.
func NewWithWriters(console slog.Handler, file io.Writer, level slog.Level) *slog.Logger {
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(console, fileHandler))
}
