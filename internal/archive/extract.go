// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/invowk/ingest/internal/manifest"
)

// DefaultMaxBytes caps the total uncompressed size of one archive (1GB).
const DefaultMaxBytes int64 = 1 << 30

// junkPrefixes are archive entries produced by OS archivers that never
// belong to a module.
var junkPrefixes = []string{"__MACOSX/"}

type (
	// Options configures an Extractor.
	Options struct {
		// ScratchRoot is the parent of per-archive scratch directories.
		// Empty means os.TempDir().
		ScratchRoot string
		// MaxBytes caps the total extracted size. Zero means DefaultMaxBytes.
		MaxBytes int64
		// Logger receives warnings about skipped entries and bad manifests.
		Logger *slog.Logger
	}

	// Extractor unpacks archives into fresh scratch directories. It holds no
	// per-archive state and is safe for concurrent use.
	Extractor struct {
		scratchRoot string
		maxBytes    int64
		logger      *slog.Logger
	}
)

// NewExtractor creates an Extractor.
func NewExtractor(opts Options) *Extractor {
	e := &Extractor{
		scratchRoot: opts.ScratchRoot,
		maxBytes:    opts.MaxBytes,
		logger:      opts.Logger,
	}
	if e.maxBytes <= 0 {
		e.maxBytes = DefaultMaxBytes
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Extract unpacks the archive at src into a new scratch directory and reads
// its manifests. On failure the scratch directory is removed and an
// *ExtractionError is returned.
func (e *Extractor) Extract(ctx context.Context, src string) (*ExtractionResult, error) {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return nil, &ExtractionError{Archive: src, Err: err}
	}

	if e.scratchRoot != "" {
		if err := os.MkdirAll(e.scratchRoot, 0o755); err != nil {
			return nil, &ExtractionError{Archive: absSrc, Err: fmt.Errorf("create scratch root: %w", err)}
		}
	}
	scratch, err := os.MkdirTemp(e.scratchRoot, "ingest-*")
	if err != nil {
		return nil, &ExtractionError{Archive: absSrc, Err: fmt.Errorf("create scratch directory: %w", err)}
	}

	res := &ExtractionResult{ArchivePath: absSrc, ScratchDir: scratch, Root: scratch}
	if err := e.extractInto(ctx, absSrc, scratch, res); err != nil {
		_ = res.Cleanup() // best-effort; the extraction error is what matters
		return nil, err
	}
	if err := e.inspect(res); err != nil {
		_ = res.Cleanup()
		return nil, &ExtractionError{Archive: absSrc, Err: err}
	}

	e.logger.Debug("archive extracted",
		"archive", filepath.Base(absSrc),
		"scratch", scratch,
		"files", res.Files,
		"bytes", res.Bytes,
	)
	return res, nil
}

// ExtractTo unpacks the archive at src into dest, creating it if needed.
// Files already present in dest are overwritten, so repeating the call on the
// same archive succeeds.
func (e *Extractor) ExtractTo(ctx context.Context, src, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &ExtractionError{Archive: src, Err: err}
	}
	return e.extractInto(ctx, src, dest, &ExtractionResult{})
}

func (e *Extractor) extractInto(ctx context.Context, src, dest string, res *ExtractionResult) (err error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		if errors.Is(err, zip.ErrInsecurePath) {
			err = fmt.Errorf("%w: %w", ErrUnsafePath, err)
			if zr != nil {
				_ = zr.Close()
			}
		}
		return &ExtractionError{Archive: src, Err: err}
	}
	defer func() {
		if closeErr := zr.Close(); closeErr != nil && err == nil {
			err = &ExtractionError{Archive: src, Err: closeErr}
		}
	}()

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return &ExtractionError{Archive: src, Err: err}
	}

	remaining := e.maxBytes
	for _, file := range zr.File {
		if err := ctx.Err(); err != nil {
			return &ExtractionError{Archive: src, Err: err}
		}

		name := strings.ReplaceAll(file.Name, `\`, "/")
		if isJunk(name) {
			continue
		}

		destPath, err := safeJoin(absDest, name)
		if err != nil {
			return &ExtractionError{Archive: src, Entry: file.Name, Err: err}
		}
		if destPath == absDest {
			continue
		}

		mode := file.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return &ExtractionError{Archive: src, Entry: file.Name, Err: err}
			}
			continue
		case mode&fs.ModeSymlink != 0:
			e.logger.Warn("skipping symlink entry", "archive", filepath.Base(src), "entry", file.Name)
			continue
		case !mode.IsRegular():
			e.logger.Warn("skipping special entry", "archive", filepath.Base(src), "entry", file.Name, "mode", mode.String())
			continue
		}

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return &ExtractionError{Archive: src, Entry: file.Name, Err: err}
		}

		n, err := extractFile(file, destPath, remaining)
		if err != nil {
			return &ExtractionError{Archive: src, Entry: file.Name, Err: err}
		}
		remaining -= n
		res.Files++
		res.Bytes += n
	}

	return nil
}

// safeJoin resolves an entry name under dest, rejecting absolute names and
// names that climb out of dest.
func safeJoin(dest, name string) (string, error) {
	if path.IsAbs(name) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: absolute path", ErrUnsafePath)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: parent directory reference", ErrUnsafePath)
		}
	}

	destPath := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, destPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return destPath, nil
}

func isJunk(name string) bool {
	for _, p := range junkPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return path.Base(name) == ".DS_Store"
}

// extractFile writes a single entry to destPath, restoring its modification
// time. It returns the number of bytes written.
func extractFile(file *zip.File, destPath string, limit int64) (n int64, err error) {
	rc, err := file.Open()
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	// Replace rather than truncate: a previous run may have left a read-only file.
	if rmErr := os.Remove(destPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		return 0, rmErr
	}

	perm := file.Mode().Perm() | 0o600
	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return 0, err
	}
	defer func() {
		if closeErr := destFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if err == nil && !file.Modified.IsZero() {
			err = os.Chtimes(destPath, file.Modified, file.Modified)
		}
	}()

	n, err = io.CopyN(destFile, rc, limit+1)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	if n > limit {
		return n, ErrTooLarge
	}
	return n, nil
}

// inspect fills the layout and manifest fields of res from the scratch tree.
func (e *Extractor) inspect(res *ExtractionResult) error {
	entries, err := os.ReadDir(res.ScratchDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		res.TopLevelEntries = append(res.TopLevelEntries, entry.Name())
	}
	if len(entries) == 1 && entries[0].IsDir() {
		res.WrapperDir = entries[0].Name()
		res.Root = filepath.Join(res.ScratchDir, res.WrapperDir)
	}

	archiveName := filepath.Base(res.ArchivePath)
	if m, err := manifest.Find(res.Root); err != nil {
		e.logger.Warn("ignoring unreadable manifest", "archive", archiveName, "error", err)
	} else {
		res.Manifest = m
	}
	if pkg, err := manifest.FindPackage(res.Root); err != nil {
		e.logger.Warn("ignoring unreadable package manifest", "archive", archiveName, "error", err)
	} else {
		res.Package = pkg
	}
	return nil
}
