// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/invowk/ingest/internal/issue"
	"github.com/invowk/ingest/pkg/types"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlags holds the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	verbose    bool
	logFile    string
}

// NewRootCommand builds the ingest command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Classify and install module archives",
		Long: TitleStyle.Render("ingest") + SubtitleStyle.Render(" - Classify and install module archives") + `

ingest watches intake directories for ZIP archives, extracts each one,
decides which kind of module it contains and installs it into the matching
project directory. Every installed module is recorded in a registry.

` + SubtitleStyle.Render("Examples:") + `
  ingest watch                   Process archives as they arrive
  ingest run-once incoming/      Process what is there now and exit
  ingest install widget.zip      Install a single archive
  ingest registry list           Show installed modules
  ingest config show             Show the effective configuration`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&app.flags.configPath, "config", "", "config file (default is ./ingest.cue or $HOME/.config/ingest/config.cue)")
	rootCmd.PersistentFlags().BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&app.flags.logFile, "log-file", "", "append JSON log records to this file")

	rootCmd.AddCommand(
		newWatchCommand(app),
		newRunOnceCommand(app),
		newInstallCommand(app),
		newRegistryCommand(app),
		newConfigCommand(app),
		newPackCommand(app),
	)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits the process. It is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		os.Exit(int(types.ExitConfigError))
	}

	err = fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			renderError(w, err, app.flags.verbose)
		}),
	)
	os.Exit(int(exitCodeFor(err)))
}

// exitCodeFor maps a command error to the process exit code. Handlers report
// task and configuration failures through ExitError; any other error comes
// from flag or argument parsing and counts as a configuration error.
func exitCodeFor(err error) types.ExitCode {
	if err == nil {
		return types.ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return types.ExitConfigError
}

// renderError prints err and, for service errors, the matching issue
// catalog entry. An ExitError without a cause prints nothing: the command
// already reported its outcome.
func renderError(w io.Writer, err error, verbose bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err == nil {
			return
		}
		err = exitErr.Err
	}

	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		svcErr.writeHelp(w)
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
