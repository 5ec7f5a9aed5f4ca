// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// newWatchCommand creates the `ingest watch` command.
func newWatchCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dirs...]",
		Short: "Process archives as they arrive in the intake directories",
		Long: `Process archives as they arrive in the intake directories.

The archives already present are processed first. The command then waits
for new archives until interrupted. Directories given as arguments replace
the configured intake_dirs; missing directories are created.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), app, args)
		},
	}
}

func runWatch(ctx context.Context, app *App, dirs []string) error {
	s, err := app.buildStack(ctx, stackOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			s.logger.Warn("failed to close registry", "error", closeErr)
		}
	}()

	printer := &outcomePrinter{w: app.stdout}
	runner, err := s.newRunner(dirs, printer.print)
	if err != nil {
		return err
	}

	if err := runner.Watch(ctx); err != nil {
		return configError(err)
	}

	summary := runner.Stats()
	renderSummary(app.stdout, summary)
	if code := summary.ExitCode(); !code.IsSuccess() {
		return &ExitError{Code: code}
	}
	return nil
}
