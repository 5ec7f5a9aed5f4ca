// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

// newRunOnceCommand creates the `ingest run-once` command.
func newRunOnceCommand(app *App) *cobra.Command {
	var dryRun bool

	runOnceCmd := &cobra.Command{
		Use:   "run-once [dirs...]",
		Short: "Process the archives present now and exit",
		Long: `Process every archive currently in the intake directories and exit.

The exit status is 0 when every archive was installed, 1 when at least one
failed (including archives whose category could not be decided) and 2 when
the configuration is unusable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), app, args, dryRun)
		},
	}

	runOnceCmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify archives without installing or moving them")

	return runOnceCmd
}

func runOnce(ctx context.Context, app *App, dirs []string, dryRun bool) error {
	s, err := app.buildStack(ctx, stackOptions{dryRun: dryRun})
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

	summary, err := runner.RunOnce(ctx)
	renderSummary(app.stdout, summary)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return taskFailed(err)
	case err != nil:
		return configError(err)
	}

	if code := summary.ExitCode(); !code.IsSuccess() {
		return &ExitError{Code: code}
	}
	return nil
}
