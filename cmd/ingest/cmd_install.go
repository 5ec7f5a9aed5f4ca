// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/internal/issue"
	"github.com/invowk/ingest/internal/pipeline"

	"github.com/spf13/cobra"
)

// newInstallCommand creates the `ingest install` command.
func newInstallCommand(app *App) *cobra.Command {
	var (
		category string
		keep     bool
	)

	installCmd := &cobra.Command{
		Use:   "install <archive>",
		Short: "Install a single archive",
		Long: `Install a single archive without watching any directory.

--category skips classification and installs under the given category.
Valid categories: admin, service, system, ai, agent, config, contract,
script, test, doc.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return installArchive(cmd.Context(), app, args[0], category, keep)
		},
	}

	installCmd.Flags().StringVarP(&category, "category", "c", "", "install under this category instead of classifying")
	installCmd.Flags().BoolVar(&keep, "keep", false, "leave the archive in place instead of moving it to processed_dir")

	return installCmd
}

func installArchive(ctx context.Context, app *App, path, category string, keep bool) error {
	var opts []pipeline.ProcessOption
	if category != "" {
		cat, err := classify.ParseCategory(category)
		if err != nil {
			return configError(err)
		}
		opts = append(opts, pipeline.WithCategory(cat))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return configError(err)
	}
	info, err := os.Stat(absPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return taskFailed(withIssue(fmt.Errorf("archive not found: %s", path), issue.ArchiveNotFoundId))
	case err != nil:
		return taskFailed(withIssue(err, issueFor(err)))
	case info.IsDir():
		return taskFailed(withIssue(fmt.Errorf("%s is a directory, not an archive", path), issue.ArchiveNotFoundId))
	}

	s, err := app.buildStack(ctx, stackOptions{keepArchive: keep})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			s.logger.Warn("failed to close registry", "error", closeErr)
		}
	}()

	out := s.pipeline.Process(ctx, pipeline.NewTask(absPath, time.Now()), opts...)
	renderOutcome(app.stdout, out)
	if !out.Succeeded() {
		return taskFailed(withIssue(out.Task.Err, issueFor(out.Task.Err)))
	}
	return nil
}
