// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/invowk/ingest/internal/archive"

	"github.com/spf13/cobra"
)

// newPackCommand creates the `ingest pack` command.
func newPackCommand(app *App) *cobra.Command {
	var opts archive.PackOptions

	packCmd := &cobra.Command{
		Use:   "pack <dir>",
		Short: "Create a ZIP archive from a module directory",
		Long: `Create a ZIP archive from a module directory.

The archive is written under a temporary name and renamed into place, so it
can be created directly inside a watched intake directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := archive.Pack(args[0], opts)
			if err != nil {
				return taskFailed(err)
			}
			fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	}

	packCmd.Flags().StringVarP(&opts.Output, "output", "o", "", "archive path (default <dir name>.zip)")
	packCmd.Flags().BoolVar(&opts.IncludeRoot, "include-root", false, "store entries under the directory's own name")

	return packCmd
}
