// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/invowk/ingest/internal/config"
	"github.com/invowk/ingest/internal/issue"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `ingest config` command tree.
// Subcommands that read configuration use the App's config.Provider.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage ingest configuration",
		Long: `Manage ingest configuration.

Configuration is read from the first file found:
  - the --config flag
  - ./ingest.cue in the current directory
  - Linux: ~/.config/ingest/config.cue
  - macOS: ~/Library/Application Support/ingest/config.cue
  - Windows: %APPDATA%\ingest\config.cue

Environment variables prefixed with INGEST_ override file values
(INGEST_PIPELINE_CONCURRENCY=8).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	var global bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(app, global)
		},
	}
	initCmd.Flags().BoolVar(&global, "global", false, "write to the user config directory instead of ./ingest.cue")
	cfgCmd.AddCommand(initCmd)

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath(cmd.Context(), app)
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, source, err := app.Config.Resolve(ctx, config.LoadOptions{ConfigFilePath: app.flags.configPath})
	if err != nil {
		return configError(withIssue(err, issue.ConfigLoadFailedId))
	}

	if source == "" {
		source = "(defaults)"
	}
	fmt.Fprintf(app.stdout, "// source: %s\n", source)
	fmt.Fprint(app.stdout, config.GenerateCUE(cfg))
	return nil
}

func initConfig(app *App, global bool) error {
	path := config.ProjectConfigFile
	if global {
		cfgDir, err := config.ConfigDir()
		if err != nil {
			return configError(err)
		}
		path = filepath.Join(cfgDir, config.ConfigFileName+"."+config.ConfigFileExt)
	}

	created, err := config.CreateDefaultConfig(path)
	if err != nil {
		return configError(err)
	}
	if !created {
		fmt.Fprintf(app.stdout, "%s %s already exists, left unchanged\n", WarningStyle.Render("!"), path)
		return nil
	}

	fmt.Fprintf(app.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

func showConfigPath(ctx context.Context, app *App) error {
	_, source, err := app.Config.Resolve(ctx, config.LoadOptions{ConfigFilePath: app.flags.configPath})
	if err != nil {
		return configError(withIssue(err, issue.ConfigLoadFailedId))
	}

	cfgDir, err := config.ConfigDir()
	if err == nil {
		fmt.Fprintf(app.stdout, "%s %s\n", labelStyle.Render("Config directory:"), cfgDir)
	}
	if source == "" {
		fmt.Fprintf(app.stdout, "%s %s\n", labelStyle.Render("Config file:"), SubtitleStyle.Render("(none, using defaults)"))
		return nil
	}
	fmt.Fprintf(app.stdout, "%s %s\n", labelStyle.Render("Config file:"), source)
	return nil
}
