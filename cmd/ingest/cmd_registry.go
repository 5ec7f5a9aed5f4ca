// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/invowk/ingest/internal/config"
	"github.com/invowk/ingest/internal/issue"
	"github.com/invowk/ingest/internal/registry"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

// readmeNames are the files rendered by `registry show`, in lookup order.
var readmeNames = []string{"README.md", "readme.md", "Readme.md", "README.markdown"}

// newRegistryCommand creates the `ingest registry` command tree.
func newRegistryCommand(app *App) *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and edit the installed module registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	registryCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed modules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistrar(cmd.Context(), app, func(cfg *config.Config, reg *registry.Registrar) error {
				return listModules(cmd.Context(), app, reg)
			})
		},
	})

	registryCmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show an installed module and its README",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistrar(cmd.Context(), app, func(cfg *config.Config, reg *registry.Registrar) error {
				return showModule(cmd.Context(), app, cfg, reg, args[0])
			})
		},
	})

	registryCmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a module from the registry (installed files are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistrar(cmd.Context(), app, func(cfg *config.Config, reg *registry.Registrar) error {
				if err := reg.Remove(cmd.Context(), args[0]); err != nil {
					return registryFailure(err)
				}
				fmt.Fprintf(app.stdout, "%s Removed %s from %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(args[0]), reg.Location())
				return nil
			})
		},
	})

	return registryCmd
}

// withRegistrar opens the configured registry for the duration of fn.
func withRegistrar(ctx context.Context, app *App, fn func(cfg *config.Config, reg *registry.Registrar) error) (err error) {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		return err
	}
	logger, closeLog, err := app.newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	reg, err := app.openRegistrar(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := reg.Close(); closeErr != nil && err == nil {
			err = taskFailed(closeErr)
		}
	}()

	return fn(cfg, reg)
}

// registryFailure maps registry errors to exit errors.
func registryFailure(err error) error {
	if errors.Is(err, registry.ErrNotFound) {
		return taskFailed(withIssue(err, issue.ModuleNotFoundId))
	}
	return taskFailed(withIssue(err, issue.RegistryWriteFailedId))
}

func listModules(ctx context.Context, app *App, reg *registry.Registrar) error {
	mods, err := reg.List(ctx)
	if err != nil {
		return registryFailure(err)
	}
	if len(mods) == 0 {
		fmt.Fprintln(app.stdout, SubtitleStyle.Render("No modules installed."))
		return nil
	}

	rows := make([][]string, 0, len(mods))
	for _, m := range mods {
		rows = append(rows, []string{
			m.Name,
			m.Type.String(),
			m.Version,
			m.Path,
			m.InstalledAt.Local().Format(time.DateTime),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtitleStyle).
		Headers("NAME", "TYPE", "VERSION", "PATH", "INSTALLED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle.Padding(0, 1)
			}
			if col == 0 {
				return CmdStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	fmt.Fprintln(app.stdout, t.String())
	fmt.Fprintf(app.stdout, "%s\n", SubtitleStyle.Render(fmt.Sprintf("%d module(s) in %s", len(mods), reg.Location())))
	return nil
}

func showModule(ctx context.Context, app *App, cfg *config.Config, reg *registry.Registrar, name string) error {
	mod, err := reg.Get(ctx, name)
	if err != nil {
		return registryFailure(err)
	}

	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(app.stdout, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-13s", label+":")), value)
	}

	fmt.Fprintln(app.stdout, TitleStyle.Render(mod.Name))
	field("id", mod.ID)
	field("type", mod.Type.String())
	field("version", mod.Version)
	field("path", mod.Path)
	field("installed", mod.InstalledAt.Local().Format(time.RFC3339))
	field("archive", mod.Archive)
	field("dependencies", strings.Join(mod.Dependencies, ", "))

	md := moduleMarkdown(cfg.ResolvePath(mod.Path), mod)
	if md == "" {
		return nil
	}
	rendered, err := glamour.Render(md, "dark")
	if err != nil {
		fmt.Fprintln(app.stdout)
		fmt.Fprintln(app.stdout, md)
		return nil
	}
	fmt.Fprint(app.stdout, rendered)
	return nil
}

// moduleMarkdown returns the module's README, or its description when it has
// none.
func moduleMarkdown(dir string, mod registry.InstalledModule) string {
	for _, name := range readmeNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil && len(strings.TrimSpace(string(data))) > 0 {
			return string(data)
		}
	}
	if mod.Description != "" {
		return "# " + mod.Name + "\n\n" + mod.Description + "\n"
	}
	return ""
}
