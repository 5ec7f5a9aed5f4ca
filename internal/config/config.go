// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/internal/issue"
	"github.com/invowk/ingest/pkg/cueutil"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "ingest"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// ProjectConfigFile is the project-local config file looked up in the
	// working directory before the user config directory.
	ProjectConfigFile = "ingest.cue"
	// EnvPrefix prefixes environment overrides (INGEST_PIPELINE_CONCURRENCY=8).
	EnvPrefix = "INGEST"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the ingest configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state. It returns the config and the file it came from
// ("" when only defaults and environment were used).
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	// An explicit --config path is used exclusively and must exist.
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'ingest config init' to write a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		candidates := []string{ProjectConfigFile}
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}
		candidates = append(candidates, filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt))
		for _, c := range candidates {
			if fileExists(c) {
				resolvedPath = c
				break
			}
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				WithSuggestion("Run 'ingest config show' to see the effective defaults").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if ok, errs := cfg.IsValid(); !ok {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Every category needs a non-empty directory").
			WithSuggestion("pipeline.concurrency must be at least 1 and pipeline.task_timeout positive").
			Wrap(errors.Join(errs...)).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// setDefaults registers every key with its default so environment overrides
// and partial config files resolve against the full key set.
func setDefaults(v *viper.Viper) {
	defaults := DefaultConfig()
	v.SetDefault("project_root", defaults.ProjectRoot)
	v.SetDefault("intake_dirs", defaults.IntakeDirs)
	v.SetDefault("processed_dir", defaults.ProcessedDir)
	v.SetDefault("scratch_dir", defaults.ScratchDir)
	v.SetDefault("archive_patterns", defaults.ArchivePatterns)
	for cat, dir := range defaults.Categories {
		v.SetDefault("categories."+cat.String(), dir)
	}
	v.SetDefault("keywords", keywordMaps(defaults.Keywords))
	v.SetDefault("frameworks.server", defaults.Frameworks.Server)
	v.SetDefault("frameworks.ui", defaults.Frameworks.UI)
	v.SetDefault("registry.backend", defaults.Registry.Backend)
	v.SetDefault("registry.path", defaults.Registry.Path)
	v.SetDefault("registry.catalog_url", defaults.Registry.CatalogURL)
	v.SetDefault("pipeline.concurrency", defaults.Pipeline.Concurrency)
	v.SetDefault("pipeline.task_timeout", defaults.Pipeline.TaskTimeout)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)
	v.SetDefault("watch.restart_backoff", defaults.Watch.RestartBackoff)
	v.SetDefault("log_file", defaults.LogFile)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
}

func keywordMaps(rules []classify.KeywordRule) []map[string]any {
	out := make([]map[string]any, len(rules))
	for i, r := range rules {
		out[i] = map[string]any{"keyword": r.Keyword, "category": string(r.Category), "token": r.Token}
	}
	return out
}

// configDirWithOverride resolves the configuration directory, honoring
// explicit provider options before platform defaults.
func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}

	return ConfigDir()
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// Config fields are optional, so the file is validated with Concrete(false)
// and decoded into a map that Viper merges over its defaults.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to path. An existing
// file is left untouched and reported through the returned bool.
func CreateDefaultConfig(path string) (created bool, err error) {
	if fileExists(path) {
		return false, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}

	return true, nil
}

// GenerateCUE generates a CUE representation of the configuration
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// ingest configuration file\n\n")

	fmt.Fprintf(&sb, "project_root: %q\n", cfg.ProjectRoot)
	fmt.Fprintf(&sb, "intake_dirs: %s\n", cueStringList(cfg.IntakeDirs))
	fmt.Fprintf(&sb, "processed_dir: %q\n", cfg.ProcessedDir)
	if cfg.ScratchDir != "" {
		fmt.Fprintf(&sb, "scratch_dir: %q\n", cfg.ScratchDir)
	}
	fmt.Fprintf(&sb, "archive_patterns: %s\n", cueStringList(cfg.ArchivePatterns))
	if cfg.LogFile != "" {
		fmt.Fprintf(&sb, "log_file: %q\n", cfg.LogFile)
	}

	// Categories in declaration order, then any extras sorted.
	sb.WriteString("\ncategories: {\n")
	written := make(map[classify.Category]bool, len(cfg.Categories))
	for _, cat := range classify.Categories() {
		if dir, ok := cfg.Categories[cat]; ok {
			fmt.Fprintf(&sb, "\t%s: %q\n", cueLabel(cat.String()), dir)
			written[cat] = true
		}
	}
	var extras []string
	for cat := range cfg.Categories {
		if !written[cat] {
			extras = append(extras, cat.String())
		}
	}
	slices.Sort(extras)
	for _, cat := range extras {
		fmt.Fprintf(&sb, "\t%s: %q\n", cueLabel(cat), cfg.Categories[classify.Category(cat)])
	}
	sb.WriteString("}\n")

	sb.WriteString("\nkeywords: [\n")
	for _, rule := range cfg.Keywords {
		if rule.Token {
			fmt.Fprintf(&sb, "\t{keyword: %q, category: %q, token: true},\n", rule.Keyword, rule.Category)
		} else {
			fmt.Fprintf(&sb, "\t{keyword: %q, category: %q},\n", rule.Keyword, rule.Category)
		}
	}
	sb.WriteString("]\n")

	sb.WriteString("\nframeworks: {\n")
	fmt.Fprintf(&sb, "\tserver: %s\n", cueStringList(cfg.Frameworks.Server))
	fmt.Fprintf(&sb, "\tui: %s\n", cueStringList(cfg.Frameworks.UI))
	sb.WriteString("}\n")

	sb.WriteString("\nregistry: {\n")
	fmt.Fprintf(&sb, "\tbackend: %q\n", cfg.Registry.Backend)
	fmt.Fprintf(&sb, "\tpath: %q\n", cfg.Registry.Path)
	if cfg.Registry.CatalogURL != "" {
		fmt.Fprintf(&sb, "\tcatalog_url: %q\n", cfg.Registry.CatalogURL)
	}
	sb.WriteString("}\n")

	sb.WriteString("\npipeline: {\n")
	fmt.Fprintf(&sb, "\tconcurrency: %d\n", cfg.Pipeline.Concurrency)
	fmt.Fprintf(&sb, "\ttask_timeout: %q\n", cfg.Pipeline.TaskTimeout.String())
	sb.WriteString("}\n")

	sb.WriteString("\nwatch: {\n")
	fmt.Fprintf(&sb, "\tdebounce: %q\n", cfg.Watch.Debounce.String())
	fmt.Fprintf(&sb, "\trestart_backoff: %q\n", cfg.Watch.RestartBackoff.String())
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

func cueStringList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// cueLabel quotes labels that are not valid CUE identifiers.
func cueLabel(s string) string {
	for i, r := range s {
		isLetter := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isLetter && (i == 0 || r < '0' || r > '9') {
			return fmt.Sprintf("%q", s)
		}
	}
	return s
}
