// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/invowk/ingest/internal/classify"

	"github.com/bmatcuk/doublestar/v4"
)

const (
	// RegistryBackendJSON stores the registry as a single JSON document.
	RegistryBackendJSON RegistryBackend = "json"
	// RegistryBackendSQLite stores the registry in an embedded SQLite database.
	RegistryBackendSQLite RegistryBackend = "sqlite"
)

var (
	// ErrInvalidRegistryBackend is returned when a RegistryBackend value is not recognized.
	ErrInvalidRegistryBackend = errors.New("invalid registry backend")
	// ErrInvalidPipelineConfig is the sentinel error wrapped by InvalidPipelineConfigError.
	ErrInvalidPipelineConfig = errors.New("invalid pipeline config")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// RegistryBackend selects the registry storage implementation.
	RegistryBackend string

	// InvalidRegistryBackendError is returned when a RegistryBackend value is not recognized.
	// It wraps ErrInvalidRegistryBackend for errors.Is() compatibility.
	InvalidRegistryBackendError struct {
		Value RegistryBackend
	}

	// InvalidPipelineConfigError is returned when a PipelineConfig has invalid fields.
	InvalidPipelineConfigError struct {
		FieldErrors []error
	}

	// InvalidConfigError is returned when a Config has invalid fields.
	// It wraps ErrInvalidConfig for errors.Is() compatibility and collects
	// field-level validation errors from all sub-components.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the application configuration.
	Config struct {
		// ProjectRoot is the directory category directories are resolved against.
		ProjectRoot string `json:"project_root" mapstructure:"project_root"`
		// IntakeDirs are the directories scanned and watched for archives.
		IntakeDirs []string `json:"intake_dirs" mapstructure:"intake_dirs"`
		// ProcessedDir receives archives after a successful install.
		ProcessedDir string `json:"processed_dir" mapstructure:"processed_dir"`
		// ScratchDir is the parent of per-task extraction directories.
		// Empty means the system temp directory.
		ScratchDir string `json:"scratch_dir" mapstructure:"scratch_dir"`
		// ArchivePatterns are doublestar patterns matched against file names.
		ArchivePatterns []string `json:"archive_patterns" mapstructure:"archive_patterns"`
		// Categories maps each category to its installation directory.
		Categories map[classify.Category]string `json:"categories" mapstructure:"categories"`
		// Keywords is the ordered keyword classification table.
		Keywords []classify.KeywordRule `json:"keywords" mapstructure:"keywords"`
		// Frameworks holds the dependency names used by the package rule.
		Frameworks classify.Frameworks `json:"frameworks" mapstructure:"frameworks"`
		// Registry configures where installed modules are recorded.
		Registry RegistryConfig `json:"registry" mapstructure:"registry"`
		// Pipeline configures task execution.
		Pipeline PipelineConfig `json:"pipeline" mapstructure:"pipeline"`
		// Watch configures the filesystem watcher.
		Watch WatchConfig `json:"watch" mapstructure:"watch"`
		// LogFile, when set, receives a JSON copy of every log record.
		LogFile string `json:"log_file" mapstructure:"log_file"`
		// UI configures the user interface.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// RegistryConfig configures the registry store.
	RegistryConfig struct {
		Backend RegistryBackend `json:"backend" mapstructure:"backend"`
		// Path is the registry file, relative to ProjectRoot unless absolute.
		Path string `json:"path" mapstructure:"path"`
		// CatalogURL is an optional external catalog notified after each register.
		CatalogURL string `json:"catalog_url" mapstructure:"catalog_url"`
	}

	// PipelineConfig configures task execution.
	PipelineConfig struct {
		// Concurrency bounds the number of archives processed at once.
		Concurrency int `json:"concurrency" mapstructure:"concurrency"`
		// TaskTimeout bounds the wall-clock time of a single archive task.
		TaskTimeout time.Duration `json:"task_timeout" mapstructure:"task_timeout"`
	}

	// WatchConfig configures the filesystem watcher.
	WatchConfig struct {
		// Debounce is the quiet period after the last event for a path.
		Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
		// RestartBackoff is the delay before restarting a failed watcher.
		RestartBackoff time.Duration `json:"restart_backoff" mapstructure:"restart_backoff"`
	}

	// UIConfig configures the user interface.
	UIConfig struct {
		// Verbose enables debug logging
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}
)

// String returns the string representation of the RegistryBackend.
func (b RegistryBackend) String() string { return string(b) }

// IsValid returns whether the RegistryBackend is one of the defined backends.
func (b RegistryBackend) IsValid() (bool, []error) {
	switch b {
	case RegistryBackendJSON, RegistryBackendSQLite:
		return true, nil
	default:
		return false, []error{&InvalidRegistryBackendError{Value: b}}
	}
}

// Error implements the error interface for InvalidRegistryBackendError.
func (e *InvalidRegistryBackendError) Error() string {
	return fmt.Sprintf("invalid registry backend %q (valid: json, sqlite)", e.Value)
}

// Unwrap returns ErrInvalidRegistryBackend for errors.Is() compatibility.
func (e *InvalidRegistryBackendError) Unwrap() error { return ErrInvalidRegistryBackend }

// IsValid returns whether the PipelineConfig has usable limits.
func (c PipelineConfig) IsValid() (bool, []error) {
	var errs []error
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.task_timeout must be positive, got %s", c.TaskTimeout))
	}
	if len(errs) > 0 {
		return false, []error{&InvalidPipelineConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidPipelineConfigError.
func (e *InvalidPipelineConfigError) Error() string {
	return fmt.Sprintf("invalid pipeline config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidPipelineConfig for errors.Is() compatibility.
func (e *InvalidPipelineConfigError) Unwrap() error { return ErrInvalidPipelineConfig }

// IsValid returns whether the Config has valid fields. It checks every
// category key and directory, every keyword rule, the archive patterns, the
// registry backend and the pipeline limits.
func (c *Config) IsValid() (bool, []error) {
	var errs []error
	if len(c.IntakeDirs) == 0 {
		errs = append(errs, errors.New("intake_dirs must list at least one directory"))
	}
	if strings.TrimSpace(c.ProcessedDir) == "" {
		errs = append(errs, errors.New("processed_dir must not be empty"))
	}
	for _, p := range c.ArchivePatterns {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("archive_patterns: invalid pattern %q", p))
		}
	}
	for cat, dir := range c.Categories {
		if ok, fieldErrs := cat.IsValid(); !ok {
			errs = append(errs, fieldErrs...)
		}
		if strings.TrimSpace(dir) == "" {
			errs = append(errs, fmt.Errorf("categories.%s: directory must not be empty", cat))
		}
	}
	for _, cat := range classify.Categories() {
		if _, ok := c.Categories[cat]; !ok {
			errs = append(errs, fmt.Errorf("categories: missing directory for %q", cat))
		}
	}
	for _, rule := range c.Keywords {
		if ok, fieldErrs := rule.IsValid(); !ok {
			errs = append(errs, fieldErrs...)
		}
	}
	if ok, fieldErrs := c.Registry.Backend.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if ok, fieldErrs := c.Pipeline.IsValid(); !ok {
		errs = append(errs, fieldErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// Error implements the error interface for InvalidConfigError.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// ResolvePath resolves p against ProjectRoot unless it is already absolute.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	root := c.ProjectRoot
	if root == "" {
		root = "."
	}
	if abs, err := filepath.Abs(filepath.Join(root, p)); err == nil {
		return abs
	}
	return filepath.Join(root, p)
}

// CategoryDirs returns the category directory map resolved against ProjectRoot.
func (c *Config) CategoryDirs() map[classify.Category]string {
	dirs := make(map[classify.Category]string, len(c.Categories))
	for cat, dir := range c.Categories {
		dirs[cat] = c.ResolvePath(dir)
	}
	return dirs
}

// ResolvedIntakeDirs returns IntakeDirs resolved against ProjectRoot.
func (c *Config) ResolvedIntakeDirs() []string {
	dirs := make([]string, len(c.IntakeDirs))
	for i, d := range c.IntakeDirs {
		dirs[i] = c.ResolvePath(d)
	}
	return dirs
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ProjectRoot:     ".",
		IntakeDirs:      []string{"incoming"},
		ProcessedDir:    "processed",
		ArchivePatterns: []string{"*.zip"},
		Categories: map[classify.Category]string{
			classify.CategoryAdmin:    "admin",
			classify.CategoryService:  "services",
			classify.CategorySystem:   "system",
			classify.CategoryAI:       "ai-services",
			classify.CategoryAgent:    "agents",
			classify.CategoryConfig:   "config",
			classify.CategoryContract: "contracts",
			classify.CategoryScript:   "scripts",
			classify.CategoryTest:     "tests",
			classify.CategoryDoc:      "docs",
		},
		Keywords:   classify.DefaultKeywords(),
		Frameworks: classify.DefaultFrameworks(),
		Registry: RegistryConfig{
			Backend: RegistryBackendJSON,
			Path:    ".ingest/registry.json",
		},
		Pipeline: PipelineConfig{
			Concurrency: 4,
			TaskTimeout: 5 * time.Minute,
		},
		Watch: WatchConfig{
			Debounce:       500 * time.Millisecond,
			RestartBackoff: 2 * time.Second,
		},
	}
}
