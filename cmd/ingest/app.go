// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/invowk/ingest/internal/archive"
	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/internal/config"
	"github.com/invowk/ingest/internal/install"
	"github.com/invowk/ingest/internal/issue"
	"github.com/invowk/ingest/internal/logging"
	"github.com/invowk/ingest/internal/pipeline"
	"github.com/invowk/ingest/internal/registry"
	"github.com/invowk/ingest/internal/watch"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every command handler receives an App and builds
	// the pipeline through it.
	App struct {
		Config     config.Provider
		HTTPClient *http.Client
		stdout     io.Writer
		stderr     io.Writer
		flags      rootFlags
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config config.Provider
		// HTTPClient is used for catalog notifications. Nil means a client
		// with the catalog default timeout.
		HTTPClient *http.Client
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// stack is the pipeline built from one loaded configuration.
	stack struct {
		cfg       *config.Config
		logger    *slog.Logger
		pipeline  *pipeline.Pipeline
		registrar *registry.Registrar
		closeLog  func() error
	}

	stackOptions struct {
		// dryRun stops tasks after classification and leaves the registry closed.
		dryRun bool
		// keepArchive leaves completed archives where they are.
		keepArchive bool
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}

	return &App{
		Config:     deps.Config,
		HTTPClient: deps.HTTPClient,
		stdout:     deps.Stdout,
		stderr:     deps.Stderr,
	}, nil
}

// loadConfig loads the configuration and applies the persistent flags.
// Failures are configuration errors.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.flags.configPath})
	if err != nil {
		return nil, configError(withIssue(err, issue.ConfigLoadFailedId))
	}
	if a.flags.verbose {
		cfg.UI.Verbose = true
	}
	if a.flags.logFile != "" {
		cfg.LogFile = a.flags.logFile
	}
	return cfg, nil
}

// newLogger builds the process logger for cfg.
func (a *App) newLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	logger, closeLog, err := logging.New(logging.Options{
		Console: a.stderr,
		Verbose: cfg.UI.Verbose,
		File:    cfg.ResolvePath(cfg.LogFile),
	})
	if err != nil {
		return nil, nil, configError(err)
	}
	return logger, closeLog, nil
}

// openRegistrar opens the configured registry store and, when a catalog URL
// is configured, the catalog client.
func (a *App) openRegistrar(cfg *config.Config, logger *slog.Logger) (*registry.Registrar, error) {
	store, err := registry.Open(cfg.Registry.Backend, cfg.ResolvePath(cfg.Registry.Path))
	if err != nil {
		return nil, configError(withIssue(err, issue.RegistryWriteFailedId))
	}

	var catalog *registry.CatalogClient
	if cfg.Registry.CatalogURL != "" {
		catalog = registry.NewCatalogClient(cfg.Registry.CatalogURL, a.HTTPClient)
	}

	reg, err := registry.New(registry.Options{
		Store:   store,
		Catalog: catalog,
		Logger:  logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, configError(err)
	}
	return reg, nil
}

// buildStack loads the configuration and wires extractor, classifier,
// installer and registrar into a pipeline. The caller must Close the stack.
func (a *App) buildStack(ctx context.Context, opts stackOptions) (_ *stack, err error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := a.newLogger(cfg)
	if err != nil {
		return nil, err
	}
	s := &stack{cfg: cfg, logger: logger, closeLog: closeLog}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	projectRoot, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, configError(fmt.Errorf("resolve project root: %w", err))
	}

	installer, err := install.New(install.Options{
		ProjectRoot:  projectRoot,
		CategoryDirs: cfg.CategoryDirs(),
		Logger:       logger,
	})
	if err != nil {
		return nil, configError(err)
	}

	// A nil *Registrar must not reach the pipeline as a non-nil interface.
	var registrar pipeline.Registrar
	if !opts.dryRun {
		if s.registrar, err = a.openRegistrar(cfg, logger); err != nil {
			return nil, err
		}
		registrar = s.registrar
	}

	processedDir := cfg.ResolvePath(cfg.ProcessedDir)
	if opts.keepArchive {
		processedDir = ""
	}

	s.pipeline, err = pipeline.New(pipeline.Options{
		Extractor: archive.NewExtractor(archive.Options{
			ScratchRoot: cfg.ResolvePath(cfg.ScratchDir),
			Logger:      logger,
		}),
		Classifier: classify.New(classify.Options{
			Keywords:   cfg.Keywords,
			Frameworks: cfg.Frameworks,
			Logger:     logger,
		}),
		Installer:    installer,
		Registrar:    registrar,
		ProcessedDir: processedDir,
		TaskTimeout:  cfg.Pipeline.TaskTimeout,
		DryRun:       opts.dryRun,
		Logger:       logger,
	})
	if err != nil {
		return nil, configError(err)
	}

	return s, nil
}

// newRunner builds a Runner over dirs, or the configured intake directories
// when dirs is empty.
func (s *stack) newRunner(dirs []string, onOutcome func(*pipeline.Outcome)) (*pipeline.Runner, error) {
	if len(dirs) == 0 {
		dirs = s.cfg.ResolvedIntakeDirs()
	}
	matcher, err := watch.NewMatcher(s.cfg.ArchivePatterns, nil)
	if err != nil {
		return nil, configError(err)
	}
	runner, err := pipeline.NewRunner(pipeline.RunnerOptions{
		Pipeline:       s.pipeline,
		Dirs:           dirs,
		Matcher:        matcher,
		Concurrency:    s.cfg.Pipeline.Concurrency,
		Debounce:       s.cfg.Watch.Debounce,
		RestartBackoff: s.cfg.Watch.RestartBackoff,
		OnOutcome:      onOutcome,
		Logger:         s.logger,
	})
	if err != nil {
		return nil, configError(err)
	}
	return runner, nil
}

// Close releases the registry and the log file.
func (s *stack) Close() error {
	var errs []error
	if s.registrar != nil {
		errs = append(errs, s.registrar.Close())
	}
	if s.closeLog != nil {
		errs = append(errs, s.closeLog())
	}
	return errors.Join(errs...)
}
