// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/invowk/ingest/internal/archive"
	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/internal/install"
	"github.com/invowk/ingest/internal/registry"
	"github.com/invowk/ingest/pkg/types"
)

type (
	// Extractor unpacks an archive into private scratch space.
	Extractor interface {
		Extract(ctx context.Context, src string) (*archive.ExtractionResult, error)
	}

	// Classifier decides the category of an extracted module.
	Classifier interface {
		Classify(res *archive.ExtractionResult) (classify.Result, error)
	}

	// Installer places an extracted module in its category directory.
	Installer interface {
		Install(ctx context.Context, res *archive.ExtractionResult, cls classify.Result) (*install.Result, error)
	}

	// Registrar records installed modules.
	Registrar interface {
		Register(ctx context.Context, name types.ModuleName, cat classify.Category, path string, fields registry.Fields) (registry.InstalledModule, error)
	}

	// Options configures a Pipeline.
	Options struct {
		Extractor  Extractor
		Classifier Classifier
		Installer  Installer
		// Registrar is optional; without it the registering stage is skipped.
		Registrar Registrar
		// ProcessedDir receives archives of completed tasks. Empty leaves
		// archives in place.
		ProcessedDir string
		// TaskTimeout bounds each task. Zero disables the limit.
		TaskTimeout time.Duration
		// DryRun stops every task after classification.
		DryRun bool
		// Now defaults to time.Now.
		Now    func() time.Time
		Logger *slog.Logger
	}

	// Pipeline processes archive tasks. It holds no per-task state and is
	// safe for concurrent use.
	Pipeline struct {
		opts   Options
		now    func() time.Time
		logger *slog.Logger
	}

	// Outcome is the result of processing one task.
	Outcome struct {
		Task           *ArchiveTask
		Classification classify.Result
		Install        *install.Result
		// Module is the registry entry; zero when registration was skipped
		// or failed.
		Module registry.InstalledModule
		// ProcessedPath is where the archive was moved, if it was.
		ProcessedPath string
		// Warnings are failures that did not fail the task, such as
		// registry writes and archive moves.
		Warnings []error
		// Durations records the time spent in each stage that ran.
		Durations map[Stage]time.Duration
		Elapsed   time.Duration
		DryRun    bool
	}

	// ProcessOption adjusts a single Process call.
	ProcessOption func(*processOptions)

	processOptions struct {
		category classify.Category
	}
)

// WithCategory skips classification and installs under cat.
func WithCategory(cat classify.Category) ProcessOption {
	return func(o *processOptions) { o.category = cat }
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Extractor == nil || opts.Classifier == nil || opts.Installer == nil {
		return nil, errors.New("pipeline: extractor, classifier and installer are required")
	}
	p := &Pipeline{opts: opts, now: opts.Now, logger: opts.Logger}
	if p.now == nil {
		p.now = time.Now
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Succeeded reports whether the task completed.
func (o *Outcome) Succeeded() bool { return o.Task.Stage == StageCompleted }

// Ambiguous reports whether the task failed because no rule classified it.
func (o *Outcome) Ambiguous() bool { return errors.Is(o.Task.Err, classify.ErrAmbiguous) }

// TimedOut reports whether the task exceeded its time limit.
func (o *Outcome) TimedOut() bool { return errors.Is(o.Task.Err, ErrTaskTimeout) }

// Process runs task to a terminal stage. Failures are recorded on the task
// and logged with the archive name, stage and cause; Process never panics on
// a task error and never deletes the archive. The scratch directory is
// removed before Process returns.
func (p *Pipeline) Process(ctx context.Context, task *ArchiveTask, opts ...ProcessOption) *Outcome {
	var po processOptions
	for _, opt := range opts {
		opt(&po)
	}

	out := &Outcome{Task: task, Durations: make(map[Stage]time.Duration), DryRun: p.opts.DryRun}
	start := p.now()
	defer func() { out.Elapsed = p.now().Sub(start) }()

	taskCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.opts.TaskTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, p.opts.TaskTimeout)
	}
	defer cancel()

	logger := p.logger.With("task", task.ID, "archive", task.FileName)

	// run executes one stage. A stage that returns after the deadline has
	// passed fails with a TimeoutError even if it reported success, unless
	// the stage commits changes outside scratch: a committed install stands.
	run := func(stage Stage, commits bool, fn func() error) bool {
		if err := task.advance(stage); err != nil {
			p.failTask(logger, task, err)
			return false
		}
		stageStart := p.now()
		err := fn()
		out.Durations[stage] += p.now().Sub(stageStart)

		if commits && err == nil {
			return true
		}
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = &TimeoutError{Archive: task.FileName, Stage: stage, Timeout: p.opts.TaskTimeout, Err: err}
		}
		if err != nil {
			p.failTask(logger, task, err)
			return false
		}
		return true
	}

	var res *archive.ExtractionResult
	ok := run(StageExtracting, false, func() error {
		var err error
		res, err = p.opts.Extractor.Extract(taskCtx, task.SourcePath)
		return err
	})
	if res != nil {
		defer func() {
			if err := res.Cleanup(); err != nil {
				logger.Warn("remove scratch directory", "path", res.ScratchDir, "error", err)
			}
		}()
	}
	if !ok {
		return out
	}

	if !run(StageClassifying, false, func() error {
		if po.category != "" {
			if valid, errs := po.category.IsValid(); !valid {
				return errs[0]
			}
			out.Classification = classify.Override(po.category)
			return nil
		}
		var err error
		out.Classification, err = p.opts.Classifier.Classify(res)
		return err
	}) {
		return out
	}

	if p.opts.DryRun {
		p.complete(logger, task, out)
		return out
	}

	if !run(StageInstalling, true, func() error {
		var err error
		out.Install, err = p.opts.Installer.Install(taskCtx, res, out.Classification)
		return err
	}) {
		return out
	}

	if p.opts.Registrar != nil {
		if err := task.advance(StageRegistering); err != nil {
			p.failTask(logger, task, err)
			return out
		}
		// The module is on disk; registering it is bounded by the caller's
		// context only, so an expired task deadline cannot orphan it.
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("task deadline passed after install", "stage", StageInstalling, "timeout", p.opts.TaskTimeout)
		}
		stageStart := p.now()
		mod, err := p.opts.Registrar.Register(ctx, out.Install.Module, out.Classification.Category, out.Install.RelPath, fieldsOf(res, task))
		out.Durations[StageRegistering] += p.now().Sub(stageStart)
		if err != nil {
			// The files are in place; a registry failure does not undo that.
			out.Warnings = append(out.Warnings, err)
			logger.Warn("registry write failed", "stage", StageRegistering, "module", out.Install.Module, "error", err)
		}
		out.Module = mod
	}

	p.complete(logger, task, out)

	if p.opts.ProcessedDir != "" {
		dst, err := MoveToProcessed(task.SourcePath, p.opts.ProcessedDir, p.now())
		out.ProcessedPath = dst
		if err != nil {
			out.Warnings = append(out.Warnings, err)
			logger.Warn("move archive to processed directory", "error", err)
		}
	}
	return out
}

func (p *Pipeline) complete(logger *slog.Logger, task *ArchiveTask, out *Outcome) {
	if err := task.advance(StageCompleted); err != nil {
		p.failTask(logger, task, err)
		return
	}
	attrs := []any{"category", out.Classification.Category, "rule", out.Classification.Rule}
	if out.Install != nil {
		attrs = append(attrs, "module", out.Install.Module, "path", out.Install.RelPath, "changed", out.Install.Changed)
	}
	if out.DryRun {
		logger.Info("archive classified (dry run)", attrs...)
		return
	}
	logger.Info("archive ingested", attrs...)
}

// failTask records err on the task and logs it. Ambiguous archives are a
// warning: they wait for manual placement.
func (p *Pipeline) failTask(logger *slog.Logger, task *ArchiveTask, err error) {
	stage := task.Stage
	task.fail(err)
	if errors.Is(err, classify.ErrAmbiguous) {
		logger.Warn("archive left for manual placement", "stage", stage, "error", err)
		return
	}
	logger.Error("archive task failed", "stage", stage, "error", err)
}

// fieldsOf collects the registry fields from the module manifest, falling
// back to package metadata.
func fieldsOf(res *archive.ExtractionResult, task *ArchiveTask) registry.Fields {
	f := registry.Fields{Archive: task.FileName}
	if m := res.Manifest; m != nil {
		f.Version = m.Version
		f.Description = m.Description
		f.Dependencies = []string(m.Dependencies)
	}
	if pkg := res.Package; pkg != nil {
		if f.Version == "" {
			f.Version = pkg.Version
		}
		if f.Description == "" {
			f.Description = pkg.Description
		}
		if len(f.Dependencies) == 0 {
			f.Dependencies = pkg.Dependencies
		}
	}
	return f
}
