// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/invowk/ingest/internal/watch"
)

const (
	defaultConcurrency    = 4
	defaultRestartBackoff = 2 * time.Second
)

type (
	// ArchiveWatcher is the part of watch.Watcher the Runner uses.
	ArchiveWatcher interface {
		Run(ctx context.Context) error
	}

	// RunnerOptions configures a Runner.
	RunnerOptions struct {
		Pipeline *Pipeline
		Dirs     []string
		// Matcher nil uses the watch package defaults.
		Matcher *watch.Matcher
		// Concurrency bounds the tasks processed at once.
		Concurrency    int
		Debounce       time.Duration
		RestartBackoff time.Duration
		// NewWatcher defaults to watch.New.
		NewWatcher func(cfg watch.Config) (ArchiveWatcher, error)
		// OnOutcome is called after each task, from the task's goroutine.
		OnOutcome func(*Outcome)
		Logger    *slog.Logger
	}

	// Runner feeds discovered archives to a Pipeline.
	Runner struct {
		opts    RunnerOptions
		matcher *watch.Matcher
		logger  *slog.Logger
		stats   Stats

		mu       sync.Mutex
		inFlight map[string]struct{}
		// failed remembers archives whose task failed, so an unchanged file
		// is not retried every time the directory is swept.
		failed map[string]fileKey
	}

	fileKey struct {
		size    int64
		modTime time.Time
	}
)

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("pipeline: runner needs a pipeline")
	}
	if len(opts.Dirs) == 0 {
		return nil, errors.New("pipeline: no intake directories")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.RestartBackoff <= 0 {
		opts.RestartBackoff = defaultRestartBackoff
	}
	if opts.NewWatcher == nil {
		opts.NewWatcher = func(cfg watch.Config) (ArchiveWatcher, error) { return watch.New(cfg) }
	}
	matcher := opts.Matcher
	if matcher == nil {
		var err error
		if matcher, err = watch.NewMatcher(nil, nil); err != nil {
			return nil, err
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		opts:     opts,
		matcher:  matcher,
		logger:   logger,
		inFlight: make(map[string]struct{}),
		failed:   make(map[string]fileKey),
	}, nil
}

// Stats returns the outcomes recorded so far.
func (r *Runner) Stats() Summary { return r.stats.Snapshot() }

// RunOnce processes every archive currently in the intake directories and
// returns when all tasks are terminal. The error reports only a failure to
// list the directories; task failures are in the summary.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	events, err := watch.Scan(r.opts.Dirs, r.matcher)
	if err != nil {
		return r.Stats(), err
	}
	r.logger.Debug("intake scanned", "archives", len(events))

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for _, ev := range events {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			r.process(ctx, ev)
			return nil
		})
	}
	_ = g.Wait() // tasks report through Stats, never through the group
	return r.Stats(), ctx.Err()
}

// Watch sweeps the intake directories, then processes archives as they
// arrive until ctx is cancelled. A watcher that fails is recreated after the
// restart backoff, followed by a fresh sweep. Watch returns nil on
// cancellation once in-flight tasks have finished, or the error from the
// first watcher construction.
func (r *Runner) Watch(ctx context.Context) error {
	sem := semaphore.NewWeighted(int64(r.opts.Concurrency))
	var tasks sync.WaitGroup
	defer tasks.Wait()

	dispatch := func(ctx context.Context, ev watch.Event) {
		if !r.claim(ev) {
			return
		}
		tasks.Add(1)
		go func() {
			defer tasks.Done()
			defer r.release(ev.Path)
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer sem.Release(1)
			r.process(ctx, ev)
		}()
	}

	cfg := watch.Config{
		Dirs:      r.opts.Dirs,
		Matcher:   r.matcher,
		Debounce:  r.opts.Debounce,
		OnArchive: dispatch,
		Logger:    r.logger,
	}

	for attempt := 0; ; attempt++ {
		w, err := r.opts.NewWatcher(cfg)
		switch {
		case err != nil && attempt == 0:
			return err
		case err != nil:
			r.logger.Error("watcher could not be recreated", "error", err)
		default:
			r.sweep(ctx, dispatch)
			r.logger.Info("watching intake directories", "dirs", r.opts.Dirs)
			err = w.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("watcher stopped", "error", err, "restart_in", r.opts.RestartBackoff)
		}

		timer := time.NewTimer(r.opts.RestartBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (r *Runner) sweep(ctx context.Context, dispatch func(context.Context, watch.Event)) {
	events, err := watch.Scan(r.opts.Dirs, r.matcher)
	if err != nil {
		r.logger.Error("sweep intake directories", "error", err)
		return
	}
	for _, ev := range events {
		dispatch(ctx, ev)
	}
}

// claim marks ev in flight. It refuses archives already being processed and
// unchanged archives whose last task failed.
func (r *Runner) claim(ev watch.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[ev.Path]; busy {
		return false
	}
	if key, ok := r.failed[ev.Path]; ok && key.size == ev.Size && key.modTime.Equal(ev.ModTime) {
		r.logger.Debug("skipping archive that already failed", "path", ev.Path)
		return false
	}
	r.inFlight[ev.Path] = struct{}{}
	return true
}

func (r *Runner) release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, path)
}

func (r *Runner) process(ctx context.Context, ev watch.Event) *Outcome {
	out := r.opts.Pipeline.Process(ctx, NewTask(ev.Path, ev.DiscoveredAt))

	r.mu.Lock()
	if out.Succeeded() {
		delete(r.failed, ev.Path)
	} else {
		r.failed[ev.Path] = fileKey{size: ev.Size, modTime: ev.ModTime}
	}
	r.mu.Unlock()

	r.stats.Record(out)
	if r.opts.OnOutcome != nil {
		r.opts.OnOutcome(out)
	}
	return out
}
