// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce is the quiet period after the last event on a path before
// the archive is reported. Copies into an intake directory produce a Create
// followed by several Write events.
const defaultDebounce = 500 * time.Millisecond

// ErrWatcherFailed is wrapped by errors that end Run because the underlying
// notification mechanism is unusable (resource exhaustion, closed channels).
var ErrWatcherFailed = errors.New("watcher failed")

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Dirs are the intake directories. Missing ones are created.
		Dirs []string

		// Matcher selects archive files. nil uses DefaultPatterns.
		Matcher *Matcher

		// Debounce is the per-path quiet period. Zero or negative values fall
		// back to defaultDebounce.
		Debounce time.Duration

		// OnArchive is called once per settled archive. It runs on a timer
		// goroutine and should hand work off rather than block. A nil
		// callback is a no-op.
		OnArchive func(ctx context.Context, ev Event)

		Logger *slog.Logger
	}

	// Watcher reports archives written into intake directories. Run must be
	// called exactly once; a Watcher is not reusable after Run returns.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		dirs     []string
		matcher  *Matcher
		debounce time.Duration
		logger   *slog.Logger
		started  atomic.Bool
	}

	pendingTimer struct {
		timer *time.Timer
	}
)

// New creates the intake directories and registers them with fsnotify.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Dirs) == 0 {
		return nil, errors.New("watch: no directories to watch")
	}
	dirs, err := EnsureDirs(cfg.Dirs)
	if err != nil {
		return nil, err
	}

	matcher := cfg.Matcher
	if matcher == nil {
		if matcher, err = NewMatcher(nil, nil); err != nil {
			return nil, err
		}
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			if closeErr := fsw.Close(); closeErr != nil {
				logger.Warn("close watcher after init failure", "error", closeErr)
			}
			if isFatalWatchError(err) {
				return nil, fmt.Errorf("watch: add %s: %w: %w", dir, ErrWatcherFailed, err)
			}
			return nil, fmt.Errorf("watch: add %s: %w", dir, err)
		}
	}

	return &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		dirs:     dirs,
		matcher:  matcher,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Dirs returns the absolute intake directories.
func (w *Watcher) Dirs() []string {
	out := make([]string, len(w.dirs))
	copy(out, w.dirs)
	return out
}

// Run blocks until ctx is cancelled, reporting settled archives through
// OnArchive. It returns nil on cancellation and an error wrapping
// ErrWatcherFailed when the watcher can no longer deliver events. Pending
// timers are stopped and running callbacks are waited for before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]*pendingTimer)
		wg      sync.WaitGroup
		stopped bool
	)

	fire := func(path string, self *pendingTimer) {
		defer wg.Done()
		mu.Lock()
		if pending[path] == self {
			delete(pending, path)
		}
		mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		ev, ok := statEvent(path, time.Now())
		if !ok {
			return
		}
		w.logger.Debug("archive settled", "path", path, "size", ev.Size)
		if w.cfg.OnArchive != nil {
			w.cfg.OnArchive(ctx, ev)
		}
	}

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		if p, ok := pending[path]; ok && p.timer.Stop() {
			p.timer.Reset(w.debounce)
			return
		}
		// No timer, or it already fired and the callback owns the old entry.
		p := &pendingTimer{}
		wg.Add(1)
		p.timer = time.AfterFunc(w.debounce, func() { fire(path, p) })
		pending[path] = p
	}

	cancelPending := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if p, ok := pending[path]; ok && p.timer.Stop() {
			delete(pending, path)
			wg.Done()
		}
	}

	defer func() {
		mu.Lock()
		stopped = true
		for path, p := range pending {
			if p.timer.Stop() {
				delete(pending, path)
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
		if closeErr := w.fsw.Close(); closeErr != nil {
			w.logger.Warn("close fsnotify watcher", "error", closeErr)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("watch: %w: event channel closed", ErrWatcherFailed)
			}
			if !w.matcher.Match(filepath.Base(evt.Name)) {
				continue
			}
			switch {
			case evt.Has(fsnotify.Create), evt.Has(fsnotify.Write):
				schedule(evt.Name)
			case evt.Has(fsnotify.Remove), evt.Has(fsnotify.Rename):
				cancelPending(evt.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("watch: %w: error channel closed", ErrWatcherFailed)
			}
			// Resource exhaustion leaves the watcher deaf; everything else
			// (such as a queue overflow) is survivable.
			if isFatalWatchError(err) {
				return fmt.Errorf("watch: %w: %w", ErrWatcherFailed, err)
			}
			w.logger.Warn("fsnotify error", "error", err)
		}
	}
}
