// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/invowk/ingest/internal/testutil"
	"github.com/invowk/ingest/internal/watch"
	"github.com/invowk/ingest/pkg/types"
)

func newTestRunner(t *testing.T, h *harness, adjust func(*RunnerOptions)) *Runner {
	t.Helper()
	opts := RunnerOptions{
		Pipeline:       h.pipeline,
		Dirs:           []string{h.intake},
		Concurrency:    2,
		Debounce:       50 * time.Millisecond,
		RestartBackoff: 10 * time.Millisecond,
		Logger:         testutil.DiscardLogger(),
	}
	if adjust != nil {
		adjust(&opts)
	}
	r, err := NewRunner(opts)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return r
}

func TestRunner_RunOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.zip(t, "widget-admin.zip", map[string]string{"config.json": `{"name": "widget", "type": "admin"}`})
	h.zip(t, "my-service-phase-3.zip", map[string]string{"server.js": "app.get('/x', h)"})
	h.zip(t, "assistant-ai.zip", map[string]string{"main.py": "print('hi')"})
	h.zip(t, "mystery.zip", map[string]string{"blob.bin": "\x00\x01"})
	testutil.MustWriteFile(t, filepath.Join(h.intake, "broken.zip"), "not a zip", time.Time{})
	testutil.MustWriteFile(t, filepath.Join(h.intake, "notes.txt"), "ignored", time.Time{})

	var outcomes atomic.Int32
	r := newTestRunner(t, h, func(o *RunnerOptions) {
		o.OnOutcome = func(*Outcome) { outcomes.Add(1) }
	})

	sum, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if sum.Processed != 5 || sum.Completed != 3 || sum.Failed != 2 || sum.Ambiguous != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
	if sum.FailedAt[StageExtracting] != 1 || sum.FailedAt[StageClassifying] != 1 {
		t.Errorf("FailedAt = %v", sum.FailedAt)
	}
	if sum.ExitCode() != types.ExitTaskFailed {
		t.Errorf("ExitCode() = %d, want 1", sum.ExitCode())
	}
	if outcomes.Load() != 5 {
		t.Errorf("OnOutcome called %d times", outcomes.Load())
	}
	if sum.Stages[StageExtracting].Count != 5 {
		t.Errorf("extracting timing count = %d", sum.Stages[StageExtracting].Count)
	}

	assertExists(t, filepath.Join(h.root, "ai-services", "assistant-ai", "main.py"))
	assertExists(t, filepath.Join(h.intake, "mystery.zip"))
	assertExists(t, filepath.Join(h.intake, "broken.zip"))
	assertExists(t, filepath.Join(h.intake, "notes.txt"))
	if mods := h.registered(t); len(mods) != 3 {
		t.Errorf("expected 3 registry entries, got %d", len(mods))
	}
}

func TestRunner_RunOnceAllSucceed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.zip(t, "widget-admin.zip", map[string]string{"index.js": "x"})

	sum, err := newTestRunner(t, h, nil).RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.ExitCode() != types.ExitSuccess || sum.Completed != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestRunner_RunOnceEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	sum, err := newTestRunner(t, h, nil).RunOnce(context.Background())
	if err != nil || sum.Processed != 0 || sum.ExitCode() != types.ExitSuccess {
		t.Errorf("RunOnce() on empty intake = %+v, %v", sum, err)
	}
}

func TestRunner_Watch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	// Present before the watcher starts: picked up by the initial sweep.
	h.zip(t, "early-admin.zip", map[string]string{"index.js": "early"})

	done := make(chan *Outcome, 4)
	r := newTestRunner(t, h, func(o *RunnerOptions) {
		o.OnOutcome = func(out *Outcome) { done <- out }
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Watch(ctx) }()

	waitOutcome := func() *Outcome {
		t.Helper()
		select {
		case out := <-done:
			return out
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a task")
			return nil
		}
	}

	if out := waitOutcome(); out.Task.FileName != "early-admin.zip" || !out.Succeeded() {
		t.Fatalf("sweep outcome = %s %v", out.Task.FileName, out.Task.Err)
	}

	// Build the archive elsewhere and move it in, as an upload would.
	staged := testutil.WriteZipFiles(t, filepath.Join(h.root, "staging", "late-admin.zip"), map[string]string{"index.js": "late"})
	if err := os.Rename(staged, filepath.Join(h.intake, "late-admin.zip")); err != nil {
		t.Fatal(err)
	}
	if out := waitOutcome(); out.Task.FileName != "late-admin.zip" || !out.Succeeded() {
		t.Fatalf("watched outcome = %s %v", out.Task.FileName, out.Task.Err)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}

	assertExists(t, filepath.Join(h.root, "admin", "late-admin", "index.js"))
	if sum := r.Stats(); sum.Completed != 2 {
		t.Errorf("Completed = %d, want 2", sum.Completed)
	}
}

type fakeWatcher struct {
	run func(ctx context.Context) error
}

func (f fakeWatcher) Run(ctx context.Context) error { return f.run(ctx) }

func TestRunner_WatchRestartsFailedWatcher(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	var (
		mu      sync.Mutex
		created int
	)
	running := make(chan struct{})
	r := newTestRunner(t, h, func(o *RunnerOptions) {
		o.NewWatcher = func(watch.Config) (ArchiveWatcher, error) {
			mu.Lock()
			defer mu.Unlock()
			created++
			if created == 1 {
				return fakeWatcher{run: func(context.Context) error {
					return watch.ErrWatcherFailed
				}}, nil
			}
			return fakeWatcher{run: func(ctx context.Context) error {
				close(running)
				<-ctx.Done()
				return nil
			}}, nil
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Watch(ctx) }()

	select {
	case <-running:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher was not restarted")
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if created != 2 {
		t.Errorf("watchers created = %d, want 2", created)
	}
}

func TestRunner_WatchFirstConstructionError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	boom := errors.New("no inotify")
	r := newTestRunner(t, h, func(o *RunnerOptions) {
		o.NewWatcher = func(watch.Config) (ArchiveWatcher, error) { return nil, boom }
	})
	if err := r.Watch(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Watch() error = %v, want %v", err, boom)
	}
}

func TestRunner_ClaimSkipsInFlightAndFailed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	r := newTestRunner(t, h, nil)

	ev := watch.Event{Path: filepath.Join(h.intake, "a.zip"), Size: 10, ModTime: testutil.FixtureTime}
	if !r.claim(ev) {
		t.Fatal("first claim refused")
	}
	if r.claim(ev) {
		t.Error("in-flight archive claimed twice")
	}
	r.release(ev.Path)

	r.failed[ev.Path] = fileKey{size: ev.Size, modTime: ev.ModTime}
	if r.claim(ev) {
		t.Error("unchanged failed archive claimed again")
	}
	changed := ev
	changed.Size = 11
	if !r.claim(changed) {
		t.Error("modified failed archive not retried")
	}
}

func TestNewRunner_Validation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	if _, err := NewRunner(RunnerOptions{Dirs: []string{h.intake}}); err == nil {
		t.Error("expected error without pipeline")
	}
	if _, err := NewRunner(RunnerOptions{Pipeline: h.pipeline}); err == nil {
		t.Error("expected error without directories")
	}
}
