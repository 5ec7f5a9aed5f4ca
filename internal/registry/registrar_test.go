// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/internal/testutil"
	"github.com/invowk/ingest/pkg/types"
)

func newTestRegistrar(t *testing.T, opts Options) *Registrar {
	t.Helper()
	if opts.Store == nil {
		opts.Store = NewJSONStore(filepath.Join(t.TempDir(), "registry.json"))
	}
	if opts.Logger == nil {
		opts.Logger = testutil.DiscardLogger()
	}
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func sequentialIDs() func() string {
	var n atomic.Int32
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func TestRegistrar_Register(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(installedAt)
	r := newTestRegistrar(t, Options{Now: clock.Now, NewID: sequentialIDs()})
	ctx := context.Background()

	mod, err := r.Register(ctx, "widget", classify.CategoryAdmin, "admin/widget", Fields{Version: "1.0.0", Archive: "widget-admin.zip"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	want := InstalledModule{
		ID:          "id-1",
		Name:        "widget",
		Type:        classify.CategoryAdmin,
		Path:        "admin/widget",
		Version:     "1.0.0",
		InstalledAt: installedAt,
		Archive:     "widget-admin.zip",
	}
	if diff := cmp.Diff(want, mod); diff != "" {
		t.Errorf("Register() mismatch (-want +got):\n%s", diff)
	}

	clock.Advance(time.Hour)
	again, err := r.Register(ctx, "widget", classify.CategoryAdmin, "admin/widget", Fields{Version: "1.1.0"})
	if err != nil {
		t.Fatalf("second Register() error = %v", err)
	}
	if again.ID != "id-1" {
		t.Errorf("re-register changed ID to %q", again.ID)
	}
	if !again.InstalledAt.Equal(installedAt.Add(time.Hour)) {
		t.Errorf("InstalledAt = %v", again.InstalledAt)
	}

	mods, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(mods) != 1 || mods[0].Version != "1.1.0" {
		t.Errorf("expected a single updated entry, got %+v", mods)
	}
}

func TestRegistrar_ConcurrentRegistersAreNotLost(t *testing.T) {
	t.Parallel()

	r := newTestRegistrar(t, Options{})
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := types.ModuleName(fmt.Sprintf("mod-%02d", i))
			if _, err := r.Register(ctx, name, classify.CategoryService, "services/"+string(name), Fields{}); err != nil {
				t.Errorf("Register(%s) error = %v", name, err)
			}
		}()
	}
	wg.Wait()

	mods, err := r.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(mods) != n {
		t.Errorf("expected %d entries, got %d", n, len(mods))
	}
	ids := make(map[string]bool)
	for _, m := range mods {
		if ids[m.ID] {
			t.Errorf("duplicate ID %s", m.ID)
		}
		ids[m.ID] = true
	}
}

func TestRegistrar_GetAndRemove(t *testing.T) {
	t.Parallel()

	r := newTestRegistrar(t, Options{})
	ctx := context.Background()

	if _, err := r.Get(ctx, "widget"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() on empty registry error = %v", err)
	}
	if _, err := r.Register(ctx, "widget", classify.CategoryAdmin, "admin/widget", Fields{}); err != nil {
		t.Fatal(err)
	}
	if mod, err := r.Get(ctx, "widget"); err != nil || mod.Path != "admin/widget" {
		t.Errorf("Get() = %+v, %v", mod, err)
	}
	if err := r.Remove(ctx, "widget"); err != nil {
		t.Errorf("Remove() error = %v", err)
	}
	if err := r.Remove(ctx, "widget"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove() error = %v", err)
	}
}

func TestRegistrar_WriteFailure(t *testing.T) {
	t.Parallel()

	// A directory where the document should be makes every write fail.
	path := filepath.Join(t.TempDir(), "registry.json")
	testutil.MustMkdirAll(t, path, 0o755)
	r := newTestRegistrar(t, Options{Store: NewJSONStore(path)})

	_, err := r.Register(context.Background(), "widget", classify.CategoryAdmin, "admin/widget", Fields{})
	var rwe *RegistryWriteError
	if !errors.As(err, &rwe) || !errors.Is(err, ErrRegistryWrite) {
		t.Fatalf("expected RegistryWriteError, got %v", err)
	}
	if rwe.Target != path {
		t.Errorf("Target = %q, want %q", rwe.Target, path)
	}
}

func TestRegistrar_InvalidName(t *testing.T) {
	t.Parallel()

	r := newTestRegistrar(t, Options{})
	_, err := r.Register(context.Background(), "../x", classify.CategoryAdmin, "admin/x", Fields{})
	if !errors.Is(err, types.ErrInvalidModuleName) {
		t.Errorf("expected ErrInvalidModuleName, got %v", err)
	}
}

func TestRegistrar_Catalog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"created", http.StatusCreated, false},
		{"ok", http.StatusOK, false},
		{"server error", http.StatusInternalServerError, true},
		{"accepted is not success", http.StatusAccepted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var (
				mu       sync.Mutex
				received []InstalledModule
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if req.Method != http.MethodPost || req.URL.Path != "/modules/register" {
					http.NotFound(w, req)
					return
				}
				var mod InstalledModule
				if err := json.NewDecoder(req.Body).Decode(&mod); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				mu.Lock()
				received = append(received, mod)
				mu.Unlock()
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			store := NewJSONStore(filepath.Join(t.TempDir(), "registry.json"))
			r := newTestRegistrar(t, Options{
				Store:   store,
				Catalog: NewCatalogClient(srv.URL+"/", srv.Client()),
			})

			mod, err := r.Register(context.Background(), "widget", classify.CategoryAdmin, "admin/widget", Fields{})
			if tt.wantErr {
				var rwe *RegistryWriteError
				if !errors.As(err, &rwe) || rwe.Target != srv.URL+"/modules/register" {
					t.Fatalf("expected catalog RegistryWriteError, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("Register() error = %v", err)
			}

			// The local entry is stored either way.
			if _, found, err := store.Get(context.Background(), "widget"); err != nil || !found {
				t.Errorf("local entry missing: %v", err)
			}
			mu.Lock()
			defer mu.Unlock()
			if len(received) != 1 || received[0].ID != mod.ID || received[0].Path != "admin/widget" {
				t.Errorf("catalog received %+v", received)
			}
		})
	}
}

func TestRegistrar_Close(t *testing.T) {
	t.Parallel()

	r, err := New(Options{
		Store:  NewJSONStore(filepath.Join(t.TempDir(), "registry.json")),
		Logger: testutil.DiscardLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := r.List(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("List() after Close error = %v", err)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{}); err == nil {
		t.Error("expected error for nil store")
	}
}
