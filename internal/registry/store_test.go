// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/internal/config"
	"github.com/invowk/ingest/internal/testutil"
)

var installedAt = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func sampleModule(name string, cat classify.Category) InstalledModule {
	return InstalledModule{
		ID:           "id-" + name,
		Name:         name,
		Type:         cat,
		Path:         "admin/" + name,
		Version:      "1.0.0",
		Description:  "the " + name + " module",
		Dependencies: []string{"react"},
		InstalledAt:  installedAt,
		Archive:      name + ".zip",
	}
}

// storeFactories returns one constructor per backend so behavior is
// checked identically against both.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"json": func(t *testing.T) Store {
			return NewJSONStore(filepath.Join(t.TempDir(), "registry.json"))
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "registry.db"))
			if err != nil {
				t.Fatalf("OpenSQLiteStore() error = %v", err)
			}
			return s
		},
	}
}

func TestStores(t *testing.T) {
	t.Parallel()

	for backend, open := range storeFactories() {
		t.Run(backend, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := open(t)
			defer testutil.DeferClose(t, s)()

			mods, err := s.List(ctx)
			if err != nil || len(mods) != 0 {
				t.Fatalf("List() on empty store = %v, %v", mods, err)
			}

			widget := sampleModule("widget", classify.CategoryAdmin)
			api := sampleModule("api", classify.CategoryService)
			api.Dependencies = nil
			for _, m := range []InstalledModule{widget, api} {
				if err := s.Put(ctx, m); err != nil {
					t.Fatalf("Put(%s) error = %v", m.Name, err)
				}
			}

			mods, err = s.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]InstalledModule{api, widget}, mods); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}

			updated := widget
			updated.Version = "2.0.0"
			updated.InstalledAt = installedAt.Add(time.Hour)
			if err := s.Put(ctx, updated); err != nil {
				t.Fatal(err)
			}
			got, found, err := s.Get(ctx, "widget")
			if err != nil || !found {
				t.Fatalf("Get(widget) = %v, %v", found, err)
			}
			if diff := cmp.Diff(updated, got); diff != "" {
				t.Errorf("Get() after replace mismatch (-want +got):\n%s", diff)
			}
			if mods, _ := s.List(ctx); len(mods) != 2 {
				t.Errorf("expected 2 entries after replace, got %d", len(mods))
			}

			if _, found, err := s.Get(ctx, "missing"); found || err != nil {
				t.Errorf("Get(missing) = %v, %v", found, err)
			}

			deleted, err := s.Delete(ctx, "api")
			if err != nil || !deleted {
				t.Errorf("Delete(api) = %v, %v", deleted, err)
			}
			deleted, err = s.Delete(ctx, "api")
			if err != nil || deleted {
				t.Errorf("second Delete(api) = %v, %v", deleted, err)
			}
		})
	}
}

func TestSQLiteStore_PersistsAcrossOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "registry.db")
	s, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	mod := sampleModule("widget", classify.CategoryAdmin)
	if err := s.Put(context.Background(), mod); err != nil {
		t.Fatal(err)
	}
	testutil.MustClose(t, s)

	reopened, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer testutil.DeferClose(t, reopened)()
	got, found, err := reopened.Get(context.Background(), "widget")
	if err != nil || !found {
		t.Fatalf("Get() after reopen = %v, %v", found, err)
	}
	if diff := cmp.Diff(mod, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONStore_DocumentFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.json")
	s := NewJSONStore(path)
	if err := s.Put(context.Background(), sampleModule("widget", classify.CategoryAdmin)); err != nil {
		t.Fatal(err)
	}

	want := `{
  "version": 1,
  "modules": [
    {
      "id": "id-widget",
      "name": "widget",
      "type": "admin",
      "path": "admin/widget",
      "version": "1.0.0",
      "description": "the widget module",
      "dependencies": [
        "react"
      ],
      "installedAt": "2024-03-01T12:00:00Z",
      "archive": "widget.zip"
    }
  ]
}
`
	if diff := cmp.Diff(want, testutil.MustReadFile(t, path)); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the registry file, found %d entries", len(entries))
	}
}

func TestJSONStore_LegacyArrayDeduplicates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.json")
	testutil.MustWriteFile(t, path, `[
		{"id": "1", "name": "widget", "type": "admin", "path": "admin/widget", "installedAt": "2024-01-01T00:00:00Z"},
		{"id": "2", "name": "widget", "type": "admin", "path": "admin/widget", "version": "2", "installedAt": "2024-02-01T00:00:00Z"},
		{"id": "3", "name": "api", "type": "service", "path": "services/api", "installedAt": "2024-01-15T00:00:00Z"}
	]`, installedAt)

	mods, err := NewJSONStore(path).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var got []string
	for _, m := range mods {
		got = append(got, m.Name+"@"+m.ID)
	}
	if diff := cmp.Diff([]string{"api@3", "widget@2"}, got); diff != "" {
		t.Errorf("dedupe mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONStore_Corrupt(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.json")
	testutil.MustWriteFile(t, path, `{"modules": [`, installedAt)

	s := NewJSONStore(path)
	if _, err := s.List(context.Background()); !errors.Is(err, ErrCorruptRegistry) {
		t.Errorf("List() error = %v, want ErrCorruptRegistry", err)
	}
	if err := s.Put(context.Background(), sampleModule("x", classify.CategoryAdmin)); !errors.Is(err, ErrCorruptRegistry) {
		t.Errorf("Put() error = %v, want ErrCorruptRegistry", err)
	}
	if body := testutil.MustReadFile(t, path); body != `{"modules": [` {
		t.Error("corrupt document was overwritten")
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	s, err := Open(config.RegistryBackendJSON, filepath.Join(dir, "r.json"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*JSONStore); !ok {
		t.Errorf("json backend opened %T", s)
	}

	s, err = Open(config.RegistryBackendSQLite, filepath.Join(dir, "r.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("sqlite backend opened %T", s)
	}
	testutil.MustClose(t, s)

	if _, err := Open("etcd", filepath.Join(dir, "r")); !errors.Is(err, config.ErrInvalidRegistryBackend) {
		t.Errorf("Open(etcd) error = %v", err)
	}
}
