// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/invowk/ingest/internal/archive"
	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/internal/config"
	"github.com/invowk/ingest/internal/install"
	"github.com/invowk/ingest/internal/registry"
	"github.com/invowk/ingest/internal/testutil"
)

// harness is a project tree wired with the real pipeline components.
type harness struct {
	root      string
	intake    string
	processed string
	scratch   string
	cfg       *config.Config
	store     *registry.JSONStore
	registrar *registry.Registrar
	pipeline  *Pipeline
}

func newHarness(t *testing.T, adjust func(*Options)) *harness {
	t.Helper()

	root := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.ProjectRoot = root

	h := &harness{
		root:      root,
		intake:    cfg.ResolvePath(cfg.IntakeDirs[0]),
		processed: cfg.ResolvePath(cfg.ProcessedDir),
		scratch:   filepath.Join(root, "scratch"),
		cfg:       cfg,
		store:     registry.NewJSONStore(cfg.ResolvePath(cfg.Registry.Path)),
	}
	testutil.MustMkdirAll(t, h.intake, 0o755)
	testutil.MustMkdirAll(t, h.scratch, 0o755)

	logger := testutil.DiscardLogger()
	inst, err := install.New(install.Options{ProjectRoot: root, CategoryDirs: cfg.CategoryDirs(), Logger: logger})
	if err != nil {
		t.Fatalf("install.New() error = %v", err)
	}
	h.registrar, err = registry.New(registry.Options{Store: h.store, Logger: logger})
	if err != nil {
		t.Fatalf("registry.New() error = %v", err)
	}
	t.Cleanup(func() { _ = h.registrar.Close() })

	opts := Options{
		Extractor:    archive.NewExtractor(archive.Options{ScratchRoot: h.scratch, Logger: logger}),
		Classifier:   classify.New(classify.Options{Keywords: cfg.Keywords, Frameworks: cfg.Frameworks, Logger: logger}),
		Installer:    inst,
		Registrar:    h.registrar,
		ProcessedDir: h.processed,
		Logger:       logger,
	}
	if adjust != nil {
		adjust(&opts)
	}
	h.pipeline, err = New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return h
}

func (h *harness) zip(t *testing.T, name string, files map[string]string) string {
	t.Helper()
	return testutil.WriteZipFiles(t, filepath.Join(h.intake, name), files)
}

func (h *harness) registered(t *testing.T) []registry.InstalledModule {
	t.Helper()
	mods, err := h.store.List(t.Context())
	if err != nil {
		t.Fatalf("registry List() error = %v", err)
	}
	return mods
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected %s to be empty, found %d entries", dir, len(entries))
	}
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", path, err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to be absent (err = %v)", path, err)
	}
}
