// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/invowk/ingest/internal/manifest"
	"github.com/invowk/ingest/internal/testutil"

	"github.com/google/go-cmp/cmp"
)

func newTestExtractor(t *testing.T) (*Extractor, string) {
	t.Helper()
	scratch := filepath.Join(t.TempDir(), "scratch")
	return NewExtractor(Options{ScratchRoot: scratch, Logger: testutil.DiscardLogger()}), scratch
}

func TestExtract(t *testing.T) {
	t.Parallel()

	src := testutil.WriteZipFiles(t, filepath.Join(t.TempDir(), "widget.zip"), map[string]string{
		"manifest.json":  `{"name": "widget", "type": "admin"}`,
		"src/index.js":   "render()",
		"src/lib/app.js": "export {}",
	})

	ex, scratch := newTestExtractor(t)
	res, err := ex.Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	t.Cleanup(func() { _ = res.Cleanup() })

	if filepath.Dir(res.ScratchDir) != scratch {
		t.Errorf("scratch dir %s not under %s", res.ScratchDir, scratch)
	}
	if res.Root != res.ScratchDir || res.WrapperDir != "" {
		t.Errorf("expected no unwrap, got root=%s wrapper=%q", res.Root, res.WrapperDir)
	}
	if diff := cmp.Diff([]string{"manifest.json", "src"}, res.TopLevelEntries); diff != "" {
		t.Errorf("top-level entries mismatch (-want +got):\n%s", diff)
	}
	if res.Files != 3 {
		t.Errorf("Files = %d, want 3", res.Files)
	}
	want := &manifest.Manifest{Name: "widget", Type: "admin", Source: "manifest.json"}
	if diff := cmp.Diff(want, res.Manifest); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}

	appPath := filepath.Join(res.Root, "src", "lib", "app.js")
	if got := testutil.MustReadFile(t, appPath); got != "export {}" {
		t.Errorf("app.js = %q", got)
	}
	info, err := os.Stat(appPath)
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(testutil.FixtureTime) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), testutil.FixtureTime)
	}
}

func TestExtract_UnwrapsSingleDirectory(t *testing.T) {
	t.Parallel()

	src := testutil.WriteZip(t, filepath.Join(t.TempDir(), "upload.zip"),
		testutil.ZipEntry{Name: "planner/"},
		testutil.ZipEntry{Name: "planner/module.yaml", Body: "type: agent\n"},
		testutil.ZipEntry{Name: "planner/package.json", Body: `{"dependencies": {"express": "4"}}`},
	)

	ex, _ := newTestExtractor(t)
	res, err := ex.Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	t.Cleanup(func() { _ = res.Cleanup() })

	if res.WrapperDir != "planner" {
		t.Errorf("WrapperDir = %q, want planner", res.WrapperDir)
	}
	if res.Root != filepath.Join(res.ScratchDir, "planner") {
		t.Errorf("Root = %s", res.Root)
	}
	if res.Manifest == nil || res.Manifest.Type != "agent" {
		t.Errorf("manifest not read from wrapper dir: %+v", res.Manifest)
	}
	if res.Package == nil || res.Package.Dependencies[0] != "express" {
		t.Errorf("package not read from wrapper dir: %+v", res.Package)
	}
	if res.ModuleName() != "planner" {
		t.Errorf("ModuleName() = %q, want planner", res.ModuleName())
	}
}

func TestExtract_FreshScratchPerCall(t *testing.T) {
	t.Parallel()

	src := testutil.WriteZipFiles(t, filepath.Join(t.TempDir(), "a.zip"), map[string]string{"x.txt": "x"})
	ex, _ := newTestExtractor(t)

	first, err := ex.Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("first Extract() error = %v", err)
	}
	second, err := ex.Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("second Extract() error = %v", err)
	}
	if first.ScratchDir == second.ScratchDir {
		t.Errorf("scratch dirs collide: %s", first.ScratchDir)
	}

	if err := first.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if _, err := os.Stat(first.ScratchDir); !os.IsNotExist(err) {
		t.Errorf("scratch dir still present after Cleanup: %v", err)
	}
	if err := first.Cleanup(); err != nil {
		t.Errorf("second Cleanup() error = %v", err)
	}
	_ = second.Cleanup()
}

func TestExtractTo_Overwrites(t *testing.T) {
	t.Parallel()

	src := testutil.WriteZip(t, filepath.Join(t.TempDir(), "ro.zip"),
		testutil.ZipEntry{Name: "locked.txt", Body: "v1", Mode: 0o444},
	)
	dest := t.TempDir()
	ex, _ := newTestExtractor(t)

	for i := range 2 {
		if err := ex.ExtractTo(context.Background(), src, dest); err != nil {
			t.Fatalf("ExtractTo() run %d error = %v", i+1, err)
		}
	}
	if got := testutil.MustReadFile(t, filepath.Join(dest, "locked.txt")); got != "v1" {
		t.Errorf("locked.txt = %q, want v1", got)
	}
}

func TestExtract_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		build   func(t *testing.T, dir string) string
		opts    Options
		wantErr error
	}{
		{
			name: "parent traversal",
			build: func(t *testing.T, dir string) string {
				return testutil.WriteZip(t, filepath.Join(dir, "slip.zip"),
					testutil.ZipEntry{Name: "ok.txt", Body: "fine"},
					testutil.ZipEntry{Name: "../../evil.txt", Body: "pwned"},
				)
			},
			wantErr: ErrUnsafePath,
		},
		{
			name: "absolute path",
			build: func(t *testing.T, dir string) string {
				return testutil.WriteZip(t, filepath.Join(dir, "abs.zip"),
					testutil.ZipEntry{Name: "/etc/evil.txt", Body: "pwned"},
				)
			},
			wantErr: ErrUnsafePath,
		},
		{
			name: "corrupt archive",
			build: func(t *testing.T, dir string) string {
				path := filepath.Join(dir, "corrupt.zip")
				testutil.MustWriteFile(t, path, "this is not a zip file", testutil.FixtureTime)
				return path
			},
		},
		{
			name: "missing archive",
			build: func(t *testing.T, dir string) string {
				return filepath.Join(dir, "missing.zip")
			},
			wantErr: os.ErrNotExist,
		},
		{
			name: "too large",
			build: func(t *testing.T, dir string) string {
				return testutil.WriteZipFiles(t, filepath.Join(dir, "big.zip"), map[string]string{
					"a.txt": "0123456789",
					"b.txt": "0123456789",
				})
			},
			opts:    Options{MaxBytes: 15},
			wantErr: ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			src := tt.build(t, dir)
			opts := tt.opts
			opts.ScratchRoot = filepath.Join(dir, "scratch")
			opts.Logger = testutil.DiscardLogger()

			res, err := NewExtractor(opts).Extract(context.Background(), src)
			if err == nil {
				_ = res.Cleanup()
				t.Fatal("expected error, got nil")
			}
			var ee *ExtractionError
			if !errors.As(err, &ee) || !errors.Is(err, ErrExtraction) {
				t.Fatalf("expected *ExtractionError wrapping ErrExtraction, got %T: %v", err, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v in chain, got %v", tt.wantErr, err)
			}

			if entries, _ := os.ReadDir(opts.ScratchRoot); len(entries) != 0 {
				t.Errorf("scratch root not cleaned up: %d entries left", len(entries))
			}
			if _, err := os.Stat(filepath.Join(dir, "evil.txt")); !os.IsNotExist(err) {
				t.Error("traversal entry was written outside the scratch directory")
			}
		})
	}
}

func TestExtract_Canceled(t *testing.T) {
	t.Parallel()

	src := testutil.WriteZipFiles(t, filepath.Join(t.TempDir(), "c.zip"), map[string]string{"a": "a"})
	ex, _ := newTestExtractor(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ex.Extract(ctx, src)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected canceled extraction error, got %v", err)
	}
}

func TestExtract_SkipsJunkEntries(t *testing.T) {
	t.Parallel()

	src := testutil.WriteZipFiles(t, filepath.Join(t.TempDir(), "mac.zip"), map[string]string{
		"__MACOSX/._readme.md": "junk",
		".DS_Store":            "junk",
		"readme.md":            "# docs",
	})
	ex, _ := newTestExtractor(t)

	res, err := ex.Extract(context.Background(), src)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	t.Cleanup(func() { _ = res.Cleanup() })

	if diff := cmp.Diff([]string{"readme.md"}, res.TopLevelEntries); diff != "" {
		t.Errorf("top-level entries mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractionResult_ModuleName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		res  ExtractionResult
		want string
	}{
		{
			name: "manifest name wins",
			res:  ExtractionResult{ArchivePath: "/in/upload.zip", WrapperDir: "dir", Manifest: &manifest.Manifest{Name: "Widget Pro"}},
			want: "Widget-Pro",
		},
		{
			name: "wrapper dir when manifest has no name",
			res:  ExtractionResult{ArchivePath: "/in/upload.zip", WrapperDir: "planner", Manifest: &manifest.Manifest{Type: "agent"}},
			want: "planner",
		},
		{
			name: "archive name fallback",
			res:  ExtractionResult{ArchivePath: "/in/my-service-phase-3.zip"},
			want: "my-service-phase-3",
		},
		{
			name: "unusable manifest name falls through",
			res:  ExtractionResult{ArchivePath: "/in/widget.zip", Manifest: &manifest.Manifest{Name: "../.."}},
			want: "widget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.res.ModuleName(); string(got) != tt.want {
				t.Errorf("ModuleName() = %q, want %q", got, tt.want)
			}
		})
	}
}
