// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/invowk/ingest/internal/testutil"

	"github.com/google/go-cmp/cmp"
)

func TestPack_RoundTrip(t *testing.T) {
	t.Parallel()

	src := filepath.Join(t.TempDir(), "widget")
	mtime := time.Date(2023, time.June, 5, 8, 30, 0, 0, time.UTC)
	testutil.MustWriteFile(t, filepath.Join(src, "manifest.json"), `{"name": "widget"}`, mtime)
	testutil.MustWriteFile(t, filepath.Join(src, "lib", "a.js"), "a", mtime)

	tests := []struct {
		name        string
		includeRoot bool
		wantTop     []string
	}{
		{"flat", false, []string{"lib", "manifest.json"}},
		{"with root", true, []string{"widget"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := filepath.Join(t.TempDir(), "out.zip")
			got, err := Pack(src, PackOptions{Output: out, IncludeRoot: tt.includeRoot})
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			if got != out {
				t.Errorf("Pack() = %s, want %s", got, out)
			}

			ex := NewExtractor(Options{ScratchRoot: t.TempDir(), Logger: testutil.DiscardLogger()})
			res, err := ex.Extract(context.Background(), out)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			t.Cleanup(func() { _ = res.Cleanup() })

			if diff := cmp.Diff(tt.wantTop, res.TopLevelEntries); diff != "" {
				t.Errorf("top-level entries mismatch (-want +got):\n%s", diff)
			}
			if res.Manifest == nil || res.Manifest.Name != "widget" {
				t.Errorf("manifest lost in round trip: %+v", res.Manifest)
			}
			info, err := os.Stat(filepath.Join(res.Root, "lib", "a.js"))
			if err != nil {
				t.Fatal(err)
			}
			if !info.ModTime().Equal(mtime) {
				t.Errorf("mtime = %v, want %v", info.ModTime(), mtime)
			}
		})
	}
}

func TestPack_OutputInsideSource(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(src, "a.txt"), "a", time.Time{})
	out := filepath.Join(src, "self.zip")

	if _, err := Pack(src, PackOptions{Output: out}); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}

	dest := t.TempDir()
	ex := NewExtractor(Options{Logger: testutil.DiscardLogger()})
	if err := ex.ExtractTo(context.Background(), out, dest); err != nil {
		t.Fatalf("ExtractTo() error = %v", err)
	}
	entries, err := os.ReadDir(dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.txt" {
		t.Errorf("expected only a.txt in archive, got %v", entries)
	}
}

func TestPack_NotADirectory(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "f.txt")
	testutil.MustWriteFile(t, file, "x", time.Time{})
	if _, err := Pack(file, PackOptions{Output: file + ".zip"}); err == nil {
		t.Fatal("expected error packing a file")
	}
}

func TestPack_CreatesOutputDirectory(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(src, "a.txt"), "a", time.Time{})
	out := filepath.Join(t.TempDir(), "incoming", "nested", "mod.zip")

	got, err := Pack(src, PackOptions{Output: out})
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	if got != out {
		t.Errorf("Pack() = %s, want %s", got, out)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("archive not written: %v", err)
	}
}
