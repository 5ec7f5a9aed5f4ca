// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/invowk/ingest/internal/testutil"
)

func TestMoveToProcessed(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(time.Date(2024, time.May, 6, 7, 8, 9, 0, time.UTC))
	root := t.TempDir()
	processed := filepath.Join(root, "processed")

	var moved []string
	for i := range 3 {
		src := filepath.Join(root, "in", "widget.zip")
		testutil.MustWriteFile(t, src, fmt.Sprintf("v%d", i+1), testutil.FixtureTime)

		dst, err := MoveToProcessed(src, processed, clock.Now())
		if err != nil {
			t.Fatalf("MoveToProcessed() #%d error = %v", i, err)
		}
		if _, err := os.Stat(src); !os.IsNotExist(err) {
			t.Errorf("source still present after move #%d", i)
		}
		moved = append(moved, filepath.Base(dst))
	}

	want := []string{"widget.zip", "widget-20240506-070809.zip", "widget-20240506-070809-2.zip"}
	for i := range want {
		if moved[i] != want[i] {
			t.Errorf("move #%d landed at %s, want %s", i, moved[i], want[i])
		}
	}

	// Earlier archives were never overwritten.
	if body := testutil.MustReadFile(t, filepath.Join(processed, "widget.zip")); body != "v1" {
		t.Errorf("first archive overwritten: %q", body)
	}
	info, err := os.Stat(filepath.Join(processed, "widget-20240506-070809-2.zip"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(testutil.FixtureTime) {
		t.Errorf("mtime changed by move: %v", info.ModTime())
	}
}

func TestMoveToProcessed_MissingSource(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if _, err := MoveToProcessed(filepath.Join(root, "gone.zip"), filepath.Join(root, "processed"), time.Now()); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestCopyAcross(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	src := filepath.Join(root, "a.zip")
	dst := filepath.Join(root, "out", "a.zip")
	testutil.MustWriteFile(t, src, "payload", testutil.FixtureTime)
	testutil.MustMkdirAll(t, filepath.Dir(dst), 0o755)

	if err := copyAcross(src, dst); err != nil {
		t.Fatalf("copyAcross() error = %v", err)
	}
	if body := testutil.MustReadFile(t, dst); body != "payload" {
		t.Errorf("copied body = %q", body)
	}
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary file left behind: %d entries", len(entries))
	}
}
