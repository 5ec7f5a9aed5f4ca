// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/invowk/ingest/internal/testutil"
)

func TestScan(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	inbox := filepath.Join(root, "inbox")
	uploads := filepath.Join(root, "uploads", "new")

	for _, name := range []string{"b.zip", "A.ZIP", "readme.txt", ".hidden.zip", "old.zip.processed", "x.zip.part"} {
		testutil.MustWriteFile(t, filepath.Join(inbox, name), "data", testutil.FixtureTime)
	}
	testutil.MustMkdirAll(t, filepath.Join(inbox, "nested.zip"), 0o755)
	testutil.MustWriteFile(t, filepath.Join(inbox, "sub", "deep.zip"), "data", testutil.FixtureTime)

	m, err := NewMatcher(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	events, err := Scan([]string{inbox, uploads, inbox}, m)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	var got []string
	for _, ev := range events {
		got = append(got, ev.Path)
		if ev.Size != 4 || !ev.ModTime.Equal(testutil.FixtureTime) || ev.DiscoveredAt.IsZero() {
			t.Errorf("unexpected event metadata %+v", ev)
		}
	}
	want := []string{filepath.Join(inbox, "A.ZIP"), filepath.Join(inbox, "b.zip")}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Scan() mismatch (-want +got):\n%s", diff)
	}

	if info, err := os.Stat(uploads); err != nil || !info.IsDir() {
		t.Errorf("missing intake directory was not created: %v", err)
	}
}

func TestScan_EmptyDirectory(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	events, err := Scan([]string{t.TempDir()}, m)
	if err != nil || len(events) != 0 {
		t.Errorf("Scan() = %v, %v", events, err)
	}
}

func TestEnsureDirs_FileInTheWay(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "inbox")
	testutil.MustWriteFile(t, path, "not a dir", testutil.FixtureTime)
	if _, err := EnsureDirs([]string{path}); err == nil {
		t.Error("expected error when intake path is a file")
	}
}
