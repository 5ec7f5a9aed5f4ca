// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// FixtureTime is the modification time given to zip entries that do not set one.
var FixtureTime = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// ZipEntry describes one entry of a fixture archive. Names ending in "/"
// are directories.
type ZipEntry struct {
	Name     string
	Body     string
	Mode     os.FileMode
	Modified time.Time
}

// WriteZip writes a zip archive at path containing entries in the given order
// and returns path. Parent directories are created as needed.
func WriteZip(t testing.TB, path string, entries ...ZipEntry) string {
	t.Helper()

	MustMkdirAll(t, filepath.Dir(path), 0o755)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create zip %s: %v", path, err)
	}
	zw := zip.NewWriter(f)

	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: e.Modified}
		if hdr.Modified.IsZero() {
			hdr.Modified = FixtureTime
		}
		mode := e.Mode
		if mode == 0 {
			mode = 0o644
			if strings.HasSuffix(e.Name, "/") {
				mode = os.ModeDir | 0o755
			}
		}
		hdr.SetMode(mode)

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("failed to add zip entry %s: %v", e.Name, err)
		}
		if strings.HasSuffix(e.Name, "/") {
			continue
		}
		if _, err := w.Write([]byte(e.Body)); err != nil {
			t.Fatalf("failed to write zip entry %s: %v", e.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finish zip %s: %v", path, err)
	}
	MustClose(t, f)
	return path
}

// WriteZipFiles writes a zip archive from a name-to-body map. Entries are
// added in sorted order with FixtureTime as their modification time.
func WriteZipFiles(t testing.TB, path string, files map[string]string) string {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	entries := make([]ZipEntry, len(names))
	for i, name := range names {
		entries[i] = ZipEntry{Name: name, Body: files[name]}
	}
	return WriteZip(t, path, entries...)
}

// MustWriteFile writes body to path, creating parent directories, and sets
// the file's modification time when modified is non-zero.
func MustWriteFile(t testing.TB, path, body string, modified time.Time) {
	t.Helper()

	MustMkdirAll(t, filepath.Dir(path), 0o755)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	if !modified.IsZero() {
		if err := os.Chtimes(path, modified, modified); err != nil {
			t.Fatalf("failed to set times on %s: %v", path, err)
		}
	}
}

// MustReadFile returns the contents of path as a string.
func MustReadFile(t testing.TB, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}
