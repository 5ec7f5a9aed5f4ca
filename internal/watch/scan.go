// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// Event reports an archive ready for ingestion.
type Event struct {
	// Path is the absolute archive path.
	Path    string
	Size    int64
	ModTime time.Time
	// DiscoveredAt is when the scan or watcher reported the archive.
	DiscoveredAt time.Time
}

// EnsureDirs creates every missing directory and returns the absolute paths.
func EnsureDirs(dirs []string) ([]string, error) {
	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve %q: %w", dir, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("watch: create intake directory: %w", err)
		}
		if !slices.Contains(out, abs) {
			out = append(out, abs)
		}
	}
	return out, nil
}

// Scan lists the archives currently present in dirs, sorted by path. Missing
// directories are created; subdirectories are not descended into.
func Scan(dirs []string, m *Matcher) ([]Event, error) {
	abs, err := EnsureDirs(dirs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var events []Event
	for _, dir := range abs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("watch: read %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.Type().IsRegular() || !m.Match(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				// Removed between ReadDir and Info.
				continue
			}
			events = append(events, Event{
				Path:         filepath.Join(dir, e.Name()),
				Size:         info.Size(),
				ModTime:      info.ModTime(),
				DiscoveredAt: now,
			})
		}
	}
	slices.SortFunc(events, func(a, b Event) int { return cmp.Compare(a.Path, b.Path) })
	return events, nil
}

// statEvent builds an Event for path if it is still a regular file.
func statEvent(path string, now time.Time) (Event, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Event{}, false
	}
	return Event{Path: path, Size: info.Size(), ModTime: info.ModTime(), DiscoveredAt: now}, true
}
