// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const jsonFormatVersion = 1

type (
	// JSONStore keeps the registry in a single JSON document. Every Put and
	// Delete rewrites the document through a temporary file and a rename.
	JSONStore struct {
		path string
		mu   sync.Mutex
	}

	jsonDocument struct {
		Version int               `json:"version"`
		Modules []InstalledModule `json:"modules"`
	}
)

// NewJSONStore returns a store backed by the document at path. The file is
// created on the first write.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Location returns the document path.
func (s *JSONStore) Location() string { return s.path }

// List returns every entry sorted by name.
func (s *JSONStore) List(ctx context.Context) ([]InstalledModule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the entry for name.
func (s *JSONStore) Get(ctx context.Context, name string) (InstalledModule, bool, error) {
	mods, err := s.List(ctx)
	if err != nil {
		return InstalledModule{}, false, err
	}
	for _, m := range mods {
		if m.Name == name {
			return m, true, nil
		}
	}
	return InstalledModule{}, false, nil
}

// Put inserts or replaces the entry with mod.Name.
func (s *JSONStore) Put(ctx context.Context, mod InstalledModule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mods, err := s.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range mods {
		if mods[i].Name == mod.Name {
			mods[i] = mod
			replaced = true
			break
		}
	}
	if !replaced {
		mods = append(mods, mod)
		sortByName(mods)
	}
	return s.save(mods)
}

// Delete removes the entry for name.
func (s *JSONStore) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	mods, err := s.load()
	if err != nil {
		return false, err
	}
	kept := mods[:0]
	for _, m := range mods {
		if m.Name != name {
			kept = append(kept, m)
		}
	}
	if len(kept) == len(mods) {
		return false, nil
	}
	return true, s.save(kept)
}

// Close is a no-op; the document is written on every change.
func (s *JSONStore) Close() error { return nil }

// load reads the document. A bare JSON array of entries is accepted as well,
// and duplicate names collapse to the latest install.
func (s *JSONStore) load() ([]InstalledModule, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var mods []InstalledModule
	if data[0] == '[' {
		err = json.Unmarshal(data, &mods)
	} else {
		var doc jsonDocument
		err = json.Unmarshal(data, &doc)
		mods = doc.Modules
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrCorruptRegistry, s.path, err)
	}
	return dedupe(mods), nil
}

func (s *JSONStore) save(mods []InstalledModule) error {
	if mods == nil {
		mods = []InstalledModule{}
	}
	data, err := json.MarshalIndent(jsonDocument{Version: jsonFormatVersion, Modules: mods}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath) // Best-effort cleanup of temp file
		return fmt.Errorf("write registry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) // Best-effort cleanup of temp file
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath) // Best-effort cleanup of temp file
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}
