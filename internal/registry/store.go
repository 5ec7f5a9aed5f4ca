// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/invowk/ingest/internal/config"
)

// Store persists registry entries keyed by module name. Implementations are
// not required to serialize read-modify-write sequences; Registrar does.
type Store interface {
	// List returns every entry sorted by name.
	List(ctx context.Context) ([]InstalledModule, error)
	// Get returns the entry for name and whether it exists.
	Get(ctx context.Context, name string) (InstalledModule, bool, error)
	// Put inserts or replaces the entry with mod.Name.
	Put(ctx context.Context, mod InstalledModule) error
	// Delete removes the entry for name and reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Location describes where entries are stored, for messages.
	Location() string
	Close() error
}

// Open opens the store for backend at path.
func Open(backend config.RegistryBackend, path string) (Store, error) {
	switch backend {
	case config.RegistryBackendJSON, "":
		return NewJSONStore(path), nil
	case config.RegistryBackendSQLite:
		return OpenSQLiteStore(path)
	default:
		return nil, fmt.Errorf("open registry: %w", &config.InvalidRegistryBackendError{Value: backend})
	}
}

func sortByName(mods []InstalledModule) {
	slices.SortFunc(mods, func(a, b InstalledModule) int { return cmp.Compare(a.Name, b.Name) })
}

// dedupe keeps the most recently installed entry per name.
func dedupe(mods []InstalledModule) []InstalledModule {
	latest := make(map[string]InstalledModule, len(mods))
	for _, m := range mods {
		if prev, ok := latest[m.Name]; ok && prev.InstalledAt.After(m.InstalledAt) {
			continue
		}
		latest[m.Name] = m
	}
	out := make([]InstalledModule, 0, len(latest))
	for _, m := range latest {
		out = append(out, m)
	}
	sortByName(out)
	return out
}
