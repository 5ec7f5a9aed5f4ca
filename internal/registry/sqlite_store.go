// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/invowk/ingest/internal/classify"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS modules (
	name         TEXT PRIMARY KEY,
	id           TEXT NOT NULL,
	type         TEXT NOT NULL,
	path         TEXT NOT NULL,
	version      TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	dependencies TEXT NOT NULL DEFAULT '[]',
	installed_at TEXT NOT NULL,
	archive      TEXT NOT NULL DEFAULT ''
);`

// SQLiteStore keeps the registry in an embedded SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	// One connection: SQLite allows a single writer and the Registrar
	// already serializes access.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize registry database: %w", err)
		}
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Location returns the database path.
func (s *SQLiteStore) Location() string { return s.path }

// List returns every entry sorted by name.
func (s *SQLiteStore) List(ctx context.Context) (_ []InstalledModule, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, id, type, path, version, description, dependencies, installed_at, archive
		FROM modules ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	var mods []InstalledModule
	for rows.Next() {
		mod, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query registry: %w", err)
	}
	return mods, nil
}

// Get returns the entry for name.
func (s *SQLiteStore) Get(ctx context.Context, name string) (InstalledModule, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, id, type, path, version, description, dependencies, installed_at, archive
		FROM modules WHERE name = ?`, name)
	mod, err := scanModule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return InstalledModule{}, false, nil
	}
	if err != nil {
		return InstalledModule{}, false, err
	}
	return mod, true, nil
}

// Put inserts or replaces the entry with mod.Name.
func (s *SQLiteStore) Put(ctx context.Context, mod InstalledModule) error {
	deps, err := json.Marshal(mod.Dependencies)
	if err != nil {
		return fmt.Errorf("encode dependencies: %w", err)
	}
	if mod.Dependencies == nil {
		deps = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO modules (name, id, type, path, version, description, dependencies, installed_at, archive)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			id = excluded.id,
			type = excluded.type,
			path = excluded.path,
			version = excluded.version,
			description = excluded.description,
			dependencies = excluded.dependencies,
			installed_at = excluded.installed_at,
			archive = excluded.archive`,
		mod.Name, mod.ID, string(mod.Type), mod.Path, mod.Version, mod.Description,
		string(deps), mod.InstalledAt.UTC().Format(time.RFC3339Nano), mod.Archive,
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", mod.Name, err)
	}
	return nil
}

// Delete removes the entry for name.
func (s *SQLiteStore) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM modules WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", name, err)
	}
	return n > 0, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModule(row rowScanner) (InstalledModule, error) {
	var (
		mod         InstalledModule
		typ         string
		deps        string
		installedAt string
	)
	if err := row.Scan(&mod.Name, &mod.ID, &typ, &mod.Path, &mod.Version, &mod.Description, &deps, &installedAt, &mod.Archive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return InstalledModule{}, err
		}
		return InstalledModule{}, fmt.Errorf("read registry row: %w", err)
	}
	mod.Type = classify.Category(typ)
	if err := json.Unmarshal([]byte(deps), &mod.Dependencies); err != nil {
		return InstalledModule{}, fmt.Errorf("%w: dependencies of %s: %w", ErrCorruptRegistry, mod.Name, err)
	}
	if len(mod.Dependencies) == 0 {
		mod.Dependencies = nil
	}
	t, err := time.Parse(time.RFC3339Nano, installedAt)
	if err != nil {
		return InstalledModule{}, fmt.Errorf("%w: installed_at of %s: %w", ErrCorruptRegistry, mod.Name, err)
	}
	mod.InstalledAt = t
	return mod, nil
}
