// SPDX-License-Identifier: MPL-2.0

// Package registry records installed modules.
//
// A Registrar owns the registry Store and applies every read-modify-write on
// a single goroutine, so concurrent pipeline tasks never interleave updates.
// The registry holds at most one entry per module name; re-registering a name
// replaces the entry and keeps its ID. Two Store backends exist: a JSON
// document written atomically, and an embedded SQLite database.
package registry
