// SPDX-License-Identifier: MPL-2.0

// Package config handles application configuration using Viper with CUE as the file format.
//
// Configuration is read from ./ingest.cue when present, otherwise from
// config.cue in the user configuration directory (~/.config/ingest on Linux,
// ~/Library/Application Support/ingest on macOS, %APPDATA%\ingest on Windows).
// Files are validated against an embedded CUE schema (config_schema.cue) and
// merged over built-in defaults; INGEST_* environment variables override both.
//
// The keyword and framework classification tables live here as data so that
// classification behavior can change without code changes.
package config
