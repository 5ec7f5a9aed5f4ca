// SPDX-License-Identifier: MPL-2.0

// Package cueutil holds the CUE helpers shared by the config loader and the
// module manifest reader: compile an embedded schema, unify user data with a
// root definition, validate, and decode into a Go value, with errors that name
// the offending field path.
package cueutil
