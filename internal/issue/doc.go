// SPDX-License-Identifier: MPL-2.0

// Package issue provides user-facing error handling for the ingest CLI.
//
// ActionableError carries the failed operation, the resource involved and
// remediation hints. The issue catalog holds longer Markdown guidance for the
// failure classes of the pipeline, rendered for the terminal with glamour.
package issue
