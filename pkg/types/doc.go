// SPDX-License-Identifier: MPL-2.0

// Package types defines value types shared by the ingest packages: process exit
// codes and module names. It imports only the standard library.
package types
