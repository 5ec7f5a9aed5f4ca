// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the ingest command line interface.
package cmd
