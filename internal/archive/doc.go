// SPDX-License-Identifier: MPL-2.0

// Package archive extracts ZIP archives into private scratch directories and
// builds them from directories.
//
// Every Extract call gets a fresh directory, so concurrent tasks never share
// scratch space. Entries that would land outside the scratch directory fail
// the whole extraction. Entry modification times are restored on disk so a
// later merge can compare incoming and installed files by mtime.
package archive
