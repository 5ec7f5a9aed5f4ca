// SPDX-License-Identifier: MPL-2.0

// Package install places classified modules under their category directory.
//
// Installation is staged: the result is assembled in a hidden sibling
// directory and renamed over the target, so a module directory is never
// observed half-written. When the module already exists its files are merged:
// an incoming file replaces an installed one only when it is strictly newer,
// and files that exist only in the installed copy are kept. Installs of the
// same module name are serialized.
package install
