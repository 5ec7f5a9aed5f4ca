// SPDX-License-Identifier: MPL-2.0

// Package watch discovers archives in intake directories.
//
// Scan lists the archives currently present. Watcher follows the same
// directories with fsnotify and reports each archive once its writes have
// gone quiet for the debounce period. Directories are watched
// non-recursively and created when missing.
package watch
