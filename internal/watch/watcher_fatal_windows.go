// SPDX-License-Identifier: MPL-2.0

//go:build windows

package watch

import (
	"errors"
	"syscall"
)

// Win32 error codes that leave ReadDirectoryChangesW unusable.
const (
	errnoTooManyOpenFiles = syscall.Errno(4)
	// The intake directory was deleted or unmounted.
	errnoInvalidHandle   = syscall.Errno(6)
	errnoNotEnoughMemory = syscall.Errno(8)
)

// isFatalWatchError reports handle exhaustion, an invalidated directory
// handle, or a failed notification buffer allocation.
func isFatalWatchError(err error) bool {
	return errors.Is(err, errnoTooManyOpenFiles) ||
		errors.Is(err, errnoInvalidHandle) ||
		errors.Is(err, errnoNotEnoughMemory)
}
