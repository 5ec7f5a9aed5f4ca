// SPDX-License-Identifier: MPL-2.0

package install

import (
	"errors"
	"fmt"
)

var (
	// ErrInstall is the sentinel error wrapped by InstallError.
	ErrInstall = errors.New("install failed")
	// ErrNoCategoryDir is returned when a category has no configured directory.
	ErrNoCategoryDir = errors.New("no directory configured for category")
	// ErrTypeConflict is returned when an incoming path is a file where the
	// installed module has a directory, or the reverse.
	ErrTypeConflict = errors.New("file/directory conflict")
)

// InstallError reports an IO or permission failure while installing. The
// target directory is left as it was before the install started.
type InstallError struct {
	Module string
	Target string
	Err    error
}

// Error implements the error interface for InstallError.
func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s into %s: %v", e.Module, e.Target, e.Err)
}

// Unwrap returns ErrInstall and the cause for errors.Is.
func (e *InstallError) Unwrap() []error { return []error{ErrInstall, e.Err} }
