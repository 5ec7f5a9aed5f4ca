// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrRegistryWrite is the sentinel error wrapped by RegistryWriteError.
	ErrRegistryWrite = errors.New("registry write failed")
	// ErrNotFound is returned when no module with the requested name is registered.
	ErrNotFound = errors.New("module not registered")
	// ErrClosed is returned by a Registrar after Close.
	ErrClosed = errors.New("registrar closed")
	// ErrCorruptRegistry is returned when the registry document cannot be decoded.
	ErrCorruptRegistry = errors.New("corrupt registry")
)

// RegistryWriteError reports that module metadata could not be persisted or
// announced. The module files are already installed when this is returned.
type RegistryWriteError struct {
	Module string
	// Target is the registry path or the catalog URL.
	Target string
	Err    error
}

// Error implements the error interface for RegistryWriteError.
func (e *RegistryWriteError) Error() string {
	return fmt.Sprintf("record %s in %s: %v", e.Module, e.Target, e.Err)
}

// Unwrap returns ErrRegistryWrite and the cause for errors.Is.
func (e *RegistryWriteError) Unwrap() []error { return []error{ErrRegistryWrite, e.Err} }
