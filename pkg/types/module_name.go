// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidModuleName is the sentinel error wrapped by InvalidModuleNameError.
var ErrInvalidModuleName = errors.New("invalid module name")

type (
	// ModuleName is the directory-safe name of an installed module. It names the
	// module's directory under its category base and is the registry key.
	ModuleName string

	// InvalidModuleNameError is returned when a ModuleName is empty, a dot path,
	// or contains path separators.
	InvalidModuleNameError struct {
		Value ModuleName
	}
)

// String returns the string representation of the ModuleName.
func (n ModuleName) String() string { return string(n) }

// IsValid returns whether the ModuleName can be used as a single directory name.
func (n ModuleName) IsValid() (bool, []error) {
	s := string(n)
	if strings.TrimSpace(s) == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return false, []error{&InvalidModuleNameError{Value: n}}
	}
	return true, nil
}

// Error implements the error interface for InvalidModuleNameError.
func (e *InvalidModuleNameError) Error() string {
	return fmt.Sprintf("invalid module name %q: must be a single non-empty path segment", e.Value)
}

// Unwrap returns ErrInvalidModuleName for errors.Is.
func (e *InvalidModuleNameError) Unwrap() error { return ErrInvalidModuleName }

// SanitizeModuleName converts free-form text (a manifest name, an archive file
// name) into a ModuleName. Letters, digits, '-', '_' and '.' are kept; runs of
// anything else collapse into a single '-'. Leading and trailing separators are
// trimmed. The result may be empty, which IsValid rejects.
func SanitizeModuleName(raw string) ModuleName {
	var sb strings.Builder
	lastDash := false
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
			sb.WriteRune(r)
			lastDash = false
		case r == '-':
			sb.WriteRune(r)
			lastDash = true
		default:
			if !lastDash && sb.Len() > 0 {
				sb.WriteRune('-')
				lastDash = true
			}
		}
	}
	name := strings.Trim(sb.String(), "-.")
	return ModuleName(name)
}
