// SPDX-License-Identifier: MPL-2.0

package archive

import (
	"errors"
	"fmt"
)

var (
	// ErrExtraction is the sentinel error wrapped by ExtractionError.
	ErrExtraction = errors.New("extraction failed")
	// ErrUnsafePath is returned for entries that resolve outside the
	// extraction directory (absolute paths, ".." components).
	ErrUnsafePath = errors.New("archive entry escapes extraction directory")
	// ErrTooLarge is returned when the extracted bytes exceed the limit.
	ErrTooLarge = errors.New("archive exceeds extracted size limit")
)

// ExtractionError reports a corrupt, unreadable or unsafe archive.
type ExtractionError struct {
	Archive string
	// Entry is the offending entry name, empty for archive-level failures.
	Entry string
	Err   error
}

// Error implements the error interface for ExtractionError.
func (e *ExtractionError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("extract %s: entry %q: %v", e.Archive, e.Entry, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

// Unwrap returns ErrExtraction and the cause for errors.Is.
func (e *ExtractionError) Unwrap() []error { return []error{ErrExtraction, e.Err} }
