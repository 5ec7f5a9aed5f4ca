// SPDX-License-Identifier: MPL-2.0

package classify

import (
	"errors"
	"fmt"
)

// ErrAmbiguous is the sentinel error wrapped by AmbiguousError.
var ErrAmbiguous = errors.New("classification ambiguous")

// AmbiguousError is returned when no rule identifies the module.
type AmbiguousError struct {
	Archive string
	// Checked lists the rules that were evaluated.
	Checked []string
}

// Error implements the error interface for AmbiguousError.
func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("cannot classify %s: no rule matched (checked %v)", e.Archive, e.Checked)
}

// Unwrap returns ErrAmbiguous for errors.Is.
func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }
