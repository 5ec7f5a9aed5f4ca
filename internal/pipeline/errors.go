// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ErrTaskTimeout is the sentinel error wrapped by TimeoutError.
var ErrTaskTimeout = errors.New("task timed out")

// TimeoutError reports a task that exceeded its time limit.
type TimeoutError struct {
	Archive string
	Stage   Stage
	Timeout time.Duration
	// Err is what the interrupted stage returned, if anything.
	Err error
}

// Error implements the error interface for TimeoutError.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: task exceeded %s while %s", e.Archive, e.Timeout, e.Stage)
}

// Unwrap returns ErrTaskTimeout and the interrupted stage's error.
func (e *TimeoutError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTaskTimeout}
	}
	return []error{ErrTaskTimeout, e.Err}
}
