// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/invowk/ingest/pkg/types"
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// taskFailed reports that at least one archive task failed.
func taskFailed(err error) *ExitError {
	return &ExitError{Code: types.ExitTaskFailed, Err: err}
}

// configError reports an unusable configuration or command line.
func configError(err error) *ExitError {
	return &ExitError{Code: types.ExitConfigError, Err: err}
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}
