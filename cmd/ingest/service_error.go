// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/invowk/ingest/internal/issue"
)

// ServiceError pairs a command failure with the issue catalog entry that
// explains how to fix it.
type ServiceError struct {
	Err     error
	IssueID issue.Id
}

// withIssue attaches an issue catalog entry to err. A nil err stays nil.
func withIssue(err error, id issue.Id) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Err: err, IssueID: id}
}

func (e *ServiceError) Error() string { return e.Err.Error() }

func (e *ServiceError) Unwrap() error { return e.Err }

// writeHelp renders the catalog entry below the error line. Unknown IDs
// print nothing.
func (e *ServiceError) writeHelp(w io.Writer) {
	entry := issue.Get(e.IssueID)
	if entry == nil {
		return
	}
	rendered, err := entry.Render("dark")
	if err != nil {
		slog.Warn("render issue", "issue", e.IssueID, "error", err)
		return
	}
	fmt.Fprintln(w, SubtitleStyle.Render("How to fix:"))
	fmt.Fprint(w, rendered)
}
