// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/invowk/ingest/internal/issue"
)

func TestWithIssue(t *testing.T) {
	t.Parallel()

	if err := withIssue(nil, issue.TaskTimeoutId); err != nil {
		t.Errorf("withIssue(nil) = %v, want nil", err)
	}

	cause := errors.New("scratch: permission denied")
	err := withIssue(fmt.Errorf("extract x.zip: %w", cause), issue.PermissionDeniedId)

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) || svcErr.IssueID != issue.PermissionDeniedId {
		t.Fatalf("expected ServiceError with PermissionDenied, got %#v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if err.Error() != "extract x.zip: scratch: permission denied" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestServiceError_WriteHelp(t *testing.T) {
	t.Parallel()

	t.Run("unknown issue", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		(&ServiceError{Err: errors.New("x")}).writeHelp(&buf)
		if buf.Len() != 0 {
			t.Errorf("expected no output, got %q", buf.String())
		}
	})

	t.Run("catalog entry", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		(&ServiceError{Err: errors.New("x"), IssueID: issue.TaskTimeoutId}).writeHelp(&buf)
		rendered, err := issue.Get(issue.TaskTimeoutId).Render("dark")
		if err != nil {
			t.Fatalf("Render() error = %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "How to fix:") || !strings.Contains(out, rendered) {
			t.Errorf("unexpected help output:\n%s", out)
		}
	})
}
