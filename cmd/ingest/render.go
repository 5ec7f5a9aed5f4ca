// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"
	"time"

	"github.com/invowk/ingest/internal/archive"
	"github.com/invowk/ingest/internal/classify"
	"github.com/invowk/ingest/internal/install"
	"github.com/invowk/ingest/internal/issue"
	"github.com/invowk/ingest/internal/pipeline"
)

// outcomePrinter writes one line per finished task. Runner callbacks arrive
// from task goroutines, so writes are serialized.
type outcomePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *outcomePrinter) print(o *pipeline.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	renderOutcome(p.w, o)
}

// renderOutcome prints the result of a single task.
func renderOutcome(w io.Writer, o *pipeline.Outcome) {
	task := o.Task
	switch {
	case o.Succeeded() && o.DryRun:
		fmt.Fprintf(w, "%s %s would install as %s (%s)\n",
			SuccessStyle.Render("✓"), task.FileName,
			CmdStyle.Render(o.Classification.Category.String()), o.Classification.Reason)
	case o.Succeeded():
		status := "installed"
		if o.Install != nil && !o.Install.Changed {
			status = "unchanged"
		}
		target := ""
		if o.Install != nil {
			target = o.Install.RelPath
		}
		fmt.Fprintf(w, "%s %s %s %s (%s, %s)\n",
			SuccessStyle.Render("✓"), task.FileName, status, CmdStyle.Render(target),
			o.Classification.Rule, o.Elapsed.Round(time.Millisecond))
		for _, warn := range o.Warnings {
			fmt.Fprintf(w, "  %s %s\n", WarningStyle.Render("!"), warn)
		}
	case o.Ambiguous():
		fmt.Fprintf(w, "%s %s not installed: %s\n",
			WarningStyle.Render("?"), task.FileName, task.Err)
	default:
		fmt.Fprintf(w, "%s %s failed while %s: %s\n",
			ErrorStyle.Render("✗"), task.FileName, task.FailedAt, task.Err)
	}
}

// renderSummary prints the totals of a run.
func renderSummary(w io.Writer, s pipeline.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Summary"))
	fmt.Fprintf(w, "  %s %d\n", labelStyle.Render("processed:"), s.Processed)
	fmt.Fprintf(w, "  %s %s", labelStyle.Render("completed:"), SuccessStyle.Render(fmt.Sprint(s.Completed)))
	if s.Unchanged > 0 {
		fmt.Fprintf(w, " %s", SubtitleStyle.Render(fmt.Sprintf("(%d unchanged)", s.Unchanged)))
	}
	fmt.Fprintln(w)

	failed := fmt.Sprint(s.Failed)
	if s.Failed > 0 {
		failed = ErrorStyle.Render(failed)
	}
	fmt.Fprintf(w, "  %s %s", labelStyle.Render("failed:"), failed)
	var detail []string
	if s.Ambiguous > 0 {
		detail = append(detail, fmt.Sprintf("%d ambiguous", s.Ambiguous))
	}
	if s.TimedOut > 0 {
		detail = append(detail, fmt.Sprintf("%d timed out", s.TimedOut))
	}
	if len(detail) > 0 {
		fmt.Fprintf(w, " %s", SubtitleStyle.Render("("+strings.Join(detail, ", ")+")"))
	}
	fmt.Fprintln(w)

	if s.Warnings > 0 {
		fmt.Fprintf(w, "  %s %s\n", labelStyle.Render("warnings:"), WarningStyle.Render(fmt.Sprint(s.Warnings)))
	}

	if len(s.Stages) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Stage timings"))
	for _, stage := range pipeline.Stages() {
		timing, ok := s.Stages[stage]
		if !ok || timing.Count == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-12s %3d × avg %s\n", stage, timing.Count, timing.Average().Round(time.Millisecond))
	}
}

// issueFor picks the catalog entry that explains a task failure.
func issueFor(err error) issue.Id {
	switch {
	case errors.Is(err, pipeline.ErrTaskTimeout):
		return issue.TaskTimeoutId
	case errors.Is(err, fs.ErrPermission):
		return issue.PermissionDeniedId
	case errors.Is(err, classify.ErrAmbiguous):
		return issue.ClassificationAmbiguousId
	case errors.Is(err, archive.ErrExtraction):
		return issue.ExtractionFailedId
	case errors.Is(err, install.ErrInstall):
		return issue.InstallFailedId
	default:
		return 0
	}
}
