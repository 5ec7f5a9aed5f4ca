// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"sync"
	"time"

	"github.com/invowk/ingest/pkg/types"
)

type (
	// Stats accumulates outcomes. Safe for concurrent use.
	Stats struct {
		mu      sync.Mutex
		summary Summary
	}

	// Summary is a snapshot of Stats.
	Summary struct {
		Processed int
		Completed int
		// Unchanged counts completed tasks whose install changed nothing.
		Unchanged int
		Failed    int
		// Ambiguous and TimedOut are subsets of Failed.
		Ambiguous int
		TimedOut  int
		// Warnings counts registry and cleanup failures on completed tasks.
		Warnings int
		// FailedAt counts failures by the stage that failed.
		FailedAt map[Stage]int
		// Stages sums the time spent in each stage.
		Stages map[Stage]StageTiming
	}

	// StageTiming is the accumulated time spent in a stage.
	StageTiming struct {
		Count int
		Total time.Duration
	}
)

// Record adds an outcome.
func (s *Stats) Record(o *Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := &s.summary
	if sum.FailedAt == nil {
		sum.FailedAt = make(map[Stage]int)
		sum.Stages = make(map[Stage]StageTiming)
	}

	sum.Processed++
	switch {
	case o.Succeeded():
		sum.Completed++
		if o.Install != nil && !o.Install.Changed {
			sum.Unchanged++
		}
	default:
		sum.Failed++
		sum.FailedAt[o.Task.FailedAt]++
		if o.Ambiguous() {
			sum.Ambiguous++
		}
		if o.TimedOut() {
			sum.TimedOut++
		}
	}
	sum.Warnings += len(o.Warnings)

	for stage, d := range o.Durations {
		st := sum.Stages[stage]
		st.Count++
		st.Total += d
		sum.Stages[stage] = st
	}
}

// Snapshot returns a copy of the accumulated counts.
func (s *Stats) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.summary
	out.FailedAt = make(map[Stage]int, len(s.summary.FailedAt))
	for k, v := range s.summary.FailedAt {
		out.FailedAt[k] = v
	}
	out.Stages = make(map[Stage]StageTiming, len(s.summary.Stages))
	for k, v := range s.summary.Stages {
		out.Stages[k] = v
	}
	return out
}

// ExitCode maps the summary to the process exit code: any failed task is a
// failure.
func (s Summary) ExitCode() types.ExitCode {
	if s.Failed > 0 {
		return types.ExitTaskFailed
	}
	return types.ExitSuccess
}

// Average returns the mean stage duration.
func (t StageTiming) Average() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}
