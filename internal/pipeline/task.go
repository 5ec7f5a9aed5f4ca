// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ArchiveTask tracks one archive through the pipeline. A task is owned by
// the goroutine processing it.
type ArchiveTask struct {
	ID           string
	SourcePath   string
	FileName     string
	DiscoveredAt time.Time

	// Stage is the current stage.
	Stage Stage
	// FailedAt is the stage that failed when Stage is StageFailed.
	FailedAt Stage
	// Err is the failure cause when Stage is StageFailed.
	Err error
}

// NewTask creates a task in StageDiscovered for the archive at path.
func NewTask(path string, discoveredAt time.Time) *ArchiveTask {
	return &ArchiveTask{
		ID:           uuid.NewString(),
		SourcePath:   path,
		FileName:     filepath.Base(path),
		DiscoveredAt: discoveredAt,
		Stage:        StageDiscovered,
	}
}

// advance moves the task to next.
func (t *ArchiveTask) advance(next Stage) error {
	if !t.Stage.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Stage, next)
	}
	t.Stage = next
	return nil
}

// fail moves the task to StageFailed, remembering the stage that failed.
func (t *ArchiveTask) fail(err error) {
	if t.Stage.IsTerminal() {
		return
	}
	t.FailedAt = t.Stage
	t.Stage = StageFailed
	t.Err = err
}
