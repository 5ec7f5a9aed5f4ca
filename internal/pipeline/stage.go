// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"fmt"
	"slices"
)

const (
	// StageDiscovered is the initial stage of every task.
	StageDiscovered Stage = "discovered"
	// StageExtracting unpacks the archive into scratch space.
	StageExtracting Stage = "extracting"
	// StageClassifying decides the module category.
	StageClassifying Stage = "classifying"
	// StageInstalling copies the module into its category directory.
	StageInstalling Stage = "installing"
	// StageRegistering records the module in the registry.
	StageRegistering Stage = "registering"
	// StageCompleted is terminal: the module is installed.
	StageCompleted Stage = "completed"
	// StageFailed is terminal: see ArchiveTask.FailedAt for where.
	StageFailed Stage = "failed"
)

var (
	// ErrInvalidStage is returned when a Stage value is not recognized.
	ErrInvalidStage = errors.New("invalid stage")
	// ErrInvalidTransition is returned when a task is moved to a stage that
	// cannot follow its current one.
	ErrInvalidTransition = errors.New("invalid stage transition")

	// transitions lists the stages reachable from each non-terminal stage.
	// Every non-terminal stage may also fail.
	transitions = map[Stage][]Stage{
		StageDiscovered:  {StageExtracting},
		StageExtracting:  {StageClassifying},
		StageClassifying: {StageInstalling, StageCompleted},
		StageInstalling:  {StageRegistering, StageCompleted},
		StageRegistering: {StageCompleted},
	}
)

type (
	// Stage is a step of the per-archive state machine.
	Stage string

	// InvalidStageError is returned when a Stage value is not recognized.
	InvalidStageError struct {
		Value Stage
	}
)

// Stages returns the non-failed stages in pipeline order.
func Stages() []Stage {
	return []Stage{
		StageDiscovered, StageExtracting, StageClassifying,
		StageInstalling, StageRegistering, StageCompleted,
	}
}

// String returns the string representation of the Stage.
func (s Stage) String() string { return string(s) }

// IsValid returns whether the Stage is a defined stage.
func (s Stage) IsValid() (bool, []error) {
	if s == StageFailed || slices.Contains(Stages(), s) {
		return true, nil
	}
	return false, []error{&InvalidStageError{Value: s}}
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// CanTransition reports whether a task in s may move to next.
func (s Stage) CanTransition(next Stage) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StageFailed {
		return true
	}
	return slices.Contains(transitions[s], next)
}

// Error implements the error interface for InvalidStageError.
func (e *InvalidStageError) Error() string {
	return fmt.Sprintf("invalid stage %q", e.Value)
}

// Unwrap returns ErrInvalidStage for errors.Is() compatibility.
func (e *InvalidStageError) Unwrap() error { return ErrInvalidStage }
