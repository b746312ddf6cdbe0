package astro

import (
	"errors"
	"fmt"
)

// Sentinel errors raised by the pipeline layers. Match with errors.Is.
var (
	// ErrEmptyInput means a stage received zero events.
	ErrEmptyInput = errors.New("empty event sequence")
	// ErrDegenerateThreshold means no strictly-positive frame cells exist,
	// so the threshold percentile is undefined.
	ErrDegenerateThreshold = errors.New("no positive cells in accumulated frame")
	// ErrEmptyRegion means a labelled region received no events.
	ErrEmptyRegion = errors.New("labelled region has no events")
	// ErrOutOfBounds means a warped event fell outside the frame. This is a
	// sizing bug, never clamped.
	ErrOutOfBounds = errors.New("warped event outside frame bounds")
	// ErrInvalidVelocity means a drift rate is NaN or infinite.
	ErrInvalidVelocity = errors.New("drift velocity is not finite")
	// ErrFrameTooLarge means the drift-enlarged frame exceeds the
	// accumulation grid limit.
	ErrFrameTooLarge = errors.New("frame exceeds accumulation grid limit")
)

// Stage names used in StageError.
const (
	StageDewarp     = "dewarp"
	StageAccumulate = "accumulate"
	StageThreshold  = "threshold"
	StageLabel      = "label"
	StageProject    = "project"
	StageCentroid   = "centroid"
	StageSolve      = "solve"
)

// StageError carries the diagnostic context of a pipeline failure: the
// stage that raised it and, where relevant, the offending label or event
// index. Label and Index are -1 when not applicable.
type StageError struct {
	Stage string
	Label int
	Index int
	Err   error
}

func (e *StageError) Error() string {
	switch {
	case e.Label >= 0:
		return fmt.Sprintf("%s: label %d: %v", e.Stage, e.Label, e.Err)
	case e.Index >= 0:
		return fmt.Sprintf("%s: event %d: %v", e.Stage, e.Index, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

// NewStageError wraps err for stage with no label or index context.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Label: -1, Index: -1, Err: err}
}

// IndexError wraps err for stage with the offending event index.
func IndexError(stage string, index int, err error) *StageError {
	return &StageError{Stage: stage, Label: -1, Index: index, Err: err}
}

// LabelError wraps err for stage with the offending label.
func LabelError(stage string, label int, err error) *StageError {
	return &StageError{Stage: stage, Label: label, Index: -1, Err: err}
}
