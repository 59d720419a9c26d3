package render

import (
	"errors"
	"fmt"
)

// ErrorKind classifies terminal render failures. Kinds are persisted with the
// export record so the presentation layer can explain exactly what broke.
type ErrorKind string

const (
	KindFetchFailed    ErrorKind = "fetch_failed"
	KindTimeout        ErrorKind = "timeout"
	KindPlayback       ErrorKind = "playback_error"
	KindEmptyOutput    ErrorKind = "empty_output"
	KindOutputTooSmall ErrorKind = "output_too_small"
	KindInvalidPlan    ErrorKind = "invalid_plan"
)

// Sentinels wrapped by the loader, player, and sink. The orchestrator
// classifies failures with KindOf instead of matching strings.
var (
	ErrFetchFailed    = errors.New("fetch failed")
	ErrLoadTimeout    = errors.New("load timed out")
	ErrPlayback       = errors.New("playback error")
	ErrEmptyOutput    = errors.New("encoder produced no output")
	ErrOutputTooSmall = errors.New("encoder output implausibly small")
	ErrInvalidPlan    = errors.New("invalid edit plan")

	// ErrRenderInFlight is returned when a second export is triggered while
	// one render job is already running on the engine.
	ErrRenderInFlight = errors.New("a render job is already in flight")
)

// SegmentScoped reports whether the kind describes a failure of one
// particular segment. Plan validation and finalize failures belong to the
// job as a whole even though the engine records which segment was last in
// flight.
func (k ErrorKind) SegmentScoped() bool {
	switch k {
	case KindFetchFailed, KindTimeout, KindPlayback:
		return true
	}
	return false
}

// KindOf maps a wrapped sentinel to its kind. Unrecognized errors classify
// as playback failures: they can only surface mid-segment.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrLoadTimeout):
		return KindTimeout
	case errors.Is(err, ErrFetchFailed):
		return KindFetchFailed
	case errors.Is(err, ErrEmptyOutput):
		return KindEmptyOutput
	case errors.Is(err, ErrOutputTooSmall):
		return KindOutputTooSmall
	case errors.Is(err, ErrInvalidPlan):
		return KindInvalidPlan
	default:
		return KindPlayback
	}
}

// SegmentError is the structured failure of a render job: which segment
// broke and why. Segment 0 is the trimmed main clip; segment i>0 is the
// (i-1)-th merge-queue entry. Segment -1 means the job failed before any
// segment was rendered.
type SegmentError struct {
	Segment int
	Kind    ErrorKind
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d: %s: %v", e.Segment, e.Kind, e.Err)
}

func (e *SegmentError) Unwrap() error {
	return e.Err
}
