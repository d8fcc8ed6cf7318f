package parkwatch

import (
	"context"
	"errors"
	"fmt"
)

// ResultKind is the variant tag of a [ProbeResult].
//
// ResultKind is a string type so results read naturally in logs, JSON
// payloads and metric labels.
type ResultKind string

const (
	// ResultAvailable means the status element shows something other than
	// the sold-out marker. It is the only result that ends polling.
	ResultAvailable ResultKind = "available"

	// ResultSoldOut means the status element contains the sold-out marker.
	ResultSoldOut ResultKind = "sold_out"

	// ResultNotFound means no status element could be read, for example
	// because the calendar for the month is not open yet or the page is
	// still loading.
	ResultNotFound ResultKind = "not_found"

	// ResultTransient means the probe failed with a retryable fault.
	// [ProbeResult.Fault] says which one.
	ResultTransient ResultKind = "transient_error"
)

// String returns the string representation of the kind.
func (k ResultKind) String() string {
	return string(k)
}

// FaultKind is the closed set of transient collaborator faults.
type FaultKind string

const (
	// FaultStaleReference means the status element was replaced while it
	// was being read. The monitor re-reads it before escalating.
	FaultStaleReference FaultKind = "stale_reference"

	// FaultTimeout means a page or element did not show up in time.
	FaultTimeout FaultKind = "timeout"

	// FaultUnexpected is the catch-all for anything unclassifiable. It is
	// still retried; the original error is kept for logging.
	FaultUnexpected FaultKind = "unexpected"
)

// String returns the string representation of the fault kind.
func (f FaultKind) String() string {
	return string(f)
}

// Fault markers that [Portal] implementations wrap into their errors so the
// monitor can classify them. Match them with [errors.Is].
var (
	// ErrStaleReference marks an element that went stale mid-read.
	ErrStaleReference = errors.New("stale element reference")

	// ErrTimeout marks a navigation or element wait that ran out of time.
	ErrTimeout = errors.New("timed out waiting for page")

	// ErrElementNotFound marks a missing status element. It produces
	// [ResultNotFound] rather than a transient fault.
	ErrElementNotFound = errors.New("status element not found")

	// ErrDateNotOffered is fatal: the calendar for the month is open but the
	// requested day is not on it. Polling stops.
	ErrDateNotOffered = errors.New("date not offered by the portal")
)

// ProbeResult is the outcome of a single probe.
//
// A ProbeResult is produced fresh by every probe and never modified. Text
// holds the raw status text when one was read; Err holds the collaborator
// error for [ResultNotFound] and [ResultTransient] results, if any.
type ProbeResult struct {
	Kind  ResultKind
	Fault FaultKind
	Text  string
	Err   error
}

// String renders the result for log lines.
func (r ProbeResult) String() string {
	switch r.Kind {
	case ResultTransient:
		if r.Err != nil {
			return fmt.Sprintf("%s(%s): %v", r.Kind, r.Fault, r.Err)
		}
		return fmt.Sprintf("%s(%s)", r.Kind, r.Fault)
	case ResultAvailable, ResultSoldOut:
		return fmt.Sprintf("%s: %q", r.Kind, r.Text)
	default:
		return string(r.Kind)
	}
}

// ClassifyFault maps a collaborator error into the closed fault set.
//
// Errors wrapping [ErrStaleReference] are stale references. Errors wrapping
// [ErrTimeout] or [context.DeadlineExceeded] are timeouts. Everything else
// is [FaultUnexpected].
func ClassifyFault(err error) FaultKind {
	switch {
	case errors.Is(err, ErrStaleReference):
		return FaultStaleReference
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FaultTimeout
	default:
		return FaultUnexpected
	}
}

// IsFatal reports whether a collaborator error must stop polling.
func IsFatal(err error) bool {
	return errors.Is(err, ErrDateNotOffered)
}
