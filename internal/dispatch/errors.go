package dispatch

import (
	"context"
	"errors"

	"triage-platform/internal/presence"
	"triage-platform/internal/queue"
	"triage-platform/internal/reports"
)

var (
	ErrAlreadyClaimed = errors.New("dispatch: call already claimed by another counselor")
	ErrNotOwner       = errors.New("dispatch: call is claimed by another counselor")
	ErrInvalidState   = errors.New("dispatch: call is not in the required state")
	ErrNotAvailable   = errors.New("dispatch: counselor is not available")
	ErrInvalidInput   = errors.New("dispatch: invalid input")

	// ErrAlreadyReported means another counselor's report already closed the
	// call. The call is evicted and the caller's payload is not stored.
	ErrAlreadyReported = errors.New("dispatch: call already reported by another counselor")

	// ErrPersistence wraps a report finalizer failure. The call stays claimed.
	ErrPersistence = errors.New("dispatch: report persistence failed")
)

// Code maps an error returned by the Dispatcher to a stable outcome label.
// It is used for metrics and API error codes.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPersistence):
		return "persistence_failed"
	case errors.Is(err, queue.ErrNotFound):
		return "not_found"
	case errors.Is(err, queue.ErrDuplicateID):
		return "duplicate_id"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrAlreadyReported):
		return "already_reported"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNotAvailable):
		return "not_available"
	case errors.Is(err, presence.ErrUnknownCounselor):
		return "unknown_counselor"
	case errors.Is(err, ErrInvalidInput), errors.Is(err, reports.ErrInvalidPayload):
		return "invalid_input"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
