package jobstate

import (
	"context"
	"errors"
)

// CancellationError is the outcome a driver returns when a job ended because
// the user asked it to stop. It is not a failure: callers branch on
// IsCancellation to render a neutral notice instead of an error.
type CancellationError struct {
	msg string
}

// NewCancellationError returns a CancellationError carrying msg.
func NewCancellationError(msg string) *CancellationError {
	return &CancellationError{msg: msg}
}

func (e *CancellationError) Error() string { return e.msg }

// Cancelled is always true. It marks the error as a user-initiated stop.
func (e *CancellationError) Cancelled() bool { return true }

// IsCancellation reports whether err, or anything it wraps, is a
// user-initiated stop.
func IsCancellation(err error) bool {
	var c interface{ Cancelled() bool }
	return errors.As(err, &c) && c.Cancelled()
}

// StopCause returns the CancellationError a run context was cancelled with, if
// any. A context cancelled for any other reason (parent shutdown, deadline)
// yields false.
func StopCause(ctx context.Context) (*CancellationError, bool) {
	var ce *CancellationError
	if errors.As(context.Cause(ctx), &ce) {
		return ce, true
	}
	return nil, false
}
