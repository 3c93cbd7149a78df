package attempt

import (
	"errors"
	"fmt"
)

// ErrAttemptInFlight is returned by Retry when another attempt currently
// holds the delivery's claim.
var ErrAttemptInFlight = errors.New("delivery has an attempt in flight")

// PreAttemptError marks a failure before any HTTP request was made. These
// are terminal for the delivery and never retried.
type PreAttemptError struct {
	Code string // models.ErrorCode*
	err  error
}

func NewPreAttemptError(code string, err error) *PreAttemptError {
	return &PreAttemptError{Code: code, err: err}
}

func (e *PreAttemptError) Error() string {
	return fmt.Sprintf("pre-attempt error: %v", e.err)
}

func (e *PreAttemptError) Unwrap() error {
	return e.err
}

// AttemptError marks a failed HTTP attempt. Retryable decides whether the
// delivery goes back on the schedule; StatusCode is the receiver's reply
// status when one was received.
type AttemptError struct {
	Code       string // models.ErrorCode*
	Retryable  bool
	StatusCode int // 0 when no response was received
	err        error
}

func NewAttemptError(code string, retryable bool, statusCode int, err error) *AttemptError {
	return &AttemptError{Code: code, Retryable: retryable, StatusCode: statusCode, err: err}
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("attempt error: %v", e.err)
}

func (e *AttemptError) Unwrap() error {
	return e.err
}
