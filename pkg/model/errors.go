package model

import "errors"

// NonRetryableError marks a handler failure that the orchestrator must not
// retry. The runner reports it as FAILED_WITH_TERMINAL_ERROR; any other
// handler error is reported as FAILED and left to server retry policy.
type NonRetryableError struct {
	cause error
}

// NewNonRetryableError wraps err as a terminal handler failure.
func NewNonRetryableError(err error) *NonRetryableError {
	return &NonRetryableError{cause: err}
}

func (e *NonRetryableError) Error() string {
	if e.cause == nil {
		return "non-retryable error"
	}
	return e.cause.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.cause
}

// IsNonRetryable reports whether err is (or wraps) a NonRetryableError.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}
