package domain

import "errors"

var (
	// ErrJobNotFound is returned when a batch job record cannot be found
	ErrJobNotFound = errors.New("batch job not found")

	// ErrVersionConflict is returned when a conditional job write loses to a concurrent writer
	ErrVersionConflict = errors.New("batch job version conflict")

	// ErrItemNotFound is returned by the item directory when the item does not exist
	ErrItemNotFound = errors.New("item not found")

	// ErrInstitutionNotFound is returned when an institution code has no record
	ErrInstitutionNotFound = errors.New("institution not found")

	// ErrUnknownCategory is returned when no category is registered under a name
	ErrUnknownCategory = errors.New("unknown category")

	// ErrInvalidBatchMessage is returned when a batch message body is malformed
	ErrInvalidBatchMessage = errors.New("invalid batch message")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
