package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMatchNotFound is returned when no match record exists for an NDC
	ErrMatchNotFound = errors.New("match not found")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrServiceUnavailable is returned when the terminology service keeps
	// failing transiently after the retry ceiling
	ErrServiceUnavailable = errors.New("terminology service unavailable")

	// ErrBadQuery is returned when the terminology service rejects a request
	// or returns a response the client cannot decode
	ErrBadQuery = errors.New("terminology query rejected")

	// ErrStoreWrite is returned when persisting a match result fails
	ErrStoreWrite = errors.New("match store write failed")

	// ErrUnsupportedFormat is returned for unknown export formats
	ErrUnsupportedFormat = errors.New("unsupported export format")
)

// TransientError wraps a retryable terminology service failure (timeout,
// 5xx, 429). Callers treat it as "retry later", never as "no match".
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return ErrServiceUnavailable }

// PermanentError wraps a non-retryable terminology service failure (4xx other
// than 429, malformed response body). Callers treat it as "no match for this
// attempt" and record an unmatched result.
type PermanentError struct {
	Op     string
	Status int
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("permanent failure in %s (status %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("permanent failure in %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return ErrBadQuery }

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
