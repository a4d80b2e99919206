package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration rejects a scan request before any state exists.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrNotFound signals an unknown audit run or finding id.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition signals a finding status change outside the
	// forward-only transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConcurrentUpdate signals a legal update that kept losing to
	// concurrent writers. The request can be retried as-is.
	ErrConcurrentUpdate = errors.New("concurrent update")
)

// AnalysisError classifies a failure of the external analysis capability.
// Transient failures are retried with backoff; permanent ones fail the run
// immediately.
type AnalysisError struct {
	Transient bool
	Err       error
}

func (e *AnalysisError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("analysis failed (%s): %v", kind, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

func NewTransientAnalysisError(err error) error {
	return &AnalysisError{Transient: true, Err: err}
}

func NewPermanentAnalysisError(err error) error {
	return &AnalysisError{Transient: false, Err: err}
}

// IsTransientAnalysis reports whether err is a retryable analysis failure.
func IsTransientAnalysis(err error) bool {
	var ae *AnalysisError
	return errors.As(err, &ae) && ae.Transient
}
