// Package cerr defines stable error codes for codemind failure modes.
package cerr

import (
	"errors"
	"fmt"
)

// Code represents a stable error code for a failure mode
type Code string

const (
	// AnalyzerUnavailable indicates the analyzer call failed or the circuit is open
	AnalyzerUnavailable Code = "ANALYZER_UNAVAILABLE"
	// Timeout indicates an operation exceeded its wall-clock budget
	Timeout Code = "TIMEOUT"
	// CircuitOpen indicates the circuit breaker rejected a call with no fallback
	CircuitOpen Code = "CIRCUIT_OPEN"
	// PersistencePartial indicates some items failed to persist
	PersistencePartial Code = "PERSISTENCE_PARTIAL"
	// StorageFailure indicates the intelligence store failed
	StorageFailure Code = "STORAGE_FAILURE"
	// ConfigInvalid indicates configuration failed validation
	ConfigInvalid Code = "CONFIG_INVALID"
	// Internal indicates an unexpected error
	Internal Code = "INTERNAL_ERROR"
)

// Error is a codemind error with a stable code, message and optional cause.
type Error struct {
	Code    Code        `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates a new Error
func New(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails attaches a details payload to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of err if it is (or wraps) an *Error,
// or Internal otherwise.
func CodeOf(err error) Code {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Internal
}
