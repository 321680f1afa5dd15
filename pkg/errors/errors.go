// Package errors provides structured error types for the trek application.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the library, CLI, and write queue
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Codes
//
// Error codes follow a hierarchical naming convention:
//   - INVALID_*: Input validation failures
//   - NOT_*: Resolution and lookup failures
//   - PARAMETER_*: Leaf payload misuse
//   - STORAGE/QUEUE errors: persistence and writer failures
//
// # Usage
//
//	err := errors.New(errors.ErrCodeNotUniqueNode, "%q matches %d nodes", name, n)
//	if errors.Is(err, errors.ErrCodeNotUniqueNode) {
//	    // Handle ambiguous lookup
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeStorage, origErr, "store %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidName  Code = "INVALID_NAME"
	ErrCodeInvalidPath  Code = "INVALID_PATH"
	ErrCodeTypeMismatch Code = "TYPE_MISMATCH"

	// Resolution and lookup errors
	ErrCodeNotFound         Code = "NOT_FOUND"
	ErrCodeNotUniqueNode    Code = "NOT_UNIQUE_NODE"
	ErrCodeDataNotInStorage Code = "DATA_NOT_IN_STORAGE"
	ErrCodeNoRunBound       Code = "NO_RUN_BOUND"

	// Leaf payload errors
	ErrCodeParameterLocked   Code = "PARAMETER_LOCKED"
	ErrCodeParameterNotArray Code = "PARAMETER_NOT_ARRAY"
	ErrCodeLengthMismatch    Code = "LENGTH_MISMATCH"

	// Storage errors
	ErrCodeNoSuchService   Code = "NO_SUCH_SERVICE"
	ErrCodeVersionMismatch Code = "VERSION_MISMATCH"
	ErrCodeStorage         Code = "STORAGE_ERROR"

	// Write queue errors
	ErrCodeQueueClosed Code = "QUEUE_CLOSED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
