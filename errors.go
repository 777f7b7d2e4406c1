package uow

import (
	"errors"
	"fmt"
)

// =====================================
// Error Handling
// =====================================

// ErrorKind classifies failures surfaced by units of work, providers and repositories.
type ErrorKind string

const (
	// ErrorKindConfiguration means a factory, repository or instance was not registered.
	ErrorKindConfiguration ErrorKind = "configuration"
	// ErrorKindNotFound means a single-result query matched zero rows.
	ErrorKindNotFound ErrorKind = "not_found"
	// ErrorKindMultipleResults means a single-result query matched more than one row.
	ErrorKindMultipleResults ErrorKind = "multiple_results"
	// ErrorKindResource means a connection or transaction could not be opened,
	// committed or rolled back.
	ErrorKindResource ErrorKind = "resource"
	// ErrorKindDisposed means a method was called after the owner was closed.
	ErrorKindDisposed ErrorKind = "disposed"

	ErrorKindInvalidArgument ErrorKind = "invalid_argument"
	ErrorKindDuplicate       ErrorKind = "duplicate"
	ErrorKindConstraint      ErrorKind = "constraint"
	ErrorKindTimeout         ErrorKind = "timeout"
	ErrorKindUnsupported     ErrorKind = "unsupported"
)

// Error is the typed failure carried by every operation in this module.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
	Code    string
}

// Error implements the error interface
func (e Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an Error of the same kind.
func (e Error) Is(target error) bool {
	if t, ok := target.(Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// NewError creates a new Error
func NewError(kind ErrorKind, message string) Error {
	return Error{
		Kind:    kind,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping cause
func NewErrorWithCause(kind ErrorKind, message string, cause error) Error {
	return Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// NewErrorWithCode creates a new Error with an engine specific code
func NewErrorWithCode(kind ErrorKind, message string, code string) Error {
	return Error{
		Kind:    kind,
		Message: message,
		Code:    code,
	}
}

// IsKind reports whether err, or any error it wraps, is an Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsConfiguration checks if an error is a "configuration" error
func IsConfiguration(err error) bool {
	return IsKind(err, ErrorKindConfiguration)
}

// IsNotFound checks if an error is a "not found" error
func IsNotFound(err error) bool {
	return IsKind(err, ErrorKindNotFound)
}

// IsMultipleResults checks if an error is a "multiple results" error
func IsMultipleResults(err error) bool {
	return IsKind(err, ErrorKindMultipleResults)
}

// IsResource checks if an error is a "resource" error
func IsResource(err error) bool {
	return IsKind(err, ErrorKindResource)
}

// IsDisposed checks if an error is a "disposed" error
func IsDisposed(err error) bool {
	return IsKind(err, ErrorKindDisposed)
}

var (
	errProviderClosed   = NewError(ErrorKindDisposed, "provider is closed")
	errUnitOfWorkClosed = NewError(ErrorKindDisposed, "unit of work is closed")
	errTxFinished       = NewError(ErrorKindResource, "transaction already rolled back")
)
