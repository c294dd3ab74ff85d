// Package errors defines the error taxonomy shared across the vault layer.
//
// Every rejection carries a class that tells the caller why the operation
// was refused and, via HTTPStatus, how to report it over the API. Rejected
// operations never leave partial state behind; rollback is the caller's
// responsibility and happens before the error propagates.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Class identifies the category of a rejection.
type Class string

const (
	// ClassValidation covers malformed input: non-positive amounts,
	// out-of-range rates, empty addresses.
	ClassValidation Class = "validation"

	// ClassUnauthorized covers missing role membership or failed
	// authentication.
	ClassUnauthorized Class = "unauthorized"

	// ClassPrecondition covers state preconditions: insufficient balance,
	// delay not elapsed, wrong generation, already initialized.
	ClassPrecondition Class = "precondition"

	// ClassExternal covers failures of the external asset ledger.
	ClassExternal Class = "external"

	// ClassReentrancy covers nested entry while the storage latch is held.
	ClassReentrancy Class = "reentrancy"

	// ClassNotFound covers lookups of unknown resources.
	ClassNotFound Class = "not_found"
)

// Error is the vault layer's error type.
type Error struct {
	Class   Class
	Message string
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error of the same class.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Class == other.Class && (other.Message == "" || other.Message == e.Message)
}

// WithDetails attaches a key/value pair to the error and returns it.
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause attaches an underlying error and returns it.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// HTTPStatus maps the error class to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Class {
	case ClassValidation:
		return http.StatusBadRequest
	case ClassUnauthorized:
		return http.StatusForbidden
	case ClassPrecondition:
		return http.StatusConflict
	case ClassExternal:
		return http.StatusBadGateway
	case ClassReentrancy:
		return http.StatusConflict
	case ClassNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Validation creates a validation error.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Class: ClassValidation, Message: fmt.Sprintf(format, args...)}
}

// Unauthorized creates an authorization error.
func Unauthorized(format string, args ...interface{}) *Error {
	return &Error{Class: ClassUnauthorized, Message: fmt.Sprintf(format, args...)}
}

// Precondition creates a state-precondition error.
func Precondition(format string, args ...interface{}) *Error {
	return &Error{Class: ClassPrecondition, Message: fmt.Sprintf(format, args...)}
}

// External wraps an asset-ledger failure.
func External(err error, format string, args ...interface{}) *Error {
	return &Error{Class: ClassExternal, Message: fmt.Sprintf(format, args...), cause: err}
}

// Reentrant creates a reentrancy violation error.
func Reentrant(format string, args ...interface{}) *Error {
	return &Error{Class: ClassReentrancy, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Class: ClassNotFound, Message: fmt.Sprintf(format, args...)}
}

// IsClass reports whether err is an *Error of the given class.
func IsClass(err error, class Class) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Class == class
}

// As is the standard errors.As, re-exported so callers of this package do
// not need a second errors import.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// ClassOf returns the class of err, or "internal" for errors outside the
// taxonomy.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return Class("internal")
}
