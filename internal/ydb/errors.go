package ydb

import (
	"errors"
	"fmt"
)

// Code categorizes the result of a store operation.
type Code string

const (
	CodeOK               Code = "ok"
	CodeInvalidArgument  Code = "invalid-argument"
	CodeTypeMismatch     Code = "type-mismatch"
	CodeNoEntry          Code = "no-entry"
	CodeMergeFailed      Code = "merge-failed"
	CodeSystemFailure    Code = "system-failure"
	CodeConnectionFailed Code = "connection-failed"
	CodeConnectionClosed Code = "connection-closed"
	CodeConnectionDenied Code = "connection-denied"
	CodeInvalidMessage   Code = "invalid-message"
	CodeEntryExists      Code = "entry-exists"
	CodeNoConnection     Code = "no-connection"
	CodeDeleteDenied     Code = "delete-denied"

	// CodeTimeout is a warning: the operation completed locally but some
	// peer did not answer before the deadline.
	CodeTimeout Code = "timeout"
)

// Error is the error type returned by store operations.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Op names the failed operation ("write", "connect", ...).
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// newError creates an Error for op.
func newError(code Code, op string, err error, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf returns the Code carried by err: CodeOK for nil, CodeSystemFailure
// for errors that are not an *Error.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeSystemFailure
}

// IsCode reports whether err carries code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsTimeout reports whether err is the timeout warning of a sync or init.
func IsTimeout(err error) bool {
	return IsCode(err, CodeTimeout)
}

// IsNotFound reports whether err is a missing-entry error.
func IsNotFound(err error) bool {
	return IsCode(err, CodeNoEntry)
}
