package apperr

import (
	"errors"
	"fmt"
)

// ErrInvalid is returned when the input fails domain validation.
var ErrInvalid = errors.New("invalid input")

// ErrConflict indicates a uniqueness or state conflict (HTTP 409).
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates that the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Code classifies dispatch failures.
type Code string

// Error taxonomy.
const (
	CodeAlreadyActive         Code = "ALREADY_ACTIVE"
	CodeAlreadyTaken          Code = "ALREADY_TAKEN"
	CodeCannotCancel          Code = "CANNOT_CANCEL"
	CodeExpired               Code = "EXPIRED"
	CodeSerializationConflict Code = "SERIALIZATION_CONFLICT"
	CodeLockUnavailable       Code = "LOCK_UNAVAILABLE"
)

// Error is a typed business or coordination failure.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so errors.Is(err, apperr.AlreadyActive) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels usable with errors.Is.
var (
	AlreadyActive         = &Error{Code: CodeAlreadyActive, Message: "customer already has an active request"}
	AlreadyTaken          = &Error{Code: CodeAlreadyTaken, Message: "no longer available"}
	CannotCancel          = &Error{Code: CodeCannotCancel, Message: "request can no longer be cancelled"}
	Expired               = &Error{Code: CodeExpired, Message: "request expired"}
	SerializationConflict = &Error{Code: CodeSerializationConflict, Message: "please try again", Retryable: true}
	LockUnavailable       = &Error{Code: CodeLockUnavailable, Message: "please try again", Retryable: true}
)

// New builds a typed error; retryability follows the code.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Retryable: code == CodeSerializationConflict || code == CodeLockUnavailable}
}

// Wrap attaches a cause to a typed error.
func Wrap(code Code, msg string, err error) *Error {
	e := New(code, msg)
	e.Err = err
	return e
}

// CodeOf extracts the taxonomy code, or "" for untyped errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether the caller may retry the operation.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
