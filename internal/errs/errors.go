// Package errs defines the typed errors returned by the lifecycle engine.
//
// Callers match on kind with errors.Is against the Err* sentinels, or pull the
// *Error out with errors.As to read the message.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure
type Kind string

const (
	KindValidation           Kind = "validation"
	KindTransition           Kind = "transition"
	KindRegistrarUnavailable Kind = "registrar_unavailable"
	KindConflict             Kind = "conflict"
	KindNotFound             Kind = "not_found"
	KindPersistence          Kind = "persistence"
)

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrTransition           = &Error{Kind: KindTransition}
	ErrRegistrarUnavailable = &Error{Kind: KindRegistrarUnavailable}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrPersistence          = &Error{Kind: KindPersistence}
)

// Error is a typed engine error
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation reports malformed input
func Validation(format string, args ...interface{}) *Error {
	return newf(KindValidation, nil, format, args...)
}

// Transition reports a status change the state machine does not permit
func Transition(format string, args ...interface{}) *Error {
	return newf(KindTransition, nil, format, args...)
}

// RegistrarUnavailable wraps an upstream registrar failure, keeping its message
func RegistrarUnavailable(err error, format string, args ...interface{}) *Error {
	return newf(KindRegistrarUnavailable, err, format, args...)
}

// Conflict reports an operation already in flight or a stale write
func Conflict(format string, args ...interface{}) *Error {
	return newf(KindConflict, nil, format, args...)
}

// NotFound reports a missing entity
func NotFound(format string, args ...interface{}) *Error {
	return newf(KindNotFound, nil, format, args...)
}

// Persistence wraps a failed store operation
func Persistence(err error, format string, args ...interface{}) *Error {
	return newf(KindPersistence, err, format, args...)
}

// KindOf returns the kind of err, or "" when err is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
