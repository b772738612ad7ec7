package game

import (
	"errors"
	"fmt"
)

// Code classifies a failed operation. The values double as the wire error codes of the API.
type Code string

const (
	CodeIllegalTransition Code = "illegal_transition"
	CodePermissionDenied  Code = "permission_denied"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeInvalidArgument   Code = "invalid_argument"
	CodeUploadFailure     Code = "upload_failure"
	CodeUnavailable       Code = "unavailable"
	CodeUnauthenticated   Code = "unauthenticated"
	CodeInternal          Code = "internal"
)

// Error is a classified failure of a game operation.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrInvalidTurn is returned when an action does not fit the current phase or turn holder.
var ErrInvalidTurn = newError(CodeIllegalTransition, "invalid turn")

func IllegalTransition(format string, args ...interface{}) *Error {
	return newError(CodeIllegalTransition, format, args...)
}

func PermissionDenied(format string, args ...interface{}) *Error {
	return newError(CodePermissionDenied, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(CodeNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newError(CodeConflict, format, args...)
}

func InvalidArgument(format string, args ...interface{}) *Error {
	return newError(CodeInvalidArgument, format, args...)
}

// UploadFailure wraps a transport error raised while storing a video.
func UploadFailure(err error, format string, args ...interface{}) *Error {
	e := newError(CodeUploadFailure, format, args...)
	e.Err = err
	return e
}

// Unavailable wraps an infrastructure error that the caller may retry.
func Unavailable(err error, format string, args ...interface{}) *Error {
	e := newError(CodeUnavailable, format, args...)
	e.Err = err
	return e
}

// CodeOf returns the classification of err, or CodeInternal if err is not a *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode reports whether err is classified as code.
func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
