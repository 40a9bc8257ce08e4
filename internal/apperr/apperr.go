// internal/apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure. Validation-class codes are deterministic
// and safe to surface verbatim; CodeInternal covers storage and transport
// failures.
type Code string

const (
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeForbidden       Code = "forbidden"
	CodeInvalidArgument Code = "invalid_argument"
	CodeNotReady        Code = "not_ready"
	CodeInternal        Code = "internal"
)

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(CodeNotFound, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(CodeConflict, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(CodeForbidden, format, args...)
}

func InvalidArgument(format string, args ...interface{}) *Error {
	return newf(CodeInvalidArgument, format, args...)
}

func NotReady(format string, args ...interface{}) *Error {
	return newf(CodeNotReady, format, args...)
}

func Internal(format string, args ...interface{}) *Error {
	return newf(CodeInternal, format, args...)
}

// CodeOf extracts the Code from err, defaulting to CodeInternal for
// anything that isn't an *Error (e.g. raw pgx failures).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}
