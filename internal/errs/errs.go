package errs

import (
	"errors"
	"net/http"
)

// Code is an application error code.
type Code string

const (
	InvalidInput   Code = "invalid_input"
	NotFound       Code = "not_found"
	StorageFailure Code = "storage_failure"
	RateLimited    Code = "rate_limited"
	Internal       Code = "internal"
)

// Error is a coded application error. Field and Rule are set for
// InvalidInput errors and name the violated validation rule.
type Error struct {
	Code    Code
	Message string
	Field   string
	Rule    string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// Invalid creates an InvalidInput error for a single field.
func Invalid(field, rule, message string) error {
	return &Error{
		Code:    InvalidInput,
		Message: message,
		Field:   field,
		Rule:    rule,
	}
}

// Storage wraps a storage adapter failure with the name of the failed operation.
// The public message stays generic; the cause is kept for logs.
func Storage(op string, cause error) error {
	return &Error{
		Code:    StorageFailure,
		Message: "failed to " + op,
		Err:     cause,
	}
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	var coded *Error
	return errors.As(err, &coded) && coded.Code == code
}

// MessageOf returns a user-facing error message.
// Untyped errors and storage failures return a generic message so raw
// driver errors, file paths, or DSNs never reach API responses.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if !errors.As(err, &coded) || coded.Message == "" {
		return "internal error"
	}
	switch coded.Code {
	case StorageFailure:
		return "storage failure"
	case Internal:
		return "internal error"
	}
	return coded.Message
}

// FieldOf returns the offending field of an InvalidInput error, or "".
func FieldOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Field
	}
	return ""
}

// HTTPStatus maps error code to HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case InvalidInput:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
