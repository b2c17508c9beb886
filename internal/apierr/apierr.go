package apierr

import (
	"errors"
	"fmt"
)

// Error carries an HTTP-ish status and a stable machine code alongside the
// wrapped cause. Services return these; the API layer maps them to responses.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(format string, args ...any) *Error {
	return New(404, "not_found", fmt.Errorf(format, args...))
}

func Forbidden(format string, args ...any) *Error {
	return New(403, "forbidden", fmt.Errorf(format, args...))
}

func MethodNotAllowed(format string, args ...any) *Error {
	return New(405, "method_not_allowed", fmt.Errorf(format, args...))
}

func Validation(err error) *Error {
	return New(400, "validation", err)
}

func Upstream(err error) *Error {
	return New(502, "upstream", err)
}

// StatusOf extracts the status of an *Error chain, 500 otherwise.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status
	}
	return 500
}

// CodeOf extracts the machine code of an *Error chain, empty otherwise.
func CodeOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}
