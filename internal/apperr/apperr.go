// Package apperr carries the error taxonomy shared by the procedure pipeline,
// the domain services and the RPC surface. Callers may branch on Code only.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code tags a failure. The string values are the wire codes.
type Code string

const (
	CodeUnauthenticated Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeBadRequest      Code = "BAD_REQUEST"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL_SERVER_ERROR"

	// Codes a transport may produce on its own.
	CodeClientClosedRequest Code = "CLIENT_CLOSED_REQUEST"
	CodeTimeout             Code = "TIMEOUT"
	CodeTooManyRequests     Code = "TOO_MANY_REQUESTS"
)

var retryable = map[Code]bool{
	CodeClientClosedRequest: true,
	CodeConflict:            true,
	CodeInternal:            true,
	CodeTimeout:             true,
	CodeTooManyRequests:     true,
}

// Retryable reports whether a caller may retry a request that failed with code.
func Retryable(code Code) bool {
	return retryable[code]
}

// HTTPStatus maps a code to the status the RPC surface responds with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeClientClosedRequest:
		return 499
	case CodeTimeout:
		return http.StatusRequestTimeout
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromStatus is the inverse of HTTPStatus, used by clients that only see a status.
func CodeFromStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthenticated
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusConflict:
		return CodeConflict
	case 499:
		return CodeClientClosedRequest
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return CodeTimeout
	case http.StatusTooManyRequests:
		return CodeTooManyRequests
	default:
		return CodeInternal
	}
}

// Error is a tagged failure.
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

func (e *Error) Unwrap() error { return e.Err }

func newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(format string, args ...interface{}) *Error {
	return newf(CodeUnauthenticated, format, args...)
}

func Forbidden(format string, args ...interface{}) *Error {
	return newf(CodeForbidden, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newf(CodeNotFound, format, args...)
}

func BadRequest(format string, args ...interface{}) *Error {
	return newf(CodeBadRequest, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return newf(CodeConflict, format, args...)
}

// Internal wraps an unexpected failure. The cause is kept for server-side
// logging and never shown to the caller.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// From converts any error into a tagged one, treating untagged errors as internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}
