package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error type mapped to process exit codes
// and HTTP statuses.
type Code int

const (
	CodeSuccess     Code = 0
	CodeInternal    Code = 1
	CodeUsage       Code = 2
	CodeAuth        Code = 10
	CodeRateLimited Code = 11
	CodeUnavailable Code = 12
	CodeUnsupported Code = 13
	CodeNotFound    Code = 14
	CodeBlocked     Code = 16
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func CodeOf(err error) Code {
	if err == nil {
		return CodeSuccess
	}
	if cErr, ok := As(err); ok {
		return cErr.Code
	}
	return CodeInternal
}

func ExitCode(err error) int {
	return int(CodeOf(err))
}

// TypeName is the snake_case error type used in envelopes and API bodies.
func TypeName(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeAuth:
		return "auth_error"
	case CodeRateLimited:
		return "rate_limited"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeNotFound:
		return "not_found"
	case CodeBlocked:
		return "action_blocked"
	default:
		return "internal_error"
	}
}

func HTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeSuccess:
		return http.StatusOK
	case CodeUsage:
		return http.StatusBadRequest
	case CodeAuth, CodeBlocked:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnavailable:
		return http.StatusBadGateway
	case CodeUnsupported:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
