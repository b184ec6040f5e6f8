package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error identifier the API contract
// promises to clients. Handlers map codes, never raw errors, to HTTP
// responses.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata drives how a code renders over HTTP. DetailsAllowed gates
// whether structured details ever leave the process for that code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

// MetadataFor resolves the HTTP rendering for a code. Unknown codes
// collapse to internal so a missing entry can never leak a 200.
func MetadataFor(code Code) Metadata {
	switch code {
	case CodeValidation:
		return Metadata{http.StatusBadRequest, false, "validation failed", true}
	case CodeUnauthorized:
		return Metadata{http.StatusUnauthorized, false, "authentication required", false}
	case CodeForbidden:
		return Metadata{http.StatusForbidden, false, "access denied", false}
	case CodeNotFound:
		return Metadata{http.StatusNotFound, false, "resource not found", false}
	case CodeConflict:
		// stock conflicts carry the current available count for the UI
		return Metadata{http.StatusConflict, false, "conflict detected", true}
	case CodeStateConflict:
		return Metadata{http.StatusUnprocessableEntity, false, "state transition disallowed", true}
	case CodeIdempotency:
		return Metadata{http.StatusConflict, false, "idempotency key reused", true}
	case CodeRateLimit:
		return Metadata{http.StatusTooManyRequests, false, "rate limit exceeded", false}
	case CodeDependency:
		return Metadata{http.StatusServiceUnavailable, true, "upstream dependency failed", false}
	default:
		return Metadata{http.StatusInternalServerError, true, "internal server error", false}
	}
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
