// Package apperr defines the API error taxonomy. Every failure that reaches
// the HTTP layer is either an *Error (mapped to its status and type) or an
// unexpected error that is reported as an InternalError.
package apperr

import (
	"errors"
	"net/http"
)

// Type names the error category. The string value is what clients see in
// the "type" field of the error envelope.
type Type string

const (
	TypeValidation     Type = "ValidationError"
	TypeAuthentication Type = "AuthenticationError"
	TypeAuthorization  Type = "AuthorizationError"
	TypeNotFound       Type = "NotFoundError"
	TypeRateLimit      Type = "RateLimitError"
	TypeDatabase       Type = "DatabaseError"
	TypeInternal       Type = "InternalError"
)

// Status returns the HTTP status code for the error type.
func (t Type) Status() int {
	switch t {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeAuthentication:
		return http.StatusUnauthorized
	case TypeAuthorization:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified API error. Details is optional structured context
// (for example the conflicting field of a uniqueness violation). Err is the
// underlying cause and is never serialized.
type Error struct {
	Type    Type
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for e.
func (e *Error) Status() int {
	return e.Type.Status()
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details interface{}) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Validation reports malformed or conflicting input (400).
func Validation(message string) *Error {
	if message == "" {
		message = "Validation error"
	}
	return &Error{Type: TypeValidation, Message: message}
}

// Authentication reports missing or bad credentials (401).
func Authentication(message string) *Error {
	if message == "" {
		message = "Authentication required"
	}
	return &Error{Type: TypeAuthentication, Message: message}
}

// Authorization reports valid credentials lacking privileges (403).
func Authorization(message string) *Error {
	if message == "" {
		message = "Insufficient permissions"
	}
	return &Error{Type: TypeAuthorization, Message: message}
}

// NotFound reports that resource does not exist (404).
func NotFound(resource string) *Error {
	if resource == "" {
		resource = "Resource"
	}
	return &Error{Type: TypeNotFound, Message: resource + " not found"}
}

// RateLimit reports that the caller must back off (429).
func RateLimit(message string) *Error {
	if message == "" {
		message = "Too many requests"
	}
	return &Error{Type: TypeRateLimit, Message: message}
}

// Database wraps a persistence failure (500).
func Database(message string, err error) *Error {
	if message == "" {
		message = "Database operation failed"
	}
	return &Error{Type: TypeDatabase, Message: message, Err: err}
}

// Internal wraps an unexpected failure (500).
func Internal(message string, err error) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return &Error{Type: TypeInternal, Message: message, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Is reports whether err carries an *Error of type t.
func Is(err error, t Type) bool {
	e, ok := As(err)
	return ok && e.Type == t
}
