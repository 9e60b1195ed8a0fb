// Package apierr implements the error taxonomy of the platform's error-handling
// design: a typed kind plus message that every layer (REST, WS, gRPC) translates
// into its own wire shape.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind enumerates the taxonomy.
type Kind string

const (
	Authentication Kind = "AUTHENTICATION"
	Authorization  Kind = "AUTHORIZATION"
	Validation     Kind = "VALIDATION"
	NotFound       Kind = "NOT_FOUND"
	Conflict       Kind = "CONFLICT"
	Unavailable    Kind = "UNAVAILABLE"
	Internal       Kind = "INTERNAL"
)

// Error is the typed error every leaf function in this module returns instead
// of a bare error string, so intermediate layers can translate it without
// string matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts an *Error from err, if any exists in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to Internal for untyped errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// HTTPStatus maps a Kind to the REST status code the gateway should emit.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Authentication:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Body is the REST error response shape: {success:false, error, errorCode, category}.
type Body struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
	Category  Kind   `json:"category"`
}

// ToBody converts err into the REST wire shape.
func ToBody(err error) Body {
	kind := KindOf(err)
	msg := err.Error()
	if e, ok := As(err); ok {
		msg = e.Message
	}
	return Body{
		Success:   false,
		Error:     msg,
		ErrorCode: string(kind),
		Category:  kind,
	}
}
