// Package errors provides structured error handling with context propagation and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/mindhaven/immerse/internal/domain"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeUnauthorized indicates a missing or failed authentication (HTTP 401)
	TypeUnauthorized ErrorType = "unauthorized"
	// TypeForbidden indicates a denied permission (HTTP 403)
	TypeForbidden ErrorType = "forbidden"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeGone indicates a session that was terminated or expired (HTTP 410)
	TypeGone ErrorType = "gone"
	// TypeUnsupported indicates a device or capability mismatch (HTTP 422)
	TypeUnsupported ErrorType = "unsupported"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
	// TypeExternal indicates external service error (HTTP 502/503)
	TypeExternal ErrorType = "external"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeUnauthorized:
		return http.StatusUnauthorized
	case TypeForbidden:
		return http.StatusForbidden
	case TypeNotFound:
		return http.StatusNotFound
	case TypeGone:
		return http.StatusGone
	case TypeUnsupported:
		return http.StatusUnprocessableEntity
	case TypeExternal:
		return http.StatusBadGateway
	case TypeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: message,
		Context: make(map[string]any),
	}
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return &Error{
		Type:    TypeNotFound,
		Message: message,
		Context: make(map[string]any),
	}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// ExternalError creates a new external service error (HTTP 502).
func ExternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeExternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// domainType maps engine sentinel errors onto error types. Unknown errors
// fall through to internal.
func domainType(err error) (ErrorType, bool) {
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return TypeUnauthorized, true
	case errors.Is(err, domain.ErrPermissionDenied):
		return TypeForbidden, true
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrPresentationNotFound),
		errors.Is(err, domain.ErrSceneSessionNotFound),
		errors.Is(err, domain.ErrLayerNotFound),
		errors.Is(err, domain.ErrObjectNotFound):
		return TypeNotFound, true
	case errors.Is(err, domain.ErrSessionTerminated),
		errors.Is(err, domain.ErrSessionExpired):
		return TypeGone, true
	case errors.Is(err, domain.ErrDeviceUnsupported):
		return TypeUnsupported, true
	case errors.Is(err, domain.ErrRenderContextUnavailable):
		return TypeExternal, true
	}
	return TypeInternal, false
}

// AsStructuredError converts any error into a structured Error.
// If err is already an *Error, returns it unchanged. Engine sentinel errors
// map to their HTTP-facing type; anything else becomes an internal error.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	if errType, ok := domainType(err); ok {
		return &Error{
			Type:    errType,
			Message: err.Error(),
			Cause:   err,
			Context: make(map[string]any),
		}
	}

	return InternalError("internal server error", err)
}
