// Package errors provides structured error types and response helpers for the API.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/narvanalabs/locum/internal/lifecycle"
	"github.com/narvanalabs/locum/internal/notify"
)

// Error codes for structured API responses.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeStaleState       = "STALE_STATE"
	CodeHasDependents    = "HAS_DEPENDENTS"
	CodeInvalidOrExpired = "INVALID_OR_EXPIRED"
	CodeConflict         = "CONFLICT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// invitationRefusal is the only message an invitation response failure
// carries, whatever the underlying cause.
const invitationRefusal = "invitation is invalid or has expired"

// APIError represents a structured API error response.
type APIError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// WithDetails returns a copy of the error with additional details.
func (e *APIError) WithDetails(details map[string]any) *APIError {
	return &APIError{
		Code:      e.Code,
		Message:   e.Message,
		Details:   details,
		RequestID: e.RequestID,
	}
}

// WithRequestID returns a copy of the error with the request ID set.
func (e *APIError) WithRequestID(requestID string) *APIError {
	return &APIError{
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		RequestID: requestID,
	}
}

// New creates a new APIError with the given code and message.
func New(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *APIError {
	return New(CodeValidationError, message)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *APIError {
	return New(CodeNotFound, message)
}

// NewUnauthenticatedError creates an error for a missing or invalid session.
func NewUnauthenticatedError(message string) *APIError {
	return New(CodeUnauthenticated, message)
}

// NewUnauthorizedError creates an error for an actor lacking permission.
func NewUnauthorizedError(message string) *APIError {
	return New(CodeUnauthorized, message)
}

// NewInternalError creates an internal server error.
func NewInternalError(message string) *APIError {
	return New(CodeInternalError, message)
}

// NewConflictError creates a conflict error.
func NewConflictError(message string) *APIError {
	return New(CodeConflict, message)
}

// HTTPStatusCode returns the appropriate HTTP status code for the error.
func (e *APIError) HTTPStatusCode() int {
	switch e.Code {
	case CodeValidationError:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeStaleState, CodeHasDependents, CodeConflict:
		return http.StatusConflict
	case CodeInvalidOrExpired:
		return http.StatusGone
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// FromError maps a lifecycle or inbox error onto the API envelope. Anything
// unrecognised becomes an internal error without leaking its text.
func FromError(err error) *APIError {
	switch {
	case stderrors.Is(err, notify.ErrNotFound):
		return NewNotFoundError("notification not found")
	case stderrors.Is(err, notify.ErrInvalidFilter):
		return NewValidationErrorWithFields(AddFieldError("type", err.Error()))
	}

	var le *lifecycle.Error
	if !stderrors.As(err, &le) {
		return NewInternalError("internal error")
	}

	switch le.Kind {
	case lifecycle.KindUnauthorized:
		return NewUnauthorizedError(le.Error())
	case lifecycle.KindStaleState:
		return New(CodeStaleState, le.Error()).WithDetails(map[string]any{
			"entity":        le.Entity,
			"entity_id":     le.EntityID,
			"current_state": le.Current,
		})
	case lifecycle.KindValidationFailed:
		field := le.Field
		if field == "" {
			field = "body"
		}
		return NewValidationErrorWithFields(AddFieldError(field, le.Message))
	case lifecycle.KindHasDependents:
		return New(CodeHasDependents, le.Error())
	case lifecycle.KindInvalidOrExpired, lifecycle.KindExpired:
		return New(CodeInvalidOrExpired, invitationRefusal)
	case lifecycle.KindNotFound:
		return NewNotFoundError(le.Error())
	case lifecycle.KindConflict:
		return NewConflictError(le.Error())
	default:
		return NewInternalError("internal error")
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes an APIError as a JSON response.
func WriteError(w http.ResponseWriter, err *APIError) {
	WriteJSON(w, err.HTTPStatusCode(), err)
}

// WriteErrorWithRequestID writes an APIError with the request ID set.
func WriteErrorWithRequestID(w http.ResponseWriter, err *APIError, requestID string) {
	WriteError(w, err.WithRequestID(requestID))
}

// ValidationError represents a field-level validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of field-level validation errors.
type ValidationErrors []ValidationError

// Add adds a new validation error for a field.
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any validation errors.
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// ToAPIError converts validation errors to an APIError with field details.
func (v ValidationErrors) ToAPIError() *APIError {
	if len(v) == 0 {
		return NewValidationError("validation failed")
	}

	mainMessage := v[0].Message
	if len(v) > 1 {
		mainMessage = fmt.Sprintf("%s (and %d more errors)", mainMessage, len(v)-1)
	}

	return &APIError{
		Code:    CodeValidationError,
		Message: mainMessage,
		Details: map[string]any{
			"fields": v,
		},
	}
}

// NewValidationErrorWithFields creates a validation error with field-level details.
func NewValidationErrorWithFields(fields ValidationErrors) *APIError {
	return fields.ToAPIError()
}

// AddFieldError is a helper to create a validation error for a single field.
func AddFieldError(field, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message}}
}
