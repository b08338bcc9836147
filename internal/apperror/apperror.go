// Package apperror defines the application's error types and how they are
// rendered to API clients.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType categorises application errors.
type ErrorType int

const (
	// InternalError is an unexpected failure.
	InternalError ErrorType = iota
	// DatabaseError originates from the store.
	DatabaseError
	// NotFoundError means the requested resource does not exist.
	NotFoundError
	// ValidationError means the input failed model validation.
	ValidationError
	// ForbiddenError means the requester may not act on the resource.
	ForbiddenError
	// UnauthorizedError means no valid identity was presented.
	UnauthorizedError
	// BadRequestError means the request could not be decoded.
	BadRequestError
	// ConflictError means a uniqueness rule was violated.
	ConflictError
)

// AppError is an error carrying a type, a client-facing message and an
// optional field-level error map.
type AppError struct {
	Type    ErrorType
	Message string
	Fields  map[string][]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code for the error type.
func (e *AppError) StatusCode() int {
	switch e.Type {
	case NotFoundError:
		return http.StatusNotFound
	case ValidationError, ConflictError:
		// uniqueness problems are reported like any other validation failure
		return http.StatusUnprocessableEntity
	case ForbiddenError:
		return http.StatusForbidden
	case UnauthorizedError:
		return http.StatusUnauthorized
	case BadRequestError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body written for every error.
type ErrorResponse struct {
	Errors map[string][]string `json:"errors"`
}

// ToResponse converts the error to its client representation. The wrapped
// error is never included.
func (e *AppError) ToResponse() ErrorResponse {
	if len(e.Fields) > 0 {
		return ErrorResponse{Errors: e.Fields}
	}
	return ErrorResponse{Errors: map[string][]string{"body": {e.Message}}}
}

// New creates an AppError of the given type.
func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{Type: errType, Message: message, Err: err}
}

// NewNotFoundError reports a missing resource under the given field.
func NewNotFoundError(field, message string) *AppError {
	e := New(NotFoundError, message, nil)
	e.Fields = map[string][]string{field: {message}}
	return e
}

// NewValidationError wraps a field error map.
func NewValidationError(fields map[string][]string) *AppError {
	e := New(ValidationError, "validation failed", nil)
	e.Fields = fields
	return e
}

// NewFieldError is a validation error on a single field.
func NewFieldError(field string, messages ...string) *AppError {
	return NewValidationError(map[string][]string{field: messages})
}

// NewForbiddenError reports an authorization failure on a field.
func NewForbiddenError(field, message string) *AppError {
	e := New(ForbiddenError, message, nil)
	e.Fields = map[string][]string{field: {message}}
	return e
}

// NewUnauthorizedError reports a missing or invalid identity.
func NewUnauthorizedError(message string, err error) *AppError {
	return New(UnauthorizedError, message, err)
}

// NewBadRequestError reports an undecodable request.
func NewBadRequestError(message string, err error) *AppError {
	return New(BadRequestError, message, err)
}

// NewConflictError reports a uniqueness violation on a field.
func NewConflictError(field string) *AppError {
	e := New(ConflictError, field+" has already been taken", nil)
	e.Fields = map[string][]string{field: {"has already been taken"}}
	return e
}

// NewDatabaseError wraps a store failure.
func NewDatabaseError(message string, err error) *AppError {
	return New(DatabaseError, message, err)
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, err error) *AppError {
	return New(InternalError, message, err)
}

// FromError returns err as an *AppError, wrapping unknown errors as internal.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("an unexpected error occurred", err)
}

func is(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool { return is(err, NotFoundError) }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return is(err, ValidationError) }

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool { return is(err, ForbiddenError) }

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool { return is(err, UnauthorizedError) }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool { return is(err, ConflictError) }
