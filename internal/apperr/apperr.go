// Package apperr defines the errors team workflows return to callers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/splax/teamhub/internal/repository"
)

// Code is a machine-readable error class.
type Code string

const (
	CodeNotFound   Code = "NOT_FOUND"
	CodeForbidden  Code = "FORBIDDEN"
	CodeValidation Code = "VALIDATION"
	CodeConflict   Code = "CONFLICT"
	CodeInternal   Code = "INTERNAL"
)

// HTTPStatus maps the code to a response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified workflow error.
type Error struct {
	Code    Code
	Message string
	// Field names the offending input for validation errors.
	Field string
	Cause error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound   = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden  = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrValidation = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrConflict   = &Error{Code: CodeConflict, Message: "conflict"}
)

// NotFound returns the generic not-found error. The message never says which
// resource was missing so callers cannot probe for ids they don't belong to.
func NotFound() *Error {
	return &Error{Code: CodeNotFound, Message: "not found"}
}

// Forbidden reports an authorised relationship without the required role.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Message: message}
}

// Validation reports malformed input on field.
func Validation(field, message string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

// Conflict reports a uniqueness violation.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// FromStore classifies a repository error. Errors that are already classified
// pass through; unknown failures are wrapped with op and stay internal.
func FromStore(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return &Error{Code: CodeNotFound, Message: "not found", Cause: err}
	case errors.Is(err, repository.ErrConflict):
		return &Error{Code: CodeConflict, Message: "conflict", Cause: err}
	case errors.Is(err, repository.ErrInvalidArgument):
		return &Error{Code: CodeValidation, Message: "invalid input", Cause: err}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
