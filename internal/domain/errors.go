// Package domain provides shared domain-level sentinel errors.
package domain

import (
	"errors"
	"strings"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a uniqueness or dependency conflict, e.g. deleting
// an entity that still has rows.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates user input failed validation. Nothing was mutated.
var ErrValidation = errors.New("validation failed")

// ErrUnauthorized indicates the request carries no usable identity.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden indicates the actor lacks the permission for the action.
var ErrForbidden = errors.New("forbidden")

// FieldError is a single user-visible form error.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries the form errors of a rejected request.
// errors.Is(err, ErrValidation) holds for every ValidationError.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrValidation.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError returns nil when fields is empty.
func NewValidationError(fields []FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
