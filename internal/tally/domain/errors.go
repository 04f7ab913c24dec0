package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared by the store, tenancy and service layers. Callers
// branch on them with errors.Is.
var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadyExists        = errors.New("already exists")
	ErrValidation           = errors.New("validation error")
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	ErrConflict             = errors.New("conflict")
	ErrForbidden            = errors.New("forbidden")

	// ErrCrossTenant is a referential integrity violation where the referenced
	// row exists but belongs to another tenant.
	ErrCrossTenant = fmt.Errorf("%w: cross-tenant reference", ErrReferentialIntegrity)
)

// FieldError describes a validation failure for a single field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects field level failures. It unwraps to ErrValidation.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return fmt.Sprintf("validation: %d errors (%s)", len(e.Errors), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Err returns nil when nothing was collected, so callers can build a
// ValidationError incrementally and return v.Err() at the end.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}
