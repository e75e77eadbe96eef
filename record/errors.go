package record

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError via errors.Is.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound matches every *NotFoundError via errors.Is.
	ErrNotFound = errors.New("record not found")
)

// ValidationError reports a missing or invalid field, or a violated business rule.
// Field is empty for rules that do not belong to a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an id that does not resolve in the named store.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Invalid builds a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFound builds a *NotFoundError.
func NotFound(kind string, id int64) error {
	return &NotFoundError{Kind: kind, ID: id}
}
