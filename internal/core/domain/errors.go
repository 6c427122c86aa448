package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition indicates a status change that the task state machine forbids.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidationError reports malformed or missing input for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements error for ValidationError.
func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for the supplied field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AsValidationError extracts a ValidationError from err when present.
func AsValidationError(err error) (*ValidationError, bool) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr, true
	}
	return nil, false
}
