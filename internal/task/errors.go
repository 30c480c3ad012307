package task

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced task does not exist.
var ErrNotFound = errors.New("task not found")

// ValidationError describes a payload rejected before it reaches the store.
type ValidationError struct {
	// Field is the offending payload key, empty for whole-payload problems.
	Field string

	// Reason is a human-readable description.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid payload: %s", e.Reason)
}

// IsValidation returns true if err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound returns true if err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
