package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected failure classes.
var (
	// ErrNotFound indicates a lookup for an entity that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition indicates a programming-invariant violation: the
	// creation path was reached with data the validator should have
	// rejected. It is never caused by user input.
	ErrPrecondition = errors.New("registration precondition violated")
)

// PreconditionError describes a programming-invariant fault discovered
// during creation. It aborts the whole call.
type PreconditionError struct {
	Detail string
}

// Error implements the error interface
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("registration precondition violated: %s", e.Detail)
}

// Unwrap makes the error match ErrPrecondition with errors.Is.
func (e *PreconditionError) Unwrap() error {
	return ErrPrecondition
}

// Preconditionf creates a PreconditionError with a formatted detail.
func Preconditionf(format string, args ...any) error {
	return &PreconditionError{Detail: fmt.Sprintf(format, args...)}
}
