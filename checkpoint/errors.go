package checkpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested checkpoint was not found.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrDuplicateID indicates that a checkpoint with the same ID already exists.
	ErrDuplicateID = errors.New("duplicate checkpoint id")

	// ErrInvalidTransition indicates a status transition not permitted by the
	// transition table. It signals a caller defect, never a transient condition.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about an unknown checkpoint ID.
type NotFoundError struct {
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("checkpoint not found: %s", e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DuplicateIDError provides details about a checkpoint ID collision on create.
type DuplicateIDError struct {
	ID string
}

// Error implements the error interface.
func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("checkpoint already exists: %s", e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *DuplicateIDError) Unwrap() error {
	return ErrDuplicateID
}

// InvalidTransitionError names the illegal edge of a rejected transition attempt.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("checkpoint %s: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(id string) *NotFoundError {
	return &NotFoundError{ID: id}
}

// NewDuplicateIDError creates a new DuplicateIDError.
func NewDuplicateIDError(id string) *DuplicateIDError {
	return &DuplicateIDError{ID: id}
}

// NewInvalidTransitionError creates a new InvalidTransitionError.
func NewInvalidTransitionError(id string, from, to Status) *InvalidTransitionError {
	return &InvalidTransitionError{ID: id, From: from, To: to}
}
