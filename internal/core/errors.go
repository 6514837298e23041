package core

import (
	"context"
	"errors"
	"fmt"
)

// Error taxonomy. Callers distinguish them with errors.Is so UI code can
// pick between "show retry", "show nothing" and "show neutral state".
var (
	ErrValidation         = errors.New("validation error")
	ErrDataUnavailable    = errors.New("data unavailable")
	ErrInsufficientSample = errors.New("insufficient sample")
	ErrNotFound           = errors.New("not found")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// UnavailableError wraps a store failure or timeout.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: data unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool {
	return target == ErrDataUnavailable
}

// Unavailable wraps err as a DataUnavailable condition unless it already
// carries a more specific classification.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDataUnavailable) {
		return err
	}
	return &UnavailableError{Op: op, Err: err}
}

// IsTimeout reports whether err stems from a deadline or cancellation.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
