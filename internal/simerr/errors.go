// Package simerr defines the error taxonomy shared by every simulation
// subsystem. All fallible operations return one of these, usually wrapped
// with context via fmt.Errorf("...: %w", ...).
package simerr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers branch with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidationFailure = errors.New("validation failure")
	ErrInsufficient      = errors.New("insufficient")
	ErrUnavailable       = errors.New("unavailable")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrCorruptedState    = errors.New("corrupted state")
	ErrInfeasible        = errors.New("infeasible")
)

// NotFound wraps ErrNotFound with the kind and id of the missing entity.
func NotFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
}

// Validationf wraps ErrValidationFailure with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidationFailure)...)
}

// Insufficientf wraps ErrInsufficient with a formatted reason.
func Insufficientf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInsufficient)...)
}

// Unavailablef wraps ErrUnavailable with a formatted reason.
func Unavailablef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnavailable)...)
}

// Capacityf wraps ErrCapacityExceeded with a formatted reason.
func Capacityf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrCapacityExceeded)...)
}

// Corruptedf wraps ErrCorruptedState with a formatted reason.
func Corruptedf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrCorruptedState)...)
}

// Infeasiblef wraps ErrInfeasible with a formatted reason.
func Infeasiblef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInfeasible)...)
}
