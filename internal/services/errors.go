package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	ErrAlertNotFound        = errors.New("alert not found")
	ErrAlertAlreadyResolved = errors.New("alert already resolved")
	ErrModelNotFound        = errors.New("model not found")
	ErrNoActiveModel        = errors.New("no active model")
	ErrExperimentNotFound   = errors.New("experiment not found")
	ErrInvalidTransition    = errors.New("invalid experiment status transition")
	ErrDatasetNotFound      = errors.New("dataset not found")
	ErrTrafficLogNotFound   = errors.New("traffic log not found")
	ErrProviderNotFound     = errors.New("notification provider not found")
	ErrInvalidInput         = errors.New("invalid input")
)

// PersistenceError wraps a failed store operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// InvariantViolationError reports a store state that must never exist,
// such as two active models for one tenant.
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated: %s: %s", e.Invariant, e.Detail)
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// notFound maps gorm's missing record onto a domain sentinel.
func notFound(err, sentinel error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return persistErr(op, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
