package domain

import (
	"errors"
	"fmt"
)

// Identity errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrWorkspaceNotFound = errors.New("workspace not found")
)

// Installment engine errors
var (
	ErrInvalidSchedule = errors.New("invalid installment schedule")
	ErrBusy            = errors.New("another operation is in progress")
	ErrPersistence     = errors.New("persistence failure")
)

// InvalidScheduleError is returned when a schedule cannot be generated for the given period/price.
// Field names the contract input at fault (totalPrice, endDate).
type InvalidScheduleError struct {
	Field  string
	Reason string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidSchedule.Error(), e.Reason)
}

func (e *InvalidScheduleError) Unwrap() error {
	return ErrInvalidSchedule
}

// BusyError is returned when a mutating operation is attempted while save/reload is in flight.
// Callers should retry once the current operation resolves.
type BusyError struct {
	Operation string
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("%s: cannot %s", ErrBusy.Error(), e.Operation)
}

func (e *BusyError) Unwrap() error {
	return ErrBusy
}

// PersistenceFailure wraps a backend failure during save or reload
type PersistenceFailure struct {
	Operation string
	Err       error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("%s during %s: %v", ErrPersistence.Error(), e.Operation, e.Err)
}

// Unwrap exposes both ErrPersistence and the underlying cause to errors.Is/As
func (e *PersistenceFailure) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}
