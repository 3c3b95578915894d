package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/util"
	"github.com/shopspring/decimal"
)

var (
	ErrInstallmentNotFound  = errors.New("installment not found")
	ErrInvalidStoredState   = errors.New("stored state must be pending or paid")
	ErrInstallmentMonth     = errors.New("installment month must be between 1 and 12")
	ErrInstallmentNumber    = errors.New("installment number must be at least 1")
	ErrInstallmentAmountNeg = errors.New("installment amount must not be negative")
)

// StoredState is the only installment status a person or the backend sets directly
type StoredState string

const (
	StoredStatePending StoredState = "pending"
	StoredStatePaid    StoredState = "paid"
)

// ParseStoredState converts user input to a StoredState.
// Derived states (overdue, due_today) are rejected.
func ParseStoredState(s string) (StoredState, error) {
	state := StoredState(s)
	if !state.IsValid() {
		return "", ErrInvalidStoredState
	}
	return state, nil
}

// IsValid reports whether the state belongs to the persisted domain
func (s StoredState) IsValid() bool {
	return s == StoredStatePending || s == StoredStatePaid
}

// EffectiveState is the status of an installment as of a given day. Never persisted.
type EffectiveState string

const (
	EffectiveStatePaid     EffectiveState = "paid"
	EffectiveStateOverdue  EffectiveState = "overdue"
	EffectiveStateDueToday EffectiveState = "due_today"
	EffectiveStatePending  EffectiveState = "pending"
)

// Installment is one scheduled monthly due amount of a contract
type Installment struct {
	Number      int32           `json:"number"`
	Month       int32           `json:"month"`
	Year        int32           `json:"year"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"dueDate"`
	StoredState StoredState     `json:"storedState"`
}

func (i *Installment) Validate() error {
	if i.Number < 1 {
		return ErrInstallmentNumber
	}
	if i.Month < 1 || i.Month > 12 {
		return ErrInstallmentMonth
	}
	if i.Amount.IsNegative() {
		return ErrInstallmentAmountNeg
	}
	if !i.StoredState.IsValid() {
		return ErrInvalidStoredState
	}
	return nil
}

// ClassifyInstallment derives the effective state of an installment on the given day.
// It only reads StoredState and DueDate.
func ClassifyInstallment(inst Installment, today time.Time) EffectiveState {
	if inst.StoredState == StoredStatePaid {
		return EffectiveStatePaid
	}

	due := util.TruncateToDay(inst.DueDate)
	day := util.TruncateToDay(today)

	switch {
	case day.After(due):
		return EffectiveStateOverdue
	case day.Equal(due):
		return EffectiveStateDueToday
	default:
		return EffectiveStatePending
	}
}

// EffectiveState is shorthand for ClassifyInstallment
func (i Installment) EffectiveState(today time.Time) EffectiveState {
	return ClassifyInstallment(i, today)
}

// Label returns a formatted label like "3/12" for installment 3 of 12
func (i Installment) Label(total int) string {
	return fmt.Sprintf("%d/%d", i.Number, total)
}

// CloneInstallments copies a slice so callers can't alias the owner's backing array
func CloneInstallments(in []Installment) []Installment {
	if in == nil {
		return nil
	}
	out := make([]Installment, len(in))
	copy(out, in)
	return out
}

// InstallmentRepository persists a contract's installment array
type InstallmentRepository interface {
	GetByContractID(ctx context.Context, contractID int32) ([]Installment, error)
	// ReplaceAll swaps the full installment array of a contract in one transaction
	ReplaceAll(ctx context.Context, contractID int32, installments []Installment) error
}
