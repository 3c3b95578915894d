package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// NextDue is the first strictly-future pending installment
type NextDue struct {
	Installment   Installment `json:"installment"`
	DaysRemaining int         `json:"daysRemaining"`
}

// Progress is the payment progress of a contract on a given day
type Progress struct {
	PaidCount      int             `json:"paidCount"`
	TotalCount     int             `json:"totalCount"`
	OverdueCount   int             `json:"overdueCount"`
	DueTodayCount  int             `json:"dueTodayCount"`
	PaidAmount     decimal.Decimal `json:"paidAmount"`
	PendingAmount  decimal.Decimal `json:"pendingAmount"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	PaidPercentage int             `json:"paidPercentage"`
	NextDue        *NextDue        `json:"nextDue"`
	ElapsedMonths  int             `json:"elapsedMonths"` // only filled by ContractProgress
	AsOf           time.Time       `json:"asOf"`
}

// ProgressCache is a call-site-owned memo for progress keyed by (contract, day)
type ProgressCache interface {
	Get(ctx context.Context, contractID int32, day time.Time) (*Progress, bool)
	Set(ctx context.Context, contractID int32, day time.Time, progress *Progress) error
	// Invalidate drops every memoized day of a contract
	Invalidate(ctx context.Context, contractID int32) error
}
