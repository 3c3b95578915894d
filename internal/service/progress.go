package service

import (
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/util"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AggregateProgress derives the payment progress of an installment list on 'today'.
// totalPrice is the contract's price and is used as-is for TotalAmount, so the
// result stays meaningful while the installment list is being edited.
// The input slice is never modified.
func AggregateProgress(totalPrice decimal.Decimal, installments []domain.Installment, today time.Time) domain.Progress {
	progress := domain.Progress{
		TotalCount:    len(installments),
		PaidAmount:    decimal.Zero,
		PendingAmount: decimal.Zero,
		TotalAmount:   totalPrice,
		AsOf:          util.TruncateToDay(today),
	}

	for _, inst := range installments {
		switch domain.ClassifyInstallment(inst, today) {
		case domain.EffectiveStatePaid:
			progress.PaidCount++
			progress.PaidAmount = progress.PaidAmount.Add(inst.Amount)
			continue
		case domain.EffectiveStateOverdue:
			progress.OverdueCount++
		case domain.EffectiveStateDueToday:
			progress.DueTodayCount++
		case domain.EffectiveStatePending:
			if progress.NextDue == nil || inst.Number < progress.NextDue.Installment.Number {
				progress.NextDue = &domain.NextDue{
					Installment:   inst,
					DaysRemaining: util.DaysBetween(today, inst.DueDate),
				}
			}
		}
		progress.PendingAmount = progress.PendingAmount.Add(inst.Amount)
	}

	progress.PaidPercentage = paidPercentage(progress.PaidAmount, totalPrice)

	return progress
}

// paidPercentage is round(100 * paid / total), 0 when total is 0
func paidPercentage(paid, total decimal.Decimal) int {
	if total.IsZero() {
		return 0
	}
	return int(paid.Mul(hundred).Div(total).Round(0).IntPart())
}

// ContractProgress aggregates a contract's own installments and adds the
// elapsed-months figure, which needs the contract end date.
func ContractProgress(contract *domain.Contract, installments []domain.Installment, today time.Time) domain.Progress {
	progress := AggregateProgress(contract.TotalPrice, installments, today)
	progress.ElapsedMonths = CountElapsedMonths(contract.EndDate, installments, today)
	return progress
}

// CountElapsedMonths counts installments whose month has started. While the
// contract has not reached its end day (IsBeforeContractEnd, end exclusive) only
// started months count; from the end day on every installment counts as elapsed.
func CountElapsedMonths(endDate time.Time, installments []domain.Installment, today time.Time) int {
	if !domain.IsBeforeContractEnd(endDate, today) {
		return len(installments)
	}
	day := util.TruncateToDay(today)
	count := 0
	for _, inst := range installments {
		if !util.TruncateToDay(inst.DueDate).After(day) {
			count++
		}
	}
	return count
}
