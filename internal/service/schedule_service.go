package service

import (
	"fmt"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/util"
	"github.com/shopspring/decimal"
)

// CalculateInstallmentAmount splits a total evenly over numMonths, rounded to cents
func CalculateInstallmentAmount(totalPrice decimal.Decimal, numMonths int) decimal.Decimal {
	if numMonths <= 0 {
		return decimal.Zero
	}
	return totalPrice.Div(decimal.NewFromInt(int64(numMonths))).Round(2)
}

// GenerateSchedule derives the monthly installments of a contract period.
// Installments 1..n-1 carry the rounded average; the last one absorbs the rounding
// drift so the amounts always sum exactly to totalPrice. A total too small to
// spread over the period (the remainder would go negative) is rejected.
func GenerateSchedule(startDate, endDate time.Time, totalPrice decimal.Decimal) ([]domain.Installment, error) {
	if totalPrice.IsNegative() {
		return nil, &domain.InvalidScheduleError{Field: "totalPrice", Reason: "total price is negative"}
	}
	if util.TruncateToDay(endDate).Before(util.TruncateToDay(startDate)) {
		return nil, &domain.InvalidScheduleError{Field: "endDate", Reason: "end date is before start date"}
	}

	monthCount := util.MonthsBetweenInclusive(startDate, endDate)
	if monthCount == 0 {
		return []domain.Installment{}, nil
	}

	amount := CalculateInstallmentAmount(totalPrice, monthCount)
	if amount.Mul(decimal.NewFromInt(int64(monthCount - 1))).GreaterThan(totalPrice) {
		return nil, &domain.InvalidScheduleError{
			Field:  "totalPrice",
			Reason: fmt.Sprintf("total price %s cannot be split over %d months", totalPrice.StringFixed(2), monthCount),
		}
	}
	firstMonth := util.FirstOfMonth(startDate)

	installments := make([]domain.Installment, monthCount)
	allocated := decimal.Zero
	for i := 0; i < monthCount; i++ {
		due := util.AddMonths(firstMonth, i)

		installmentAmount := amount
		if i == monthCount-1 {
			installmentAmount = totalPrice.Sub(allocated)
		}
		allocated = allocated.Add(installmentAmount)

		installments[i] = domain.Installment{
			Number:      int32(i + 1),
			Month:       int32(due.Month()),
			Year:        int32(due.Year()),
			Amount:      installmentAmount,
			DueDate:     due,
			StoredState: domain.StoredStatePending,
		}
	}

	return installments, nil
}

// SumInstallments adds up installment amounts
func SumInstallments(installments []domain.Installment) decimal.Decimal {
	total := decimal.Zero
	for _, inst := range installments {
		total = total.Add(inst.Amount)
	}
	return total
}
