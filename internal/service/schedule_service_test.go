package service

import (
	"errors"
	"testing"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCalculateInstallmentAmount_Rounds(t *testing.T) {
	// 100 over 3 months = 33.33 (rounded)
	result := CalculateInstallmentAmount(decimal.NewFromInt(100), 3)
	expected := decimal.NewFromFloat(33.33)

	if !result.Equal(expected) {
		t.Errorf("Expected %s, got %s", expected.String(), result.String())
	}
}

func TestCalculateInstallmentAmount_RoundsHalfUp(t *testing.T) {
	// 0.05 over 2 months = 0.025 -> 0.03
	result := CalculateInstallmentAmount(decimal.RequireFromString("0.05"), 2)
	expected := decimal.RequireFromString("0.03")

	if !result.Equal(expected) {
		t.Errorf("Expected %s, got %s", expected.String(), result.String())
	}
}

func TestCalculateInstallmentAmount_ZeroMonths(t *testing.T) {
	result := CalculateInstallmentAmount(decimal.NewFromInt(100), 0)

	if !result.Equal(decimal.Zero) {
		t.Errorf("Expected 0 for zero months, got %s", result.String())
	}
}

func TestGenerateSchedule_FullYearExactDivision(t *testing.T) {
	installments, err := GenerateSchedule(date(2024, 1, 1), date(2024, 12, 31), decimal.NewFromInt(1200))
	require.NoError(t, err)
	require.Len(t, installments, 12)

	for i, inst := range installments {
		assert.Equal(t, int32(i+1), inst.Number)
		assert.True(t, inst.Amount.Equal(decimal.NewFromInt(100)), "installment %d amount %s", inst.Number, inst.Amount)
		assert.Equal(t, domain.StoredStatePending, inst.StoredState)
	}
	assert.True(t, SumInstallments(installments).Equal(decimal.NewFromInt(1200)))
}

func TestGenerateSchedule_LastInstallmentAbsorbsRounding(t *testing.T) {
	installments, err := GenerateSchedule(date(2024, 1, 1), date(2024, 3, 31), decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.Len(t, installments, 3)

	assert.Equal(t, "333.33", installments[0].Amount.StringFixed(2))
	assert.Equal(t, "333.33", installments[1].Amount.StringFixed(2))
	assert.Equal(t, "333.34", installments[2].Amount.StringFixed(2))
	assert.True(t, SumInstallments(installments).Equal(decimal.NewFromInt(1000)))
}

func TestGenerateSchedule_SumInvariant(t *testing.T) {
	totals := []string{"0", "0.01", "0.10", "1", "99.99", "100", "1000", "1234.56", "7777.77", "10000.01", "999999.99"}
	periods := []struct{ start, end time.Time }{
		{date(2024, 1, 1), date(2024, 1, 31)},
		{date(2024, 1, 15), date(2024, 7, 14)},
		{date(2024, 1, 1), date(2024, 12, 31)},
		{date(2023, 11, 1), date(2025, 2, 28)},
		{date(2024, 2, 29), date(2027, 2, 28)},
	}

	for _, p := range periods {
		for _, raw := range totals {
			total := decimal.RequireFromString(raw)
			installments, err := GenerateSchedule(p.start, p.end, total)
			if err != nil {
				// Only totals whose rounded share overshoots may be refused
				require.ErrorIs(t, err, domain.ErrInvalidSchedule, "total %s", raw)
				continue
			}
			require.NotEmpty(t, installments)

			for _, inst := range installments {
				assert.NoError(t, inst.Validate(), "total %s installment %d amount %s", raw, inst.Number, inst.Amount)
			}
			sum := SumInstallments(installments)
			assert.True(t, sum.Equal(total), "total %s over %d months summed to %s", raw, len(installments), sum)
		}
	}
}

func TestGenerateSchedule_TotalTooSmallForPeriod(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		total      string
	}{
		{"one unit over 37 months", date(2024, 2, 29), date(2027, 2, 28), "1"},
		{"ten cents over a year", date(2024, 1, 1), date(2024, 12, 31), "0.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installments, err := GenerateSchedule(tt.start, tt.end, decimal.RequireFromString(tt.total))

			assert.Nil(t, installments)
			require.ErrorIs(t, err, domain.ErrInvalidSchedule)
			var scheduleErr *domain.InvalidScheduleError
			require.True(t, errors.As(err, &scheduleErr))
			assert.Equal(t, "totalPrice", scheduleErr.Field)
		})
	}
}

func TestGenerateSchedule_RoundedDownShareIsAccepted(t *testing.T) {
	// 0.01 over 6 months rounds to 0.00 each; the last month carries the cent
	installments, err := GenerateSchedule(date(2024, 1, 1), date(2024, 6, 30), decimal.RequireFromString("0.01"))
	require.NoError(t, err)
	require.Len(t, installments, 6)
	assert.Equal(t, "0.00", installments[0].Amount.StringFixed(2))
	assert.Equal(t, "0.01", installments[5].Amount.StringFixed(2))
}

func TestGenerateSchedule_DueDatesAreFirstOfMonth(t *testing.T) {
	installments, err := GenerateSchedule(date(2024, 11, 20), date(2025, 2, 5), decimal.NewFromInt(400))
	require.NoError(t, err)
	require.Len(t, installments, 4)

	expected := []time.Time{date(2024, 11, 1), date(2024, 12, 1), date(2025, 1, 1), date(2025, 2, 1)}
	for i, inst := range installments {
		assert.True(t, inst.DueDate.Equal(expected[i]), "installment %d due %s", inst.Number, inst.DueDate)
		assert.Equal(t, int32(expected[i].Month()), inst.Month)
		assert.Equal(t, int32(expected[i].Year()), inst.Year)
	}
}

func TestGenerateSchedule_SingleMonth(t *testing.T) {
	installments, err := GenerateSchedule(date(2024, 6, 10), date(2024, 6, 20), decimal.RequireFromString("450.50"))
	require.NoError(t, err)
	require.Len(t, installments, 1)
	assert.Equal(t, "450.50", installments[0].Amount.StringFixed(2))
}

func TestGenerateSchedule_NegativePrice(t *testing.T) {
	installments, err := GenerateSchedule(date(2024, 1, 1), date(2024, 12, 31), decimal.NewFromInt(-1))

	assert.Nil(t, installments)
	assert.True(t, errors.Is(err, domain.ErrInvalidSchedule))
	var scheduleErr *domain.InvalidScheduleError
	require.True(t, errors.As(err, &scheduleErr))
	assert.Equal(t, "totalPrice", scheduleErr.Field)
}

func TestGenerateSchedule_EndBeforeStart(t *testing.T) {
	installments, err := GenerateSchedule(date(2024, 5, 2), date(2024, 5, 1), decimal.NewFromInt(100))

	assert.Nil(t, installments)
	assert.True(t, errors.Is(err, domain.ErrInvalidSchedule))
}
