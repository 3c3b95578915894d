package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestClassifyContract(t *testing.T) {
	start := day(2024, 3, 1)
	end := day(2024, 8, 31)

	tests := []struct {
		name     string
		kind     ContractKind
		today    time.Time
		reserved bool
		want     ContractStatus
	}{
		{"future start", ContractKindRental, day(2024, 2, 29), false, ContractStatusPlanned},
		{"future start reserved", ContractKindRental, day(2024, 1, 1), true, ContractStatusReserved},
		{"first day", ContractKindRental, start, false, ContractStatusActive},
		{"last day is inclusive", ContractKindRental, end, false, ContractStatusActive},
		{"after end", ContractKindRental, day(2024, 9, 1), false, ContractStatusFinished},
		{"maintenance in period", ContractKindMaintenance, day(2024, 5, 10), false, ContractStatusMaintenance},
		{"maintenance in future", ContractKindMaintenance, day(2024, 1, 10), false, ContractStatusPlanned},
		{"maintenance finished", ContractKindMaintenance, day(2025, 1, 10), false, ContractStatusFinished},
		{"reservation ignored once started", ContractKindRental, day(2024, 4, 1), true, ContractStatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyContract(start, end, tt.kind, tt.today, WithReservation(tt.reserved))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyContract_NoOptionsDefaultsToPlanned(t *testing.T) {
	got := ClassifyContract(day(2030, 1, 1), day(2030, 12, 31), ContractKindRental, day(2024, 1, 1))
	assert.Equal(t, ContractStatusPlanned, got)
}

func TestContractPeriodPredicates_EndDay(t *testing.T) {
	start := day(2024, 1, 1)
	end := day(2024, 1, 31)

	// On the end day the contract is still ongoing but no longer "before end"
	assert.True(t, IsWithinContractPeriod(start, end, end))
	assert.False(t, IsBeforeContractEnd(end, end))

	assert.True(t, IsWithinContractPeriod(start, end, day(2024, 1, 30)))
	assert.True(t, IsBeforeContractEnd(end, day(2024, 1, 30)))

	assert.False(t, IsWithinContractPeriod(start, end, day(2023, 12, 31)))
	assert.False(t, IsWithinContractPeriod(start, end, day(2024, 2, 1)))
}

func TestResolveContractKind(t *testing.T) {
	tests := []struct {
		kind          string
		isMaintenance bool
		want          ContractKind
	}{
		{"rental", false, ContractKindRental},
		{"", false, ContractKindRental},
		{"maintenance", false, ContractKindMaintenance},
		{"Maintenance ", false, ContractKindMaintenance},
		{"rental", true, ContractKindMaintenance},
		{"", true, ContractKindMaintenance},
	}

	for _, tt := range tests {
		got, err := ResolveContractKind(tt.kind, tt.isMaintenance)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got, "kind=%q isMaintenance=%v", tt.kind, tt.isMaintenance)
	}

	_, err := ResolveContractKind("sublet", false)
	assert.Equal(t, ErrContractKindInvalid, err)
}

func TestContractValidate(t *testing.T) {
	valid := Contract{
		PropertyName: "Calle Mayor 3, 2B",
		Kind:         ContractKindRental,
		StartDate:    day(2024, 1, 1),
		EndDate:      day(2024, 12, 31),
		TotalPrice:   decimal.NewFromInt(1200),
	}
	assert.NoError(t, valid.Validate())

	c := valid
	c.PropertyName = "  "
	assert.Equal(t, ErrContractPropertyRequired, c.Validate())

	c = valid
	c.EndDate = day(2023, 12, 31)
	assert.Equal(t, ErrContractDatesInvalid, c.Validate())

	c = valid
	c.TotalPrice = decimal.NewFromInt(-1)
	assert.Equal(t, ErrContractPriceInvalid, c.Validate())

	c = valid
	c.StartDate = time.Time{}
	assert.Equal(t, ErrContractDatesRequired, c.Validate())
}

func TestContractCanGenerateSchedule(t *testing.T) {
	c := Contract{Kind: ContractKindRental, StartDate: day(2024, 1, 1), EndDate: day(2024, 3, 31), TotalPrice: decimal.NewFromInt(10)}
	assert.True(t, c.CanGenerateSchedule())

	c.Kind = ContractKindMaintenance
	assert.False(t, c.CanGenerateSchedule())

	c.Kind = ContractKindRental
	c.EndDate = day(2023, 1, 1)
	assert.False(t, c.CanGenerateSchedule())
}

func TestContractScheduleChanged(t *testing.T) {
	a := &Contract{StartDate: day(2024, 1, 1), EndDate: day(2024, 12, 31), TotalPrice: decimal.RequireFromString("1200.00")}
	b := *a
	b.PropertyName = "renamed"
	assert.False(t, a.ScheduleChanged(&b))

	b.TotalPrice = decimal.NewFromInt(1200)
	assert.False(t, a.ScheduleChanged(&b), "equal decimal values with different scale")

	b.EndDate = day(2025, 1, 31)
	assert.True(t, a.ScheduleChanged(&b))
}

func TestContractFilterMatches(t *testing.T) {
	today := day(2024, 6, 1)
	active := &Contract{Kind: ContractKindRental, StartDate: day(2024, 1, 1), EndDate: day(2024, 12, 31)}
	finished := &Contract{Kind: ContractKindRental, StartDate: day(2023, 1, 1), EndDate: day(2023, 12, 31)}

	status := ContractStatusFinished
	assert.True(t, ContractFilter{}.Matches(active, today))
	assert.True(t, ContractFilter{Ongoing: true}.Matches(active, today))
	assert.False(t, ContractFilter{Ongoing: true}.Matches(finished, today))
	assert.True(t, ContractFilter{Status: &status}.Matches(finished, today))
	assert.False(t, ContractFilter{Status: &status}.Matches(active, today))
}

func TestTypedErrorsUnwrap(t *testing.T) {
	var err error = &InvalidScheduleError{Reason: "negative total price"}
	assert.True(t, errors.Is(err, ErrInvalidSchedule))
	assert.Contains(t, err.Error(), "negative total price")

	err = &BusyError{Operation: "save"}
	assert.True(t, errors.Is(err, ErrBusy))

	cause := errors.New("connection reset")
	err = &PersistenceFailure{Operation: "reload", Err: cause}
	assert.True(t, errors.Is(err, ErrPersistence))
	assert.True(t, errors.Is(err, cause))
}
