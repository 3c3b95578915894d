package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/util"
	"github.com/shopspring/decimal"
)

var (
	ErrContractNotFound         = errors.New("contract not found")
	ErrContractKindInvalid      = errors.New("contract kind must be rental or maintenance")
	ErrContractDatesRequired    = errors.New("start and end dates are required")
	ErrContractDatesInvalid     = errors.New("end date must not be before start date")
	ErrContractPriceInvalid     = errors.New("total price must not be negative")
	ErrContractPropertyRequired = errors.New("property name is required")
	ErrContractPropertyTooLong  = errors.New("property name must be 200 characters or less")
	ErrContractTenantTooLong    = errors.New("tenant name must be 200 characters or less")
)

const MaxContractNameLength = 200

// ContractKind is the single tagged variant for a contract's kind
type ContractKind string

const (
	ContractKindRental      ContractKind = "rental"
	ContractKindMaintenance ContractKind = "maintenance"
)

// ResolveContractKind reconciles the raw kind value with the legacy maintenance flag.
// Either signal saying maintenance wins; an empty kind defaults to rental.
func ResolveContractKind(kind string, isMaintenance bool) (ContractKind, error) {
	k := ContractKind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case "":
		k = ContractKindRental
	case ContractKindRental, ContractKindMaintenance:
	default:
		return "", ErrContractKindInvalid
	}
	if isMaintenance {
		return ContractKindMaintenance, nil
	}
	return k, nil
}

// ContractStatus is the lifecycle status of a contract on a given day
type ContractStatus string

const (
	ContractStatusActive      ContractStatus = "active"
	ContractStatusPlanned     ContractStatus = "planned"
	ContractStatusFinished    ContractStatus = "finished"
	ContractStatusMaintenance ContractStatus = "maintenance"
	ContractStatusReserved    ContractStatus = "reserved"
)

// ParseContractStatus validates a status filter value
func ParseContractStatus(s string) (ContractStatus, bool) {
	switch st := ContractStatus(s); st {
	case ContractStatusActive, ContractStatusPlanned, ContractStatusFinished,
		ContractStatusMaintenance, ContractStatusReserved:
		return st, true
	}
	return "", false
}

type Contract struct {
	ID           int32           `json:"id"`
	WorkspaceID  int32           `json:"workspaceId"`
	PropertyName string          `json:"propertyName"`
	TenantName   string          `json:"tenantName"`
	Kind         ContractKind    `json:"kind"`
	StartDate    time.Time       `json:"startDate"`
	EndDate      time.Time       `json:"endDate"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	Reserved     bool            `json:"reserved"`
	Notes        *string         `json:"notes,omitempty"`
	Installments []Installment   `json:"installments"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	DeletedAt    *time.Time      `json:"deletedAt,omitempty"`
}

func (c *Contract) Validate() error {
	if strings.TrimSpace(c.PropertyName) == "" {
		return ErrContractPropertyRequired
	}
	if len(c.PropertyName) > MaxContractNameLength {
		return ErrContractPropertyTooLong
	}
	if len(c.TenantName) > MaxContractNameLength {
		return ErrContractTenantTooLong
	}
	if c.Kind != ContractKindRental && c.Kind != ContractKindMaintenance {
		return ErrContractKindInvalid
	}
	if c.StartDate.IsZero() || c.EndDate.IsZero() {
		return ErrContractDatesRequired
	}
	if util.TruncateToDay(c.EndDate).Before(util.TruncateToDay(c.StartDate)) {
		return ErrContractDatesInvalid
	}
	if c.TotalPrice.IsNegative() {
		return ErrContractPriceInvalid
	}
	return nil
}

// IsMaintenance reports whether the contract is a maintenance contract
func (c *Contract) IsMaintenance() bool {
	return c.Kind == ContractKindMaintenance
}

// CanGenerateSchedule reports whether a schedule may be seeded for this contract:
// rental kind, both dates set, end not before start, non-negative price.
func (c *Contract) CanGenerateSchedule() bool {
	if c.IsMaintenance() || c.StartDate.IsZero() || c.EndDate.IsZero() {
		return false
	}
	if util.TruncateToDay(c.EndDate).Before(util.TruncateToDay(c.StartDate)) {
		return false
	}
	return !c.TotalPrice.IsNegative()
}

// Status classifies the contract on the given day
func (c *Contract) Status(today time.Time) ContractStatus {
	return ClassifyContract(c.StartDate, c.EndDate, c.Kind, today, WithReservation(c.Reserved))
}

// ScheduleChanged reports whether an update touches the fields the schedule is derived from
func (c *Contract) ScheduleChanged(other *Contract) bool {
	return !util.TruncateToDay(c.StartDate).Equal(util.TruncateToDay(other.StartDate)) ||
		!util.TruncateToDay(c.EndDate).Equal(util.TruncateToDay(other.EndDate)) ||
		!c.TotalPrice.Equal(other.TotalPrice)
}

type classifyOptions struct {
	reserved bool
}

// ClassifyOption tunes ClassifyContract
type ClassifyOption func(*classifyOptions)

// WithReservation turns a not-yet-started contract into RESERVED instead of PLANNED
func WithReservation(reserved bool) ClassifyOption {
	return func(o *classifyOptions) {
		o.reserved = reserved
	}
}

// ClassifyContract maps a contract period and kind to its lifecycle status on 'today'.
// The end date is inclusive (IsWithinContractPeriod).
func ClassifyContract(start, end time.Time, kind ContractKind, today time.Time, opts ...ClassifyOption) ContractStatus {
	var o classifyOptions
	for _, opt := range opts {
		opt(&o)
	}

	day := util.TruncateToDay(today)
	if day.Before(util.TruncateToDay(start)) {
		if o.reserved {
			return ContractStatusReserved
		}
		return ContractStatusPlanned
	}
	if !IsWithinContractPeriod(start, end, day) {
		return ContractStatusFinished
	}
	if kind == ContractKindMaintenance {
		return ContractStatusMaintenance
	}
	return ContractStatusActive
}

// IsWithinContractPeriod reports start <= today <= end (end inclusive).
// Used for "is the contract still ongoing" decisions.
func IsWithinContractPeriod(start, end, today time.Time) bool {
	day := util.TruncateToDay(today)
	return !day.Before(util.TruncateToDay(start)) && !day.After(util.TruncateToDay(end))
}

// IsBeforeContractEnd reports today < end (end exclusive).
// Used for the elapsed-months progress denominator, where the end day itself no longer counts as remaining.
func IsBeforeContractEnd(end, today time.Time) bool {
	return util.TruncateToDay(today).Before(util.TruncateToDay(end))
}

// ContractFilter narrows contract listings
type ContractFilter struct {
	Status  *ContractStatus
	Ongoing bool
}

// Matches applies the filter to a contract on the given day
func (f ContractFilter) Matches(c *Contract, today time.Time) bool {
	if f.Ongoing && !IsWithinContractPeriod(c.StartDate, c.EndDate, today) {
		return false
	}
	if f.Status != nil && c.Status(today) != *f.Status {
		return false
	}
	return true
}

type ContractRepository interface {
	// Create inserts the contract and its installments in one transaction
	Create(ctx context.Context, contract *Contract) (*Contract, error)
	GetByID(ctx context.Context, workspaceID int32, id int32) (*Contract, error)
	GetAllByWorkspace(ctx context.Context, workspaceID int32) ([]*Contract, error)
	// Update writes contract fields; when replaceInstallments is set the installment array is swapped in the same transaction
	Update(ctx context.Context, contract *Contract, replaceInstallments bool) (*Contract, error)
	SoftDelete(ctx context.Context, workspaceID int32, id int32) error
}

// ContractStore is the persistence collaborator of the reconciliation manager
type ContractStore interface {
	FetchContract(ctx context.Context, contractID int32) (*Contract, error)
	PersistInstallments(ctx context.Context, contractID int32, installments []Installment) error
}
