package service

import (
	"context"
	"strings"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/util"
	"github.com/dafibh/rentals/rentals-backend/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ContractService handles contract business logic
type ContractService struct {
	contractRepo   domain.ContractRepository
	clock          util.Clock
	progressCache  domain.ProgressCache
	eventPublisher websocket.EventPublisher
}

// NewContractService creates a new ContractService
func NewContractService(contractRepo domain.ContractRepository, clock util.Clock) *ContractService {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &ContractService{
		contractRepo: contractRepo,
		clock:        clock,
	}
}

// SetProgressCache sets the memo used by GetProgress
func (s *ContractService) SetProgressCache(cache domain.ProgressCache) {
	s.progressCache = cache
}

// SetEventPublisher sets the event publisher for real-time updates
func (s *ContractService) SetEventPublisher(publisher websocket.EventPublisher) {
	s.eventPublisher = publisher
}

// publishEvent publishes a WebSocket event if a publisher is configured
func (s *ContractService) publishEvent(workspaceID int32, event websocket.Event) {
	if s.eventPublisher != nil {
		s.eventPublisher.Publish(workspaceID, event)
	}
}

// Today returns the service clock's current day
func (s *ContractService) Today() time.Time {
	return s.clock.Today()
}

// ContractInput contains input for creating or updating a contract
type ContractInput struct {
	PropertyName  string
	TenantName    string
	Kind          string
	IsMaintenance bool
	StartDate     time.Time
	EndDate       time.Time
	TotalPrice    decimal.Decimal
	Reserved      bool
	Notes         *string
}

// buildContract normalizes input into a contract. The kind is reconciled here,
// once, and maintenance contracts carry no price.
func buildContract(workspaceID int32, input ContractInput) (*domain.Contract, error) {
	kind, err := domain.ResolveContractKind(input.Kind, input.IsMaintenance)
	if err != nil {
		return nil, err
	}

	var notes *string
	if input.Notes != nil {
		trimmed := strings.TrimSpace(*input.Notes)
		if trimmed != "" {
			notes = &trimmed
		}
	}

	contract := &domain.Contract{
		WorkspaceID:  workspaceID,
		PropertyName: strings.TrimSpace(input.PropertyName),
		TenantName:   strings.TrimSpace(input.TenantName),
		Kind:         kind,
		StartDate:    util.TruncateToDay(input.StartDate),
		EndDate:      util.TruncateToDay(input.EndDate),
		TotalPrice:   input.TotalPrice.Round(2),
		Reserved:     input.Reserved,
		Notes:        notes,
	}
	if contract.IsMaintenance() {
		contract.TotalPrice = decimal.Zero
	}

	if err := contract.Validate(); err != nil {
		return nil, err
	}
	return contract, nil
}

// scheduleFor generates the installments of a contract; maintenance contracts have none
func scheduleFor(contract *domain.Contract) ([]domain.Installment, error) {
	if !contract.CanGenerateSchedule() {
		return []domain.Installment{}, nil
	}
	return GenerateSchedule(contract.StartDate, contract.EndDate, contract.TotalPrice)
}

// CreateContract creates a contract together with its generated schedule
func (s *ContractService) CreateContract(ctx context.Context, workspaceID int32, input ContractInput) (*domain.Contract, error) {
	contract, err := buildContract(workspaceID, input)
	if err != nil {
		return nil, err
	}

	contract.Installments, err = scheduleFor(contract)
	if err != nil {
		return nil, err
	}

	created, err := s.contractRepo.Create(ctx, contract)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int32("workspace_id", workspaceID).
		Int32("contract_id", created.ID).
		Str("kind", string(created.Kind)).
		Int("installments", len(created.Installments)).
		Msg("Contract created")

	s.publishEvent(workspaceID, websocket.ContractCreated(created.ID, created))
	return created, nil
}

// GetContract retrieves a contract with its installments
func (s *ContractService) GetContract(ctx context.Context, workspaceID int32, id int32) (*domain.Contract, error) {
	return s.contractRepo.GetByID(ctx, workspaceID, id)
}

// ListContracts lists the contracts of a workspace matching the filter as of today
func (s *ContractService) ListContracts(ctx context.Context, workspaceID int32, filter domain.ContractFilter) ([]*domain.Contract, error) {
	contracts, err := s.contractRepo.GetAllByWorkspace(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	today := s.clock.Today()
	result := make([]*domain.Contract, 0, len(contracts))
	for _, c := range contracts {
		if filter.Matches(c, today) {
			result = append(result, c)
		}
	}
	return result, nil
}

// ContractUpdateResult reports what an update did to the schedule
type ContractUpdateResult struct {
	Contract           *domain.Contract
	Regenerated        bool
	DiscardedPaidCount int
}

// UpdateContract updates a contract. When dates, price or kind change the schedule is
// regenerated and fully replaces the old one, including paid markers.
func (s *ContractService) UpdateContract(ctx context.Context, workspaceID int32, id int32, input ContractInput) (*ContractUpdateResult, error) {
	existing, err := s.contractRepo.GetByID(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	updated, err := buildContract(workspaceID, input)
	if err != nil {
		return nil, err
	}
	updated.ID = existing.ID

	result := &ContractUpdateResult{}
	if updated.ScheduleChanged(existing) || updated.Kind != existing.Kind {
		updated.Installments, err = scheduleFor(updated)
		if err != nil {
			return nil, err
		}
		result.Regenerated = true
		for _, inst := range existing.Installments {
			if inst.StoredState == domain.StoredStatePaid {
				result.DiscardedPaidCount++
			}
		}
	}

	saved, err := s.contractRepo.Update(ctx, updated, result.Regenerated)
	if err != nil {
		return nil, err
	}
	result.Contract = saved

	if result.Regenerated {
		log.Info().
			Int32("workspace_id", workspaceID).
			Int32("contract_id", id).
			Int("discarded_paid", result.DiscardedPaidCount).
			Msg("Contract schedule regenerated")
	}

	s.invalidateProgress(ctx, id)
	s.publishEvent(workspaceID, websocket.ContractUpdated(id, saved))
	return result, nil
}

// DeleteContract soft-deletes a contract
func (s *ContractService) DeleteContract(ctx context.Context, workspaceID int32, id int32) error {
	if err := s.contractRepo.SoftDelete(ctx, workspaceID, id); err != nil {
		return err
	}

	s.invalidateProgress(ctx, id)
	s.publishEvent(workspaceID, websocket.ContractDeleted(id, map[string]interface{}{"id": id}))
	return nil
}

// GetProgress returns the payment progress of a contract as of today, memoized per day.
// After memoizing, the contract is read again: a write that landed between the first
// read and Set would have invalidated too early, so the entry is dropped and the
// fresh progress returned instead.
func (s *ContractService) GetProgress(ctx context.Context, workspaceID int32, id int32) (*domain.Progress, error) {
	today := s.clock.Today()

	contract, err := s.contractRepo.GetByID(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	if s.progressCache != nil {
		if cached, ok := s.progressCache.Get(ctx, id, today); ok {
			return cached, nil
		}
	}

	progress := ContractProgress(contract, contract.Installments, today)
	if s.progressCache == nil {
		return &progress, nil
	}

	if err := s.progressCache.Set(ctx, id, today, &progress); err != nil {
		log.Warn().Err(err).Int32("contract_id", id).Msg("Failed to cache progress")
		return &progress, nil
	}

	current, err := s.contractRepo.GetByID(ctx, workspaceID, id)
	if err != nil {
		s.invalidateProgress(ctx, id)
		return &progress, nil
	}
	if !sameProgressInputs(contract, current) {
		log.Debug().Int32("contract_id", id).Msg("Contract changed while computing progress")
		s.invalidateProgress(ctx, id)
		fresh := ContractProgress(current, current.Installments, today)
		return &fresh, nil
	}
	return &progress, nil
}

// sameProgressInputs reports whether two reads of a contract yield the same progress
func sameProgressInputs(a, b *domain.Contract) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) || !a.StartDate.Equal(b.StartDate) || !a.EndDate.Equal(b.EndDate) {
		return false
	}
	if len(a.Installments) != len(b.Installments) {
		return false
	}
	for i := range a.Installments {
		x, y := a.Installments[i], b.Installments[i]
		if x.Number != y.Number || x.StoredState != y.StoredState || !x.Amount.Equal(y.Amount) || !x.DueDate.Equal(y.DueDate) {
			return false
		}
	}
	return true
}

// InvalidateProgress drops memoized progress after the installments changed elsewhere
func (s *ContractService) InvalidateProgress(ctx context.Context, id int32) {
	s.invalidateProgress(ctx, id)
}

func (s *ContractService) invalidateProgress(ctx context.Context, id int32) {
	if s.progressCache == nil {
		return
	}
	if err := s.progressCache.Invalidate(ctx, id); err != nil {
		log.Warn().Err(err).Int32("contract_id", id).Msg("Failed to invalidate progress cache")
	}
}
