package service

import (
	"context"
	"fmt"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
)

// WorkspaceContractStore adapts the contract and installment repositories to
// domain.ContractStore for a single workspace
type WorkspaceContractStore struct {
	workspaceID     int32
	contractRepo    domain.ContractRepository
	installmentRepo domain.InstallmentRepository
}

// NewWorkspaceContractStore creates a store scoped to one workspace
func NewWorkspaceContractStore(workspaceID int32, contractRepo domain.ContractRepository, installmentRepo domain.InstallmentRepository) *WorkspaceContractStore {
	return &WorkspaceContractStore{
		workspaceID:     workspaceID,
		contractRepo:    contractRepo,
		installmentRepo: installmentRepo,
	}
}

// FetchContract returns the contract with its persisted installments
func (s *WorkspaceContractStore) FetchContract(ctx context.Context, contractID int32) (*domain.Contract, error) {
	return s.contractRepo.GetByID(ctx, s.workspaceID, contractID)
}

// PersistInstallments replaces the contract's installments. Only stored states
// are accepted.
func (s *WorkspaceContractStore) PersistInstallments(ctx context.Context, contractID int32, installments []domain.Installment) error {
	for _, inst := range installments {
		if !inst.StoredState.IsValid() {
			return fmt.Errorf("installment %d: %w", inst.Number, domain.ErrInvalidStoredState)
		}
		if err := inst.Validate(); err != nil {
			return fmt.Errorf("installment %d: %w", inst.Number, err)
		}
	}

	// Ownership check before writing
	if _, err := s.contractRepo.GetByID(ctx, s.workspaceID, contractID); err != nil {
		return err
	}

	return s.installmentRepo.ReplaceAll(ctx, contractID, installments)
}
