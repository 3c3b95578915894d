package service

import (
	"context"
	"sync"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/util"
	"github.com/rs/zerolog/log"
)

// NormalizeInstallments returns a copy of the list whose stored states are all
// pending or paid. Anything that is not explicitly paid is stored as pending;
// derived states never reach storage. Normalizing twice is a no-op.
func NormalizeInstallments(installments []domain.Installment) []domain.Installment {
	normalized := make([]domain.Installment, len(installments))
	for i, inst := range installments {
		if inst.StoredState != domain.StoredStatePaid {
			inst.StoredState = domain.StoredStatePending
		}
		normalized[i] = inst
	}
	return normalized
}

// ReconciliationSnapshot is a read-only view of a manager's working copy
type ReconciliationSnapshot struct {
	Contract     *domain.Contract
	Installments []domain.Installment
	Progress     domain.Progress
	Busy         bool
	Seeded       bool
}

// ReconciliationManager owns the working copy of one contract's installments for
// the duration of an editing session. Save and Reload are the only blocking
// operations; while one runs, any other mutating call fails with ErrBusy.
// It does not track unsaved edits: Reload discards them, so callers
// must warn before invoking it.
type ReconciliationManager struct {
	contractID int32
	store      domain.ContractStore
	clock      util.Clock

	mu       sync.Mutex
	busy     bool
	contract *domain.Contract
	working  []domain.Installment
	// seeded is set while the working copy was generated locally and not saved yet
	seeded bool
}

// NewReconciliationManager creates a manager for a single contract
func NewReconciliationManager(contractID int32, store domain.ContractStore, clock util.Clock) *ReconciliationManager {
	if clock == nil {
		clock = util.SystemClock{}
	}
	return &ReconciliationManager{
		contractID: contractID,
		store:      store,
		clock:      clock,
		working:    []domain.Installment{},
	}
}

// ContractID returns the contract the manager is bound to
func (m *ReconciliationManager) ContractID() int32 {
	return m.contractID
}

// IsBusy reports whether a save or reload is in flight
func (m *ReconciliationManager) IsBusy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy
}

// begin marks the manager busy. The returned release clears the flag exactly
// once no matter how many times it is called.
func (m *ReconciliationManager) begin(operation string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return nil, &domain.BusyError{Operation: operation}
	}
	m.busy = true

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.busy = false
			m.mu.Unlock()
		})
	}, nil
}

// Load fetches the contract and adopts its persisted installments as the working
// copy. When nothing is persisted yet and the contract has a valid rental period,
// the working copy is seeded from GenerateSchedule (unsaved until Save).
func (m *ReconciliationManager) Load(ctx context.Context) error {
	release, err := m.begin("load")
	if err != nil {
		return err
	}
	defer release()

	contract, err := m.store.FetchContract(ctx, m.contractID)
	if err != nil {
		return &domain.PersistenceFailure{Operation: "load", Err: err}
	}

	working := domain.CloneInstallments(contract.Installments)
	seeded := false
	if len(working) == 0 && contract.CanGenerateSchedule() {
		working, err = GenerateSchedule(contract.StartDate, contract.EndDate, contract.TotalPrice)
		if err != nil {
			return err
		}
		seeded = len(working) > 0
	}
	if working == nil {
		working = []domain.Installment{}
	}

	m.mu.Lock()
	m.contract = stripInstallments(contract)
	m.working = working
	m.seeded = seeded
	m.mu.Unlock()

	log.Debug().
		Int32("contract_id", m.contractID).
		Int("installments", len(working)).
		Bool("seeded", seeded).
		Msg("Working copy loaded")

	return nil
}

// SetInstallmentState changes the stored state of the installment at index (0-based).
// Only stored states are accepted.
func (m *ReconciliationManager) SetInstallmentState(index int, state domain.StoredState) error {
	if !state.IsValid() {
		return domain.ErrInvalidStoredState
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return &domain.BusyError{Operation: "edit installment"}
	}
	if index < 0 || index >= len(m.working) {
		return domain.ErrInstallmentNotFound
	}

	m.working[index].StoredState = state
	return nil
}

// Save normalizes the working copy and persists it. On success the working copy
// becomes exactly the list that was sent; on failure it is left untouched so no
// local edit is lost.
func (m *ReconciliationManager) Save(ctx context.Context) error {
	release, err := m.begin("save")
	if err != nil {
		return err
	}
	defer release()

	m.mu.Lock()
	normalized := NormalizeInstallments(m.working)
	m.mu.Unlock()

	if err := m.store.PersistInstallments(ctx, m.contractID, normalized); err != nil {
		log.Warn().Err(err).Int32("contract_id", m.contractID).Msg("Failed to persist installments")
		return &domain.PersistenceFailure{Operation: "save", Err: err}
	}

	m.mu.Lock()
	m.working = normalized
	m.seeded = false
	m.mu.Unlock()

	return nil
}

// Reload replaces the whole working copy with the persisted installments,
// discarding unsaved edits. On failure the last known good copy is kept.
func (m *ReconciliationManager) Reload(ctx context.Context) error {
	release, err := m.begin("reload")
	if err != nil {
		return err
	}
	defer release()

	contract, err := m.store.FetchContract(ctx, m.contractID)
	if err != nil {
		log.Warn().Err(err).Int32("contract_id", m.contractID).Msg("Failed to reload installments")
		return &domain.PersistenceFailure{Operation: "reload", Err: err}
	}

	m.mu.Lock()
	m.contract = stripInstallments(contract)
	m.working = NormalizeInstallments(contract.Installments)
	m.seeded = false
	m.mu.Unlock()

	return nil
}

// Installments returns a copy of the working copy
func (m *ReconciliationManager) Installments() []domain.Installment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CloneInstallments(m.working)
}

// Snapshot returns the working copy with its progress classified as of today
func (m *ReconciliationManager) Snapshot() ReconciliationSnapshot {
	return m.SnapshotAt(m.clock.Today())
}

// SnapshotAt is Snapshot for an explicit day
func (m *ReconciliationManager) SnapshotAt(today time.Time) ReconciliationSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := ReconciliationSnapshot{
		Installments: domain.CloneInstallments(m.working),
		Busy:         m.busy,
		Seeded:       m.seeded,
	}
	if m.contract != nil {
		c := *m.contract
		snapshot.Contract = &c
		snapshot.Progress = ContractProgress(&c, snapshot.Installments, today)
	} else {
		snapshot.Progress = AggregateProgress(SumInstallments(snapshot.Installments), snapshot.Installments, today)
	}
	return snapshot
}

func stripInstallments(contract *domain.Contract) *domain.Contract {
	c := *contract
	c.Installments = nil
	return &c
}
