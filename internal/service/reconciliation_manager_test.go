package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNetwork = errors.New("connection reset by peer")

func rentalContract(t *testing.T, withSchedule bool) *domain.Contract {
	t.Helper()
	contract := &domain.Contract{
		ID:           7,
		WorkspaceID:  1,
		PropertyName: "Flat 2B",
		Kind:         domain.ContractKindRental,
		StartDate:    date(2024, 1, 1),
		EndDate:      date(2024, 12, 31),
		TotalPrice:   decimal.NewFromInt(1200),
	}
	if withSchedule {
		contract.Installments = yearSchedule(t)
	}
	return contract
}

func loadedManager(t *testing.T, store *testutil.MockContractStore) *ReconciliationManager {
	t.Helper()
	manager := NewReconciliationManager(7, store, testutil.FixedClock{Day: date(2024, 6, 1)})
	require.NoError(t, manager.Load(context.Background()))
	return manager
}

func TestNormalizeInstallments(t *testing.T) {
	installments := []domain.Installment{
		{Number: 1, StoredState: domain.StoredStatePaid},
		{Number: 2, StoredState: domain.StoredStatePending},
		{Number: 3, StoredState: domain.StoredState("overdue")},
		{Number: 4, StoredState: ""},
	}

	normalized := NormalizeInstallments(installments)

	assert.Equal(t, domain.StoredStatePaid, normalized[0].StoredState)
	assert.Equal(t, domain.StoredStatePending, normalized[1].StoredState)
	assert.Equal(t, domain.StoredStatePending, normalized[2].StoredState)
	assert.Equal(t, domain.StoredStatePending, normalized[3].StoredState)
	// Input untouched
	assert.Equal(t, domain.StoredState("overdue"), installments[2].StoredState)
	// Idempotent
	assert.Equal(t, normalized, NormalizeInstallments(normalized))
}

func TestReconciliationManager_Load_AdoptsPersisted(t *testing.T) {
	contract := rentalContract(t, true)
	contract.Installments[0].StoredState = domain.StoredStatePaid
	store := testutil.NewMockContractStore(contract)

	manager := loadedManager(t, store)

	snapshot := manager.Snapshot()
	assert.False(t, snapshot.Seeded)
	require.Len(t, snapshot.Installments, 12)
	assert.Equal(t, domain.StoredStatePaid, snapshot.Installments[0].StoredState)
	require.NotNil(t, snapshot.Contract)
	assert.Nil(t, snapshot.Contract.Installments)
	assert.Equal(t, 1, snapshot.Progress.PaidCount)
	assert.Empty(t, store.PersistCalls)
}

func TestReconciliationManager_Load_SeedsEmptyRental(t *testing.T) {
	store := testutil.NewMockContractStore(rentalContract(t, false))

	manager := loadedManager(t, store)

	snapshot := manager.Snapshot()
	assert.True(t, snapshot.Seeded)
	assert.Len(t, snapshot.Installments, 12)
	// Seeding never writes on its own
	assert.Empty(t, store.PersistCalls)

	require.NoError(t, manager.Save(context.Background()))
	assert.False(t, manager.Snapshot().Seeded)
	assert.Len(t, store.Contract.Installments, 12)
}

func TestReconciliationManager_Load_MaintenanceNotSeeded(t *testing.T) {
	contract := rentalContract(t, false)
	contract.Kind = domain.ContractKindMaintenance
	store := testutil.NewMockContractStore(contract)

	manager := loadedManager(t, store)

	assert.Empty(t, manager.Installments())
	assert.False(t, manager.Snapshot().Seeded)
}

func TestReconciliationManager_Load_Failure(t *testing.T) {
	store := testutil.NewMockContractStore(nil)
	store.FetchFn = func(ctx context.Context, contractID int32) (*domain.Contract, error) {
		return nil, errNetwork
	}
	manager := NewReconciliationManager(7, store, nil)

	err := manager.Load(context.Background())

	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.True(t, errors.Is(err, errNetwork))
	assert.False(t, manager.IsBusy())
}

func TestReconciliationManager_SetInstallmentState(t *testing.T) {
	manager := loadedManager(t, testutil.NewMockContractStore(rentalContract(t, true)))

	require.NoError(t, manager.SetInstallmentState(2, domain.StoredStatePaid))
	assert.Equal(t, domain.StoredStatePaid, manager.Installments()[2].StoredState)

	require.NoError(t, manager.SetInstallmentState(2, domain.StoredStatePending))
	assert.Equal(t, domain.StoredStatePending, manager.Installments()[2].StoredState)

	assert.ErrorIs(t, manager.SetInstallmentState(12, domain.StoredStatePaid), domain.ErrInstallmentNotFound)
	assert.ErrorIs(t, manager.SetInstallmentState(-1, domain.StoredStatePaid), domain.ErrInstallmentNotFound)
	assert.ErrorIs(t, manager.SetInstallmentState(0, domain.StoredState("overdue")), domain.ErrInvalidStoredState)
}

func TestReconciliationManager_Installments_ReturnsCopy(t *testing.T) {
	manager := loadedManager(t, testutil.NewMockContractStore(rentalContract(t, true)))

	installments := manager.Installments()
	installments[0].StoredState = domain.StoredStatePaid

	assert.Equal(t, domain.StoredStatePending, manager.Installments()[0].StoredState)
}

func TestReconciliationManager_Save_PersistsNormalized(t *testing.T) {
	store := testutil.NewMockContractStore(rentalContract(t, true))
	manager := loadedManager(t, store)
	require.NoError(t, manager.SetInstallmentState(0, domain.StoredStatePaid))

	require.NoError(t, manager.Save(context.Background()))

	require.Len(t, store.PersistCalls, 1)
	sent := store.PersistCalls[0]
	assert.Equal(t, domain.StoredStatePaid, sent[0].StoredState)
	for _, inst := range sent {
		assert.True(t, inst.StoredState.IsValid())
	}
	// Working copy equals what was sent
	assert.Equal(t, sent, manager.Installments())
	assert.False(t, manager.IsBusy())
}

func TestReconciliationManager_Save_FailureKeepsEdits(t *testing.T) {
	store := testutil.NewMockContractStore(rentalContract(t, true))
	manager := loadedManager(t, store)
	store.PersistFn = func(ctx context.Context, contractID int32, installments []domain.Installment) error {
		return errNetwork
	}

	// Installment #3 marked paid locally
	require.NoError(t, manager.SetInstallmentState(2, domain.StoredStatePaid))

	err := manager.Save(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPersistence))
	var failure *domain.PersistenceFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "save", failure.Operation)

	installments := manager.Installments()
	assert.Equal(t, int32(3), installments[2].Number)
	assert.Equal(t, domain.StoredStatePaid, installments[2].StoredState)
	assert.False(t, manager.IsBusy())

	// Retry succeeds without re-entering the edit
	store.PersistFn = nil
	require.NoError(t, manager.Save(context.Background()))
	assert.Equal(t, domain.StoredStatePaid, store.Contract.Installments[2].StoredState)
}

func TestReconciliationManager_Reload_ReplacesWorkingCopy(t *testing.T) {
	store := testutil.NewMockContractStore(rentalContract(t, true))
	manager := loadedManager(t, store)
	require.NoError(t, manager.SetInstallmentState(5, domain.StoredStatePaid))

	// Another session marks the first installment paid
	persisted := yearSchedule(t)
	persisted[0].StoredState = domain.StoredStatePaid
	persisted[1].StoredState = domain.StoredState("due_today")
	store.SetInstallments(persisted)

	require.NoError(t, manager.Reload(context.Background()))

	installments := manager.Installments()
	assert.Equal(t, domain.StoredStatePaid, installments[0].StoredState)
	assert.Equal(t, domain.StoredStatePending, installments[1].StoredState)
	// Unsaved local edit discarded
	assert.Equal(t, domain.StoredStatePending, installments[5].StoredState)
}

func TestReconciliationManager_Reload_FailureKeepsLastGoodCopy(t *testing.T) {
	store := testutil.NewMockContractStore(rentalContract(t, true))
	manager := loadedManager(t, store)
	require.NoError(t, manager.SetInstallmentState(4, domain.StoredStatePaid))
	before := manager.Installments()

	store.FetchFn = func(ctx context.Context, contractID int32) (*domain.Contract, error) {
		return nil, errNetwork
	}

	err := manager.Reload(context.Background())

	var failure *domain.PersistenceFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "reload", failure.Operation)
	assert.Equal(t, before, manager.Installments())
	assert.False(t, manager.IsBusy())
}

// blockingStore holds PersistInstallments until release is closed
func blockingStore(t *testing.T) (*testutil.MockContractStore, chan struct{}, chan struct{}) {
	t.Helper()
	store := testutil.NewMockContractStore(rentalContract(t, true))
	started := make(chan struct{})
	release := make(chan struct{})
	store.PersistFn = func(ctx context.Context, contractID int32, installments []domain.Installment) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return store, started, release
}

func TestReconciliationManager_BusyRejectsMutations(t *testing.T) {
	store, started, release := blockingStore(t)
	manager := loadedManager(t, store)

	done := make(chan error, 1)
	go func() {
		done <- manager.Save(context.Background())
	}()
	<-started

	assert.True(t, manager.IsBusy())
	assert.True(t, manager.Snapshot().Busy)

	err := manager.Save(context.Background())
	assert.ErrorIs(t, err, domain.ErrBusy)
	var busy *domain.BusyError
	require.True(t, errors.As(err, &busy))
	assert.Equal(t, "save", busy.Operation)

	assert.ErrorIs(t, manager.Reload(context.Background()), domain.ErrBusy)
	assert.ErrorIs(t, manager.Load(context.Background()), domain.ErrBusy)
	assert.ErrorIs(t, manager.SetInstallmentState(0, domain.StoredStatePaid), domain.ErrBusy)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, manager.IsBusy())

	// Only the first save reached the store
	assert.Len(t, store.PersistCalls, 1)
	require.NoError(t, manager.SetInstallmentState(0, domain.StoredStatePaid))
}

func TestReconciliationManager_BusyClearsOnCancel(t *testing.T) {
	store, started, _ := blockingStore(t)
	manager := loadedManager(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- manager.Save(ctx)
	}()
	<-started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, domain.ErrPersistence)
	case <-time.After(time.Second):
		t.Fatal("save did not return after cancel")
	}
	assert.False(t, manager.IsBusy())
}

func TestReconciliationManager_ReleaseIsIdempotent(t *testing.T) {
	manager := loadedManager(t, testutil.NewMockContractStore(rentalContract(t, true)))

	release, err := manager.begin("save")
	require.NoError(t, err)

	release()
	// A second operation takes the guard; a stale release must not clear it
	release2, err := manager.begin("reload")
	require.NoError(t, err)
	release()
	assert.True(t, manager.IsBusy())

	release2()
	assert.False(t, manager.IsBusy())
}

func TestReconciliationManager_ConcurrentSavesOneWins(t *testing.T) {
	store, started, release := blockingStore(t)
	manager := loadedManager(t, store)

	first := make(chan error, 1)
	go func() {
		first <- manager.Save(context.Background())
	}()
	<-started

	var wg sync.WaitGroup
	var mu sync.Mutex
	busyCount := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if errors.Is(manager.Save(context.Background()), domain.ErrBusy) {
				mu.Lock()
				busyCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(release)

	require.NoError(t, <-first)
	assert.Equal(t, 10, busyCount)
	assert.False(t, manager.IsBusy())
}
