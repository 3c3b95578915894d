package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	registry     *SessionRegistry
	contracts    *testutil.MockContractRepository
	installments *testutil.MockInstallmentRepository
	cache        *testutil.MockProgressCache
	publisher    *testutil.MockEventPublisher
	now          time.Time
}

func setupSessionRegistry(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		contracts: testutil.NewMockContractRepository(),
		cache:     testutil.NewMockProgressCache(),
		publisher: &testutil.MockEventPublisher{},
		now:       time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
	f.installments = testutil.NewMockInstallmentRepository(f.contracts)
	f.contracts.AddContract(rentalContract(t, true))

	f.registry = NewSessionRegistry(
		f.contracts,
		f.installments,
		testutil.FixedClock{Day: date(2024, 6, 1)},
		zerolog.Nop(),
		SessionRegistryConfig{TTL: 10 * time.Minute, SweepInterval: 20 * time.Millisecond},
	)
	f.registry.now = func() time.Time { return f.now }
	f.registry.SetProgressCache(f.cache)
	f.registry.SetEventPublisher(f.publisher)
	return f
}

func TestSessionRegistry_DefaultConfig(t *testing.T) {
	config := DefaultSessionRegistryConfig()

	assert.Equal(t, 30*time.Minute, config.TTL)
	assert.Equal(t, 1*time.Minute, config.SweepInterval)
}

func TestSessionRegistry_OpenEditSave(t *testing.T) {
	f := setupSessionRegistry(t)
	ctx := context.Background()

	view, err := f.registry.Open(ctx, 1, 7)
	require.NoError(t, err)
	assert.Len(t, view.Installments, 12)
	assert.Equal(t, f.now.Add(10*time.Minute), view.ExpiresAt)

	view, err = f.registry.SetInstallmentState(1, view.ID, 0, domain.StoredStatePaid)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Progress.PaidCount)
	// Not persisted yet
	assert.Equal(t, domain.StoredStatePending, f.contracts.Contracts[7].Installments[0].StoredState)

	view, err = f.registry.Save(ctx, 1, view.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StoredStatePaid, f.contracts.Contracts[7].Installments[0].StoredState)
	assert.Equal(t, []int32{7}, f.cache.Invalidated)
	assert.Equal(t, []string{"contract_installments.saved"}, f.publisher.Types())
	assert.Equal(t, int32(1), f.publisher.Events[0].WorkspaceID)
	assert.Equal(t, int32(7), f.publisher.Events[0].Event.ContractID)
}

func TestSessionRegistry_Open_ContractNotFound(t *testing.T) {
	f := setupSessionRegistry(t)

	_, err := f.registry.Open(context.Background(), 2, 7)

	assert.ErrorIs(t, err, domain.ErrContractNotFound)
	assert.Equal(t, 0, f.registry.Count())
}

func TestSessionRegistry_OtherWorkspaceCannotSeeSession(t *testing.T) {
	f := setupSessionRegistry(t)
	view, err := f.registry.Open(context.Background(), 1, 7)
	require.NoError(t, err)

	_, err = f.registry.Get(2, view.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	assert.ErrorIs(t, f.registry.Close(2, view.ID), domain.ErrSessionNotFound)

	_, err = f.registry.Get(1, uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionRegistry_SaveFailureKeepsEdits(t *testing.T) {
	f := setupSessionRegistry(t)
	ctx := context.Background()
	view, err := f.registry.Open(ctx, 1, 7)
	require.NoError(t, err)
	_, err = f.registry.SetInstallmentState(1, view.ID, 2, domain.StoredStatePaid)
	require.NoError(t, err)

	f.installments.ReplaceAllFn = func(contractID int32, installments []domain.Installment) error {
		return errors.New("connection refused")
	}

	failed, err := f.registry.Save(ctx, 1, view.ID)

	assert.ErrorIs(t, err, domain.ErrPersistence)
	require.NotNil(t, failed)
	assert.Equal(t, domain.StoredStatePaid, failed.Installments[2].StoredState)
	assert.Empty(t, f.cache.Invalidated)
	assert.Empty(t, f.publisher.Events)
}

func TestSessionRegistry_Reload(t *testing.T) {
	f := setupSessionRegistry(t)
	ctx := context.Background()
	view, err := f.registry.Open(ctx, 1, 7)
	require.NoError(t, err)
	_, err = f.registry.SetInstallmentState(1, view.ID, 3, domain.StoredStatePaid)
	require.NoError(t, err)

	reloaded, err := f.registry.Reload(ctx, 1, view.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.StoredStatePending, reloaded.Installments[3].StoredState)
}

func TestSessionRegistry_Close(t *testing.T) {
	f := setupSessionRegistry(t)
	view, err := f.registry.Open(context.Background(), 1, 7)
	require.NoError(t, err)

	require.NoError(t, f.registry.Close(1, view.ID))

	assert.Equal(t, 0, f.registry.Count())
	_, err = f.registry.Get(1, view.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestSessionRegistry_SweepDropsIdleSessions(t *testing.T) {
	f := setupSessionRegistry(t)
	ctx := context.Background()
	idle, err := f.registry.Open(ctx, 1, 7)
	require.NoError(t, err)

	f.now = f.now.Add(8 * time.Minute)
	active, err := f.registry.Open(ctx, 1, 7)
	require.NoError(t, err)

	f.now = f.now.Add(3 * time.Minute)
	removed := f.registry.Sweep()

	assert.Equal(t, 1, removed)
	_, err = f.registry.Get(1, idle.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, err = f.registry.Get(1, active.ID)
	assert.NoError(t, err)
}

func TestSessionRegistry_UseExtendsSession(t *testing.T) {
	f := setupSessionRegistry(t)
	view, err := f.registry.Open(context.Background(), 1, 7)
	require.NoError(t, err)

	f.now = f.now.Add(9 * time.Minute)
	touched, err := f.registry.Get(1, view.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now.Add(10*time.Minute), touched.ExpiresAt)

	f.now = f.now.Add(9 * time.Minute)
	assert.Equal(t, 0, f.registry.Sweep())
}

func TestSessionRegistry_StartStop(t *testing.T) {
	f := setupSessionRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.registry.Start(ctx)
	f.registry.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	assert.True(t, f.registry.IsRunning())

	f.registry.Stop()
	assert.False(t, f.registry.IsRunning())
}

func TestSessionRegistry_RestartAfterContextCancel(t *testing.T) {
	f := setupSessionRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.registry.Start(ctx)
	cancel()
	require.Eventually(t, func() bool { return !f.registry.IsRunning() }, time.Second, 5*time.Millisecond)

	// A second sweeper gets its own channels; stopping it must not panic or hang
	restartCtx, restartCancel := context.WithCancel(context.Background())
	defer restartCancel()
	f.registry.Start(restartCtx)
	assert.True(t, f.registry.IsRunning())

	assert.NotPanics(t, f.registry.Stop)
	assert.False(t, f.registry.IsRunning())
}

func TestSessionRegistry_RestartAfterStop(t *testing.T) {
	f := setupSessionRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		f.registry.Start(ctx)
		assert.True(t, f.registry.IsRunning())
		f.registry.Stop()
		assert.False(t, f.registry.IsRunning())
	}
	assert.NotPanics(t, f.registry.Stop)
}
