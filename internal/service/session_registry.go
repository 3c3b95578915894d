package service

import (
	"context"
	"sync"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/util"
	"github.com/dafibh/rentals/rentals-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SessionRegistryConfig holds configuration for editing sessions
type SessionRegistryConfig struct {
	TTL           time.Duration // Idle time after which a session is dropped
	SweepInterval time.Duration // How often idle sessions are swept
}

// DefaultSessionRegistryConfig returns sensible defaults
func DefaultSessionRegistryConfig() SessionRegistryConfig {
	return SessionRegistryConfig{
		TTL:           30 * time.Minute,
		SweepInterval: 1 * time.Minute,
	}
}

type editingSession struct {
	id          uuid.UUID
	workspaceID int32
	manager     *ReconciliationManager
	lastUsed    time.Time
}

// SessionView is a point-in-time view of an editing session
type SessionView struct {
	ID        uuid.UUID
	ExpiresAt time.Time
	ReconciliationSnapshot
}

// SessionRegistry keeps one ReconciliationManager per open editing session
type SessionRegistry struct {
	contractRepo    domain.ContractRepository
	installmentRepo domain.InstallmentRepository
	clock           util.Clock
	logger          zerolog.Logger
	ttl             time.Duration
	sweepInterval   time.Duration
	now             func() time.Time

	progressCache  domain.ProgressCache
	eventPublisher websocket.EventPublisher

	sessions map[uuid.UUID]*editingSession
	mu       sync.Mutex

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// NewSessionRegistry creates a new SessionRegistry
func NewSessionRegistry(
	contractRepo domain.ContractRepository,
	installmentRepo domain.InstallmentRepository,
	clock util.Clock,
	logger zerolog.Logger,
	config SessionRegistryConfig,
) *SessionRegistry {
	defaults := DefaultSessionRegistryConfig()
	if config.TTL <= 0 {
		config.TTL = defaults.TTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = defaults.SweepInterval
	}
	if clock == nil {
		clock = util.SystemClock{}
	}

	return &SessionRegistry{
		contractRepo:    contractRepo,
		installmentRepo: installmentRepo,
		clock:           clock,
		logger:          logger.With().Str("component", "session_registry").Logger(),
		ttl:             config.TTL,
		sweepInterval:   config.SweepInterval,
		now:             time.Now,
		sessions:        make(map[uuid.UUID]*editingSession),
	}
}

// SetProgressCache sets the cache invalidated after a successful save
func (r *SessionRegistry) SetProgressCache(cache domain.ProgressCache) {
	r.progressCache = cache
}

// SetEventPublisher sets the event publisher for real-time updates
func (r *SessionRegistry) SetEventPublisher(publisher websocket.EventPublisher) {
	r.eventPublisher = publisher
}

// Open loads a contract into a new editing session
func (r *SessionRegistry) Open(ctx context.Context, workspaceID int32, contractID int32) (*SessionView, error) {
	store := NewWorkspaceContractStore(workspaceID, r.contractRepo, r.installmentRepo)
	manager := NewReconciliationManager(contractID, store, r.clock)
	if err := manager.Load(ctx); err != nil {
		return nil, err
	}

	session := &editingSession{
		id:          uuid.New(),
		workspaceID: workspaceID,
		manager:     manager,
		lastUsed:    r.now(),
	}

	r.mu.Lock()
	r.sessions[session.id] = session
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Debug().
		Str("session_id", session.id.String()).
		Int32("workspace_id", workspaceID).
		Int32("contract_id", contractID).
		Int("open_sessions", count).
		Msg("Editing session opened")

	return r.view(session), nil
}

// lookup finds a session within a workspace and marks it used
func (r *SessionRegistry) lookup(workspaceID int32, id uuid.UUID) (*editingSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || session.workspaceID != workspaceID {
		return nil, domain.ErrSessionNotFound
	}
	session.lastUsed = r.now()
	return session, nil
}

func (r *SessionRegistry) view(session *editingSession) *SessionView {
	r.mu.Lock()
	expiresAt := session.lastUsed.Add(r.ttl)
	r.mu.Unlock()

	return &SessionView{
		ID:                     session.id,
		ExpiresAt:              expiresAt,
		ReconciliationSnapshot: session.manager.Snapshot(),
	}
}

// Get returns the current state of a session
func (r *SessionRegistry) Get(workspaceID int32, id uuid.UUID) (*SessionView, error) {
	session, err := r.lookup(workspaceID, id)
	if err != nil {
		return nil, err
	}
	return r.view(session), nil
}

// SetInstallmentState edits one installment of the session's working copy
func (r *SessionRegistry) SetInstallmentState(workspaceID int32, id uuid.UUID, index int, state domain.StoredState) (*SessionView, error) {
	session, err := r.lookup(workspaceID, id)
	if err != nil {
		return nil, err
	}
	if err := session.manager.SetInstallmentState(index, state); err != nil {
		return nil, err
	}
	return r.view(session), nil
}

// Save persists the session's working copy. On failure the view still carries the
// unsaved edits so the caller can retry.
func (r *SessionRegistry) Save(ctx context.Context, workspaceID int32, id uuid.UUID) (*SessionView, error) {
	session, err := r.lookup(workspaceID, id)
	if err != nil {
		return nil, err
	}

	contractID := session.manager.ContractID()
	if err := session.manager.Save(ctx); err != nil {
		r.logger.Warn().
			Err(err).
			Str("session_id", id.String()).
			Int32("contract_id", contractID).
			Msg("Session save failed")
		return r.view(session), err
	}

	if r.progressCache != nil {
		if err := r.progressCache.Invalidate(ctx, contractID); err != nil {
			r.logger.Warn().Err(err).Int32("contract_id", contractID).Msg("Failed to invalidate progress cache")
		}
	}

	view := r.view(session)
	if r.eventPublisher != nil {
		r.eventPublisher.Publish(workspaceID, websocket.ContractInstallmentsSaved(contractID, map[string]interface{}{
			"contractId":   contractID,
			"installments": view.Installments,
		}))
	}

	r.logger.Info().
		Str("session_id", id.String()).
		Int32("workspace_id", workspaceID).
		Int32("contract_id", contractID).
		Msg("Installments saved")

	return view, nil
}

// Reload discards the session's unsaved edits in favour of the persisted installments
func (r *SessionRegistry) Reload(ctx context.Context, workspaceID int32, id uuid.UUID) (*SessionView, error) {
	session, err := r.lookup(workspaceID, id)
	if err != nil {
		return nil, err
	}
	if err := session.manager.Reload(ctx); err != nil {
		return r.view(session), err
	}
	return r.view(session), nil
}

// Close drops a session. Busy sessions cannot be closed.
func (r *SessionRegistry) Close(workspaceID int32, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok || session.workspaceID != workspaceID {
		return domain.ErrSessionNotFound
	}
	if session.manager.IsBusy() {
		return &domain.BusyError{Operation: "close session"}
	}
	delete(r.sessions, id)
	return nil
}

// Count returns the number of open sessions
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Start begins sweeping idle sessions in the background. The sweeper can be
// restarted after Stop or after its context is cancelled.
func (r *SessionRegistry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	stopCh := make(chan struct{})
	doneCh := make(chan struct{})
	r.stopCh, r.doneCh = stopCh, doneCh
	r.mu.Unlock()

	r.logger.Info().
		Dur("ttl", r.ttl).
		Dur("sweep_interval", r.sweepInterval).
		Msg("Starting session sweeper")

	go r.run(ctx, stopCh, doneCh)
}

// Stop stops the sweeper and waits for it to exit
func (r *SessionRegistry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	r.logger.Info().Msg("Session sweeper stopped")
}

// IsRunning returns whether the sweeper is running
func (r *SessionRegistry) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *SessionRegistry) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.setStopped(doneCh)
			return
		case <-stopCh:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// setStopped clears running unless a newer sweeper has already taken over
func (r *SessionRegistry) setStopped(doneCh chan<- struct{}) {
	r.mu.Lock()
	if r.doneCh == doneCh {
		r.running = false
	}
	r.mu.Unlock()
}

// Sweep drops sessions idle for longer than the TTL. Busy sessions are kept.
func (r *SessionRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for id, session := range r.sessions {
		if now.Sub(session.lastUsed) <= r.ttl || session.manager.IsBusy() {
			continue
		}
		delete(r.sessions, id)
		removed++
		r.logger.Debug().
			Str("session_id", id.String()).
			Int32("contract_id", session.manager.ContractID()).
			Msg("Swept idle editing session")
	}
	return removed
}
