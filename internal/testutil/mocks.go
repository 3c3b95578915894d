package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/websocket"
	"github.com/google/uuid"
)

// FixedClock is a util.Clock that always reports the same day
type FixedClock struct {
	Day time.Time
}

// Today returns the fixed day
func (c FixedClock) Today() time.Time {
	return c.Day
}

// MockUserRepository is a mock implementation of domain.UserRepository
type MockUserRepository struct {
	Users    map[string]*domain.User
	CreateFn func(auth0ID, email string, name, pictureURL *string) (*domain.User, error)
}

// NewMockUserRepository creates a new MockUserRepository
func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{
		Users: make(map[string]*domain.User),
	}
}

// GetByAuth0ID retrieves a user by their Auth0 ID
func (m *MockUserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	if user, ok := m.Users[auth0ID]; ok {
		return user, nil
	}
	return nil, domain.ErrUserNotFound
}

// CreateOrGetByAuth0ID returns the existing user or creates one
func (m *MockUserRepository) CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name, pictureURL *string) (*domain.User, error) {
	if m.CreateFn != nil {
		return m.CreateFn(auth0ID, email, name, pictureURL)
	}
	if user, ok := m.Users[auth0ID]; ok {
		return user, nil
	}
	user := &domain.User{
		ID:         uuid.New(),
		Auth0ID:    auth0ID,
		Email:      email,
		Name:       name,
		PictureURL: pictureURL,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	m.Users[auth0ID] = user
	return user, nil
}

// AddUser adds a user to the mock repository
func (m *MockUserRepository) AddUser(user *domain.User) {
	m.Users[user.Auth0ID] = user
}

// MockWorkspaceRepository is a mock implementation of domain.WorkspaceRepository
type MockWorkspaceRepository struct {
	Workspaces  map[int32]*domain.Workspace
	ByUserID    map[uuid.UUID]*domain.Workspace
	ByAuth0ID   map[string]*domain.Workspace
	NextID      int32
	CreateFn    func(workspace *domain.Workspace) (*domain.Workspace, error)
	GetByUserFn func(userID uuid.UUID) (*domain.Workspace, error)
}

// NewMockWorkspaceRepository creates a new MockWorkspaceRepository
func NewMockWorkspaceRepository() *MockWorkspaceRepository {
	return &MockWorkspaceRepository{
		Workspaces: make(map[int32]*domain.Workspace),
		ByUserID:   make(map[uuid.UUID]*domain.Workspace),
		ByAuth0ID:  make(map[string]*domain.Workspace),
		NextID:     1,
	}
}

// GetByUserID retrieves a workspace by user ID
func (m *MockWorkspaceRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Workspace, error) {
	if m.GetByUserFn != nil {
		return m.GetByUserFn(userID)
	}
	if ws, ok := m.ByUserID[userID]; ok {
		return ws, nil
	}
	return nil, domain.ErrWorkspaceNotFound
}

// GetByUserAuth0ID retrieves a workspace by the owning user's Auth0 ID
func (m *MockWorkspaceRepository) GetByUserAuth0ID(ctx context.Context, auth0ID string) (*domain.Workspace, error) {
	if ws, ok := m.ByAuth0ID[auth0ID]; ok {
		return ws, nil
	}
	return nil, domain.ErrWorkspaceNotFound
}

// Create creates a new workspace
func (m *MockWorkspaceRepository) Create(ctx context.Context, workspace *domain.Workspace) (*domain.Workspace, error) {
	if m.CreateFn != nil {
		return m.CreateFn(workspace)
	}
	workspace.ID = m.NextID
	m.NextID++
	m.Workspaces[workspace.ID] = workspace
	m.ByUserID[workspace.UserID] = workspace
	return workspace, nil
}

// AddWorkspace adds a workspace reachable by user ID and Auth0 ID
func (m *MockWorkspaceRepository) AddWorkspace(workspace *domain.Workspace, auth0ID string) {
	m.Workspaces[workspace.ID] = workspace
	m.ByUserID[workspace.UserID] = workspace
	m.ByAuth0ID[auth0ID] = workspace
}

// MockContractRepository is an in-memory domain.ContractRepository.
// Contracts are stored with their installments, like the postgres repository returns them.
type MockContractRepository struct {
	mu        sync.Mutex
	Contracts map[int32]*domain.Contract
	NextID    int32
	CreateFn  func(contract *domain.Contract) (*domain.Contract, error)
	GetByIDFn func(workspaceID, id int32) (*domain.Contract, error)
	UpdateFn  func(contract *domain.Contract, replaceInstallments bool) (*domain.Contract, error)
}

// NewMockContractRepository creates a new MockContractRepository
func NewMockContractRepository() *MockContractRepository {
	return &MockContractRepository{
		Contracts: make(map[int32]*domain.Contract),
		NextID:    1,
	}
}

func copyContract(c *domain.Contract) *domain.Contract {
	cp := *c
	cp.Installments = domain.CloneInstallments(c.Installments)
	if cp.Installments == nil {
		cp.Installments = []domain.Installment{}
	}
	return &cp
}

// Create stores a new contract with its installments
func (m *MockContractRepository) Create(ctx context.Context, contract *domain.Contract) (*domain.Contract, error) {
	if m.CreateFn != nil {
		return m.CreateFn(contract)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	contract.ID = m.NextID
	m.NextID++
	contract.CreatedAt = time.Now()
	contract.UpdatedAt = contract.CreatedAt
	m.Contracts[contract.ID] = copyContract(contract)
	return copyContract(contract), nil
}

// GetByID retrieves a contract within a workspace
func (m *MockContractRepository) GetByID(ctx context.Context, workspaceID int32, id int32) (*domain.Contract, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(workspaceID, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	contract, ok := m.Contracts[id]
	if !ok || contract.WorkspaceID != workspaceID || contract.DeletedAt != nil {
		return nil, domain.ErrContractNotFound
	}
	return copyContract(contract), nil
}

// GetAllByWorkspace lists the non-deleted contracts of a workspace ordered by ID
func (m *MockContractRepository) GetAllByWorkspace(ctx context.Context, workspaceID int32) ([]*domain.Contract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := []*domain.Contract{}
	for id := int32(1); id < m.NextID; id++ {
		contract, ok := m.Contracts[id]
		if !ok || contract.WorkspaceID != workspaceID || contract.DeletedAt != nil {
			continue
		}
		result = append(result, copyContract(contract))
	}
	return result, nil
}

// Update writes contract fields and optionally replaces its installments
func (m *MockContractRepository) Update(ctx context.Context, contract *domain.Contract, replaceInstallments bool) (*domain.Contract, error) {
	if m.UpdateFn != nil {
		return m.UpdateFn(contract, replaceInstallments)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.Contracts[contract.ID]
	if !ok || existing.WorkspaceID != contract.WorkspaceID || existing.DeletedAt != nil {
		return nil, domain.ErrContractNotFound
	}
	updated := copyContract(contract)
	if !replaceInstallments {
		updated.Installments = domain.CloneInstallments(existing.Installments)
	}
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now()
	m.Contracts[contract.ID] = updated
	return copyContract(updated), nil
}

// SoftDelete marks a contract deleted
func (m *MockContractRepository) SoftDelete(ctx context.Context, workspaceID int32, id int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	contract, ok := m.Contracts[id]
	if !ok || contract.WorkspaceID != workspaceID || contract.DeletedAt != nil {
		return domain.ErrContractNotFound
	}
	now := time.Now()
	contract.DeletedAt = &now
	return nil
}

// AddContract stores a contract as-is
func (m *MockContractRepository) AddContract(contract *domain.Contract) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Contracts[contract.ID] = copyContract(contract)
	if contract.ID >= m.NextID {
		m.NextID = contract.ID + 1
	}
}

// MockInstallmentRepository stores installments in the contracts of a MockContractRepository
type MockInstallmentRepository struct {
	Contracts    *MockContractRepository
	ReplaceAllFn func(contractID int32, installments []domain.Installment) error
	ReplaceCalls int
}

// NewMockInstallmentRepository creates an installment repository backed by the given contracts
func NewMockInstallmentRepository(contracts *MockContractRepository) *MockInstallmentRepository {
	return &MockInstallmentRepository{Contracts: contracts}
}

// GetByContractID returns a contract's installments
func (m *MockInstallmentRepository) GetByContractID(ctx context.Context, contractID int32) ([]domain.Installment, error) {
	m.Contracts.mu.Lock()
	defer m.Contracts.mu.Unlock()

	contract, ok := m.Contracts.Contracts[contractID]
	if !ok {
		return nil, domain.ErrContractNotFound
	}
	return domain.CloneInstallments(contract.Installments), nil
}

// ReplaceAll swaps a contract's installments
func (m *MockInstallmentRepository) ReplaceAll(ctx context.Context, contractID int32, installments []domain.Installment) error {
	m.ReplaceCalls++
	if m.ReplaceAllFn != nil {
		return m.ReplaceAllFn(contractID, installments)
	}
	m.Contracts.mu.Lock()
	defer m.Contracts.mu.Unlock()

	contract, ok := m.Contracts.Contracts[contractID]
	if !ok {
		return domain.ErrContractNotFound
	}
	contract.Installments = domain.CloneInstallments(installments)
	return nil
}

// MockContractStore is a mock domain.ContractStore holding a single contract
type MockContractStore struct {
	mu           sync.Mutex
	Contract     *domain.Contract
	FetchFn      func(ctx context.Context, contractID int32) (*domain.Contract, error)
	PersistFn    func(ctx context.Context, contractID int32, installments []domain.Installment) error
	PersistCalls [][]domain.Installment
	FetchCalls   int
}

// NewMockContractStore creates a store serving the given contract
func NewMockContractStore(contract *domain.Contract) *MockContractStore {
	return &MockContractStore{Contract: contract}
}

// FetchContract returns a copy of the stored contract
func (m *MockContractStore) FetchContract(ctx context.Context, contractID int32) (*domain.Contract, error) {
	m.mu.Lock()
	m.FetchCalls++
	m.mu.Unlock()

	if m.FetchFn != nil {
		return m.FetchFn(ctx, contractID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Contract == nil || m.Contract.ID != contractID {
		return nil, domain.ErrContractNotFound
	}
	return copyContract(m.Contract), nil
}

// PersistInstallments records the call and stores the installments
func (m *MockContractStore) PersistInstallments(ctx context.Context, contractID int32, installments []domain.Installment) error {
	m.mu.Lock()
	m.PersistCalls = append(m.PersistCalls, domain.CloneInstallments(installments))
	m.mu.Unlock()

	if m.PersistFn != nil {
		return m.PersistFn(ctx, contractID, installments)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Contract == nil || m.Contract.ID != contractID {
		return domain.ErrContractNotFound
	}
	m.Contract.Installments = domain.CloneInstallments(installments)
	return nil
}

// SetInstallments replaces the persisted installments, simulating another writer
func (m *MockContractStore) SetInstallments(installments []domain.Installment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Contract.Installments = domain.CloneInstallments(installments)
}

// MockProgressCache is an in-memory domain.ProgressCache
type MockProgressCache struct {
	mu          sync.Mutex
	Entries     map[string]*domain.Progress
	Invalidated []int32
	SetFn       func(contractID int32, day time.Time, progress *domain.Progress) error
}

// NewMockProgressCache creates a new MockProgressCache
func NewMockProgressCache() *MockProgressCache {
	return &MockProgressCache{Entries: make(map[string]*domain.Progress)}
}

func progressKey(contractID int32, day time.Time) string {
	return fmt.Sprintf("%d:%s", contractID, day.Format("2006-01-02"))
}

// Get returns a memoized progress
func (m *MockProgressCache) Get(ctx context.Context, contractID int32, day time.Time) (*domain.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Entries[progressKey(contractID, day)]
	return p, ok
}

// Set memoizes a progress
func (m *MockProgressCache) Set(ctx context.Context, contractID int32, day time.Time, progress *domain.Progress) error {
	if m.SetFn != nil {
		return m.SetFn(contractID, day, progress)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries[progressKey(contractID, day)] = progress
	return nil
}

// Invalidate drops all entries of a contract
func (m *MockProgressCache) Invalidate(ctx context.Context, contractID int32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := fmt.Sprintf("%d:", contractID)
	for key := range m.Entries {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(m.Entries, key)
		}
	}
	m.Invalidated = append(m.Invalidated, contractID)
	return nil
}

// MockReceiptRepository is an in-memory domain.ReceiptRepository
type MockReceiptRepository struct {
	Receipts map[uuid.UUID]*domain.Receipt
	CreateFn func(receipt *domain.Receipt) (*domain.Receipt, error)
}

// NewMockReceiptRepository creates a new MockReceiptRepository
func NewMockReceiptRepository() *MockReceiptRepository {
	return &MockReceiptRepository{Receipts: make(map[uuid.UUID]*domain.Receipt)}
}

// Create stores a receipt
func (m *MockReceiptRepository) Create(ctx context.Context, receipt *domain.Receipt) (*domain.Receipt, error) {
	if m.CreateFn != nil {
		return m.CreateFn(receipt)
	}
	receipt.CreatedAt = time.Now()
	m.Receipts[receipt.ID] = receipt
	return receipt, nil
}

// GetByID retrieves a receipt of a contract
func (m *MockReceiptRepository) GetByID(ctx context.Context, contractID int32, id uuid.UUID) (*domain.Receipt, error) {
	r, ok := m.Receipts[id]
	if !ok || r.ContractID != contractID {
		return nil, domain.ErrReceiptNotFound
	}
	return r, nil
}

// GetByInstallment lists receipts of one installment
func (m *MockReceiptRepository) GetByInstallment(ctx context.Context, contractID int32, number int32) ([]*domain.Receipt, error) {
	result := []*domain.Receipt{}
	for _, r := range m.Receipts {
		if r.ContractID == contractID && r.InstallmentNumber == number {
			result = append(result, r)
		}
	}
	return result, nil
}

// Delete removes a receipt
func (m *MockReceiptRepository) Delete(ctx context.Context, contractID int32, id uuid.UUID) error {
	r, ok := m.Receipts[id]
	if !ok || r.ContractID != contractID {
		return domain.ErrReceiptNotFound
	}
	delete(m.Receipts, id)
	return nil
}

// MockObjectStorage is an in-memory storage.ReceiptStorage
type MockObjectStorage struct {
	mu       sync.Mutex
	Objects  map[string][]byte
	UploadFn func(objectPath string) error
}

// NewMockObjectStorage creates a new MockObjectStorage
func NewMockObjectStorage() *MockObjectStorage {
	return &MockObjectStorage{Objects: make(map[string][]byte)}
}

// Upload stores the object bytes
func (m *MockObjectStorage) Upload(ctx context.Context, objectPath string, data io.Reader, contentType string, size int64) (string, error) {
	if m.UploadFn != nil {
		if err := m.UploadFn(objectPath); err != nil {
			return "", err
		}
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[objectPath] = buf.Bytes()
	return objectPath, nil
}

// Delete removes an object
func (m *MockObjectStorage) Delete(ctx context.Context, objectPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, objectPath)
	return nil
}

// DeleteAll removes several objects
func (m *MockObjectStorage) DeleteAll(ctx context.Context, objectPaths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range objectPaths {
		delete(m.Objects, p)
	}
	return nil
}

// Count returns the number of stored objects
func (m *MockObjectStorage) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Objects)
}

// GeneratePresignedURL returns a fake URL for the object
func (m *MockObjectStorage) GeneratePresignedURL(ctx context.Context, objectPath string, expiry time.Duration) (string, error) {
	return "https://storage.test/" + objectPath, nil
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

// PublishedEvent is an event captured by MockEventPublisher
type PublishedEvent struct {
	WorkspaceID int32
	Event       websocket.Event
}

// Publish records the event
func (m *MockEventPublisher) Publish(workspaceID int32, event websocket.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{WorkspaceID: workspaceID, Event: event})
}

// Types returns the types of all recorded events in order
func (m *MockEventPublisher) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.Events))
	for i, e := range m.Events {
		types[i] = e.Event.Type
	}
	return types
}
