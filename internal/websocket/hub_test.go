package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient records frames and filters by an optional contract set
type mockClient struct {
	id          string
	workspaceID int32
	contracts   map[int32]bool

	mu       sync.Mutex
	messages [][]byte
	closed   bool
}

func newMockClient(id string, workspaceID int32, contracts ...int32) *mockClient {
	m := &mockClient{id: id, workspaceID: workspaceID}
	if len(contracts) > 0 {
		m.contracts = make(map[int32]bool)
		for _, c := range contracts {
			m.contracts[c] = true
		}
	}
	return m
}

func (m *mockClient) ID() string         { return m.id }
func (m *mockClient) WorkspaceID() int32 { return m.workspaceID }

func (m *mockClient) Wants(event Event) bool {
	return event.ContractID == 0 || m.contracts == nil || m.contracts[event.ContractID]
}

func (m *mockClient) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClientClosed
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockClient) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *mockClient) types(t *testing.T) []string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, 0, len(m.messages))
	for _, raw := range m.messages {
		var evt Event
		require.NoError(t, json.Unmarshal(raw, &evt))
		types = append(types, evt.Type)
	}
	return types
}

func waitForMessages(t *testing.T, client *mockClient, n int) {
	t.Helper()
	assert.Eventually(t, func() bool { return client.count() == n }, time.Second, 5*time.Millisecond,
		"client %s expected %d messages", client.id, n)
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub()
	a := newMockClient("a", 1)
	b := newMockClient("b", 1)
	c := newMockClient("c", 2)

	hub.Register(a)
	hub.Register(b)
	hub.Register(c)

	assert.Equal(t, 2, hub.ClientCount(1))
	assert.Equal(t, 1, hub.ClientCount(2))
	assert.Equal(t, 0, hub.ClientCount(999))
	assert.Equal(t, 3, hub.TotalClientCount())

	hub.Unregister(a)
	assert.Equal(t, 1, hub.ClientCount(1))

	hub.Unregister(b)
	hub.Unregister(c)
	assert.Equal(t, 0, hub.TotalClientCount())

	require.NotPanics(t, func() { hub.Unregister(newMockClient("ghost", 7)) })
}

func TestHub_Publish_WorkspaceIsolation(t *testing.T) {
	hub := NewHub()
	owner := newMockClient("owner", 1)
	ownerTab := newMockClient("owner-tab", 1)
	stranger := newMockClient("stranger", 2)
	hub.Register(owner)
	hub.Register(ownerTab)
	hub.Register(stranger)

	var publisher EventPublisher = hub
	publisher.Publish(1, ContractCreated(42, map[string]interface{}{"id": float64(42)}))

	waitForMessages(t, owner, 1)
	waitForMessages(t, ownerTab, 1)
	assert.Equal(t, []string{"contract.created"}, owner.types(t))
	assert.Never(t, func() bool { return stranger.count() > 0 }, 30*time.Millisecond, 5*time.Millisecond)
}

func TestHub_Broadcast_ContractFilter(t *testing.T) {
	hub := NewHub()
	everything := newMockClient("everything", 1)
	watching7 := newMockClient("watching-7", 1, 7)
	watching9 := newMockClient("watching-9", 1, 9)
	hub.Register(everything)
	hub.Register(watching7)
	hub.Register(watching9)

	hub.Broadcast(1, ContractInstallmentsSaved(7, map[string]interface{}{"contractId": float64(7)}))
	hub.Broadcast(1, ReceiptCreated(9, map[string]interface{}{"id": "r1"}))

	waitForMessages(t, everything, 2)
	waitForMessages(t, watching7, 1)
	waitForMessages(t, watching9, 1)
	assert.Equal(t, []string{"contract_installments.saved"}, watching7.types(t))
	assert.Equal(t, []string{"receipt.created"}, watching9.types(t))
}

func TestHub_Broadcast_WorkspaceWideEventsIgnoreFilter(t *testing.T) {
	hub := NewHub()
	watching7 := newMockClient("watching-7", 1, 7)
	hub.Register(watching7)

	hub.Broadcast(1, NewEvent(EventTypeUpdated, EntityTypeContract, 0, nil))

	waitForMessages(t, watching7, 1)
}

func TestHub_ConcurrentAccess(t *testing.T) {
	hub := NewHub()
	const clientCount = 50

	clients := make([]*mockClient, clientCount)
	for i := range clients {
		clients[i] = newMockClient(fmt.Sprintf("client-%d", i), int32(i%5))
	}

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *mockClient) {
			defer wg.Done()
			hub.Register(c)
		}(c)
	}
	wg.Wait()
	assert.Equal(t, clientCount, hub.TotalClientCount())

	for i, c := range clients {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			hub.Broadcast(int32(i%5), ContractUpdated(int32(i), map[string]interface{}{"id": float64(i)}))
		}(i)
		go func(c *mockClient) {
			defer wg.Done()
			hub.Unregister(c)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 0, hub.TotalClientCount())
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub()
	a := newMockClient("a", 1)
	b := newMockClient("b", 2)
	hub.Register(a)
	hub.Register(b)

	hub.CloseAll()

	assert.Equal(t, 0, hub.TotalClientCount())
	assert.True(t, a.IsClosed())
	assert.True(t, b.IsClosed())

	hub.Broadcast(1, ContractCreated(1, nil))
	assert.Never(t, func() bool { return a.count() > 0 }, 30*time.Millisecond, 5*time.Millisecond)
}
