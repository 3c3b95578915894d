package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the verb half of an event name
type EventType string

const (
	EventTypeCreated  EventType = "created"
	EventTypeUpdated  EventType = "updated"
	EventTypeDeleted  EventType = "deleted"
	EventTypeSaved    EventType = "saved"
	EventTypeRejected EventType = "rejected"
)

// EntityType is the noun half of an event name
type EntityType string

const (
	EntityTypeContract             EntityType = "contract"
	EntityTypeContractInstallments EntityType = "contract_installments"
	EntityTypeReceipt              EntityType = "receipt"
	EntityTypeSubscription         EntityType = "subscription"
)

// EventPublisher delivers events to the sockets of one workspace
type EventPublisher interface {
	Publish(workspaceID int32, event Event)
}

// Event is the frame pushed to clients: { type, entity, contractId, payload, timestamp }.
// ContractID is zero for events that are not about a single contract.
type Event struct {
	Type       string      `json:"type"`
	Entity     EntityType  `json:"entity"`
	ContractID int32       `json:"contractId,omitempty"`
	Payload    interface{} `json:"payload"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewEvent builds an event named "<entity>.<type>"
func NewEvent(eventType EventType, entityType EntityType, contractID int32, payload interface{}) Event {
	return Event{
		Type:       fmt.Sprintf("%s.%s", entityType, eventType),
		Entity:     entityType,
		ContractID: contractID,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON serializes the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func ContractCreated(contractID int32, payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeContract, contractID, payload)
}

func ContractUpdated(contractID int32, payload interface{}) Event {
	return NewEvent(EventTypeUpdated, EntityTypeContract, contractID, payload)
}

func ContractDeleted(contractID int32, payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeContract, contractID, payload)
}

// ContractInstallmentsSaved is emitted when an editing session persists its installment states
func ContractInstallmentsSaved(contractID int32, payload interface{}) Event {
	return NewEvent(EventTypeSaved, EntityTypeContractInstallments, contractID, payload)
}

func ReceiptCreated(contractID int32, payload interface{}) Event {
	return NewEvent(EventTypeCreated, EntityTypeReceipt, contractID, payload)
}

func ReceiptDeleted(contractID int32, payload interface{}) Event {
	return NewEvent(EventTypeDeleted, EntityTypeReceipt, contractID, payload)
}

// subscriptionUpdated acknowledges a client command with the resulting filter
func subscriptionUpdated(contractIDs []int32) Event {
	return NewEvent(EventTypeUpdated, EntityTypeSubscription, 0, map[string]interface{}{
		"contractIds": contractIDs,
	})
}

func subscriptionRejected(reason error) Event {
	return NewEvent(EventTypeRejected, EntityTypeSubscription, 0, map[string]interface{}{
		"message": reason.Error(),
	})
}
