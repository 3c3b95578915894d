package websocket

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
)

// Actions a client may send over its socket
const (
	ActionSubscribe    = "subscribe"
	ActionUnsubscribe  = "unsubscribe"
	ActionSubscribeAll = "subscribe_all"
)

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownAction    = errors.New("unknown action")
	ErrMissingContract  = errors.New("contractId is required")
)

// Command is a client to server message, e.g. {"action":"subscribe","contractId":7}
type Command struct {
	Action     string `json:"action"`
	ContractID int32  `json:"contractId,omitempty"`
}

func parseCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, ErrMalformedCommand
	}
	switch cmd.Action {
	case ActionSubscribe, ActionUnsubscribe:
		if cmd.ContractID <= 0 {
			return Command{}, ErrMissingContract
		}
	case ActionSubscribeAll:
	default:
		return Command{}, ErrUnknownAction
	}
	return cmd, nil
}

// subscriptions narrows a client's stream to a set of contracts.
// An empty set receives every event of the workspace.
type subscriptions struct {
	mu        sync.RWMutex
	contracts map[int32]struct{}
}

func (s *subscriptions) apply(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Action {
	case ActionSubscribe:
		if s.contracts == nil {
			s.contracts = make(map[int32]struct{})
		}
		s.contracts[cmd.ContractID] = struct{}{}
	case ActionUnsubscribe:
		delete(s.contracts, cmd.ContractID)
	case ActionSubscribeAll:
		s.contracts = nil
	}
}

// matches reports whether the event passes the filter. Workspace-wide events
// carry no contract and always pass.
func (s *subscriptions) matches(event Event) bool {
	if event.ContractID == 0 {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.contracts) == 0 {
		return true
	}
	_, ok := s.contracts[event.ContractID]
	return ok
}

func (s *subscriptions) list() []int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int32, 0, len(s.contracts))
	for id := range s.contracts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
