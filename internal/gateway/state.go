package gateway

import (
	"sync"

	"github.com/relaybot/relaybot/pkg/models"
)

// conversation pairs a conversation's state with the lock that
// serializes its activities.
type conversation struct {
	mu    sync.Mutex
	state models.ConversationState
}

// StateStore holds per-conversation state in memory. Each conversation
// carries its own lock so activities for one conversation are handled
// one at a time while distinct conversations proceed in parallel.
type StateStore struct {
	mu            sync.Mutex
	conversations map[string]*conversation
}

// NewStateStore creates an empty state store.
func NewStateStore() *StateStore {
	return &StateStore{conversations: make(map[string]*conversation)}
}

func (s *StateStore) get(conversationID string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &conversation{}
		s.conversations[conversationID] = conv
	}
	return conv
}

// With runs fn while holding the conversation's lock. State mutations
// made by fn are retained.
func (s *StateStore) With(conversationID string, fn func(state *models.ConversationState)) {
	conv := s.get(conversationID)
	conv.mu.Lock()
	defer conv.mu.Unlock()
	fn(&conv.state)
}

// Drop removes a conversation's state entirely.
func (s *StateStore) Drop(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, conversationID)
}
