// Package memory provides in-memory implementations of driven ports for
// development, tests and small local corpora.
package memory

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Ensure CheckpointStore implements the interface.
var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore is an in-memory implementation of driven.CheckpointStore.
// States are deep-copied on the way in and out so callers never share memory
// with the store.
type CheckpointStore struct {
	mu     sync.RWMutex
	states map[string]*domain.ConversationState
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		states: make(map[string]*domain.ConversationState),
	}
}

// Load returns a copy of the checkpoint for threadID, or nil if none exists.
func (s *CheckpointStore) Load(_ context.Context, threadID string) (*domain.ConversationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[threadID]
	if !ok {
		return nil, nil
	}
	return state.Clone(), nil
}

// Save stores a copy of state under threadID.
func (s *CheckpointStore) Save(_ context.Context, threadID string, state *domain.ConversationState) error {
	if state == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[threadID] = state.Clone()
	return nil
}

// Threads returns the number of stored threads.
func (s *CheckpointStore) Threads() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}
