package driven

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// CheckpointStore persists conversation state between turns.
// Writes are last-writer-wins per thread id. Implementations must guarantee
// at most one writer per thread id at a time; the core assumes this.
type CheckpointStore interface {
	// Load returns the persisted state for threadID, or nil with no error when
	// the thread has no checkpoint yet.
	Load(ctx context.Context, threadID string) (*domain.ConversationState, error)

	// Save stores state under threadID, replacing any previous checkpoint.
	Save(ctx context.Context, threadID string, state *domain.ConversationState) error
}
