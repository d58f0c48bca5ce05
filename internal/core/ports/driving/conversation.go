package driving

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// ConversationService runs conversation turns for external actors.
type ConversationService interface {
	// ProcessMessage runs one turn for threadID and returns the assistant's reply.
	// Collaborator failures never surface as errors; they are rendered as
	// natural language in the result. An error is returned only for invalid
	// input such as an empty thread id.
	ProcessMessage(ctx context.Context, threadID, text string) (*domain.TurnResult, error)

	// GetHistory returns up to maxMessages of the most recent messages for
	// threadID in ledger order. A non-positive maxMessages returns all.
	GetHistory(ctx context.Context, threadID string, maxMessages int) ([]domain.Message, error)
}
