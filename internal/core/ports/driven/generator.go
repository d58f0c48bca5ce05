package driven

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// Generator provides language model operations for query rewriting and answer synthesis.
// This is an optional service - when nil, features degrade gracefully to
// concatenated rewrites and extractive answers.
//
// Implementations are synchronous request/response. Streaming tokens to a
// client is the concern of an outer adapter, not of the core.
//
// Implementations may include:
//   - OpenAI (GPT-4o family)
//   - Ollama or LM Studio through their OpenAI-compatible endpoint
type Generator interface {
	// Rewrite turns a context-dependent query into a standalone one using the
	// trailing conversation history.
	Rewrite(ctx context.Context, query string, history []domain.Message) (string, error)

	// Complete produces a text completion for the prompt.
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}
