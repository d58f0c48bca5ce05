package driven

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// KnowledgeIndex provides retrieval over the document index.
// Backed by a remote vector store or a local in-memory index.
type KnowledgeIndex interface {
	// Search returns up to k results ordered by descending relevance.
	// An empty slice (not an error) is returned when nothing matches.
	// Implementations may return an error on transient failure.
	Search(ctx context.Context, query string, k int, filters domain.Filters) ([]domain.SearchResult, error)

	// Count returns the number of documents matching filters.
	Count(ctx context.Context, filters domain.Filters) (int, error)
}
