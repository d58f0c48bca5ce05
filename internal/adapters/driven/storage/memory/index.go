package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// Ensure KnowledgeIndex implements the interface.
var _ driven.KnowledgeIndex = (*KnowledgeIndex)(nil)

// indexStopwords are ignored when scoring term overlap.
var indexStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "in": {}, "on": {},
	"to": {}, "for": {}, "is": {}, "are": {}, "was": {}, "what": {}, "which": {},
	"how": {}, "me": {}, "about": {}, "tell": {}, "more": {}, "them": {}, "it": {},
	"do": {}, "does": {}, "with": {}, "there": {}, "this": {}, "that": {},
}

// indexedDoc is a document with its pre-computed term set.
type indexedDoc struct {
	doc   domain.IndexedDocument
	terms map[string]struct{}
}

// KnowledgeIndex is an in-memory term-overlap index over a small corpus.
// Scores are the fraction of distinct query terms found in a document.
type KnowledgeIndex struct {
	mu   sync.RWMutex
	docs []indexedDoc
}

// NewKnowledgeIndex creates an index holding docs.
func NewKnowledgeIndex(docs ...domain.IndexedDocument) *KnowledgeIndex {
	idx := &KnowledgeIndex{}
	idx.Add(docs...)
	return idx
}

// LoadCorpus reads a JSON array of documents from path into a new index.
func LoadCorpus(path string) (*KnowledgeIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	var docs []domain.IndexedDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parsing corpus %s: %w", path, err)
	}
	return NewKnowledgeIndex(docs...), nil
}

// Add indexes documents. A document whose ID is already indexed is replaced.
func (i *KnowledgeIndex) Add(docs ...domain.IndexedDocument) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, d := range docs {
		entry := indexedDoc{doc: d, terms: termSet(d.Content + " " + d.Source)}
		replaced := false
		for n := range i.docs {
			if d.ID != "" && i.docs[n].doc.ID == d.ID {
				i.docs[n] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			i.docs = append(i.docs, entry)
		}
	}
}

// Len returns the number of indexed documents.
func (i *KnowledgeIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.docs)
}

// Search returns up to k documents sharing terms with query, best first.
func (i *KnowledgeIndex) Search(
	ctx context.Context, query string, k int, filters domain.Filters,
) ([]domain.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return []domain.SearchResult{}, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	type scored struct {
		doc   domain.IndexedDocument
		score float64
	}
	var hits []scored
	for _, d := range i.docs {
		if !filters.Matches(d.doc.Metadata) {
			continue
		}
		matched := 0
		for t := range queryTerms {
			if _, ok := d.terms[t]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, scored{doc: d.doc, score: float64(matched) / float64(len(queryTerms))})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}

	results := make([]domain.SearchResult, len(hits))
	for n, h := range hits {
		results[n] = domain.SearchResult{
			Content:  h.doc.Content,
			Score:    h.score,
			Source:   h.doc.Source,
			Metadata: h.doc.Metadata,
		}
	}
	return results, nil
}

// Count returns the number of documents whose metadata matches filters.
func (i *KnowledgeIndex) Count(ctx context.Context, filters domain.Filters) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	// Chunks of one file share a source and count once.
	sources := make(map[string]struct{})
	for _, d := range i.docs {
		if filters.Matches(d.doc.Metadata) {
			key := d.doc.Source
			if key == "" {
				key = d.doc.ID
			}
			sources[key] = struct{}{}
		}
	}
	return len(sources), nil
}

func termSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := indexStopwords[f]; stop {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}
