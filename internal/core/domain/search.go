package domain

import (
	"fmt"
	"sort"
	"strings"
)

// SearchResult represents a single piece of evidence returned by the knowledge index.
type SearchResult struct {
	// Content is the text of the matched chunk.
	Content string `json:"content"`

	// Score is the relevance score (0-1).
	Score float64 `json:"score"`

	// Source identifies where the content came from (URI, ticket id, file name).
	Source string `json:"source"`

	// Metadata carries index-specific attributes.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Filters constrains a search or count to documents whose metadata matches
// every key/value pair.
type Filters map[string]string

// Clone returns an independent copy of the filters.
func (f Filters) Clone() Filters {
	if f == nil {
		return nil
	}
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// String renders filters deterministically as "k=v, k=v".
func (f Filters) String() string {
	if len(f) == 0 {
		return ""
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, f[k]))
	}
	return strings.Join(parts, ", ")
}

// Matches reports whether metadata satisfies all filters (case-insensitive).
func (f Filters) Matches(metadata map[string]any) bool {
	for k, want := range f {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		if !strings.EqualFold(fmt.Sprint(got), want) {
			return false
		}
	}
	return true
}

// AggregationResult is the outcome of a count query that bypassed similarity search.
type AggregationResult struct {
	// Count is the number of matching documents.
	Count int `json:"count"`

	// Filters are the constraints that were counted.
	Filters Filters `json:"filters,omitempty"`

	// Subject is the counted noun as the user phrased it ("incidents").
	Subject string `json:"subject,omitempty"`
}

// IndexedDocument is a document held by a local knowledge index.
type IndexedDocument struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
