// Package vectorstore provides a KnowledgeIndex backed by a remote vector
// store service speaking JSON over HTTP.
//
// Two endpoints are used:
//
//	POST /query  {"text", "top_k", "filters"} -> {"results": [...]}
//	POST /count  {"filters"}                  -> {"count": n}
package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// DefaultTimeout bounds each request to the vector store.
const DefaultTimeout = 10 * time.Second

// Ensure Index implements the interface.
var _ driven.KnowledgeIndex = (*Index)(nil)

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Text    string            `json:"text"`
	TopK    int               `json:"top_k,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// QueryResult is one match returned by the vector store.
type QueryResult struct {
	DocumentID  string         `json:"document_id"`
	Score       float64        `json:"score"`
	Text        string         `json:"text"`
	TextPreview string         `json:"text_preview"`
	Source      string         `json:"source"`
	Metadata    map[string]any `json:"metadata"`
}

// QueryResponse is the body returned by POST /query.
type QueryResponse struct {
	Query   string        `json:"query"`
	Count   int           `json:"count"`
	Results []QueryResult `json:"results"`
}

// CountRequest is the body of POST /count.
type CountRequest struct {
	Filters map[string]string `json:"filters,omitempty"`
}

// CountResponse is the body returned by POST /count.
type CountResponse struct {
	Count int `json:"count"`
}

// Index is a KnowledgeIndex client for a vector store service.
type Index struct {
	baseURL    string
	httpClient *resty.Client
}

// NewIndex creates a client for baseURL. A zero timeout uses DefaultTimeout.
// Returns nil if baseURL is empty.
func NewIndex(baseURL string, timeout time.Duration, apiKey string) *Index {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "sercha-chat/vectorstore").
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if apiKey != "" {
		httpClient.SetAuthToken(apiKey)
	}

	return &Index{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// IsEnabled reports whether the client has a target.
func (i *Index) IsEnabled() bool {
	return i != nil && i.baseURL != ""
}

// Search returns up to k results for query, best first.
func (i *Index) Search(
	ctx context.Context, query string, k int, filters domain.Filters,
) ([]domain.SearchResult, error) {
	if !i.IsEnabled() {
		return nil, domain.ErrIndexUnavailable
	}

	var resp QueryResponse
	httpResp, err := i.httpClient.R().
		SetContext(ctx).
		SetBody(QueryRequest{Text: query, TopK: k, Filters: filters}).
		SetResult(&resp).
		Post("/query")
	if err != nil {
		return nil, fmt.Errorf("vector store query request failed: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("vector store query error (%d): %s", httpResp.StatusCode(), httpResp.String())
	}

	results := make([]domain.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, toSearchResult(r))
	}
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of documents matching filters.
func (i *Index) Count(ctx context.Context, filters domain.Filters) (int, error) {
	if !i.IsEnabled() {
		return 0, domain.ErrIndexUnavailable
	}

	var resp CountResponse
	httpResp, err := i.httpClient.R().
		SetContext(ctx).
		SetBody(CountRequest{Filters: filters}).
		SetResult(&resp).
		Post("/count")
	if err != nil {
		return 0, fmt.Errorf("vector store count request failed: %w", err)
	}
	if httpResp.IsError() {
		return 0, fmt.Errorf("vector store count error (%d): %s", httpResp.StatusCode(), httpResp.String())
	}
	return resp.Count, nil
}

func toSearchResult(r QueryResult) domain.SearchResult {
	content := r.Text
	if content == "" {
		content = r.TextPreview
	}
	source := r.Source
	if source == "" {
		source = r.DocumentID
	}
	return domain.SearchResult{
		Content:  content,
		Score:    r.Score,
		Source:   source,
		Metadata: r.Metadata,
	}
}
