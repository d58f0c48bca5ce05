package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// --- Mock implementations ---

// mockIndex implements driven.KnowledgeIndex with call recording.
type mockIndex struct {
	mu sync.Mutex

	// byQuery maps a lowercased query to its results. Missing queries use fallback.
	byQuery  map[string][]domain.SearchResult
	fallback []domain.SearchResult
	count    int

	searchErr error
	countErr  error

	// failQueries makes Search fail for the listed lowercased queries.
	failQueries map[string]bool

	// panicOnSearch makes Search panic.
	panicOnSearch bool

	searchQueries []string
	countFilters  []domain.Filters
}

func (m *mockIndex) Search(_ context.Context, query string, k int, _ domain.Filters) ([]domain.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchQueries = append(m.searchQueries, query)
	if m.panicOnSearch {
		panic("index exploded")
	}
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	if m.failQueries[strings.ToLower(query)] {
		return nil, errBoom
	}
	results, ok := m.byQuery[strings.ToLower(query)]
	if !ok {
		results = m.fallback
	}
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (m *mockIndex) Count(_ context.Context, filters domain.Filters) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countFilters = append(m.countFilters, filters.Clone())
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.count, nil
}

func (m *mockIndex) searchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.searchQueries)
}

// mockGenerator implements driven.Generator.
type mockGenerator struct {
	rewriteOut string
	rewriteErr error
	completeFn func(prompt string) (string, error)

	rewrites  int
	completes int
	prompts   []string
}

func (m *mockGenerator) Rewrite(_ context.Context, _ string, _ []domain.Message) (string, error) {
	m.rewrites++
	return m.rewriteOut, m.rewriteErr
}

func (m *mockGenerator) Complete(_ context.Context, prompt string, _ int, _ float64) (string, error) {
	m.completes++
	m.prompts = append(m.prompts, prompt)
	if m.completeFn != nil {
		return m.completeFn(prompt)
	}
	return "generated answer", nil
}

var errBoom = errors.New("boom")

// failingGenerator errors on every call.
func failingGenerator() *mockGenerator {
	return &mockGenerator{
		rewriteErr: errBoom,
		completeFn: func(string) (string, error) { return "", errBoom },
	}
}

// mockCheckpointStore implements driven.CheckpointStore backed by a map of clones.
type mockCheckpointStore struct {
	mu      sync.Mutex
	states  map[string]*domain.ConversationState
	loadErr error
	saveErr error
	saves   int

	panicOnLoad bool
	panicOnSave bool
}

func newMockCheckpointStore() *mockCheckpointStore {
	return &mockCheckpointStore{states: map[string]*domain.ConversationState{}}
}

func (m *mockCheckpointStore) Load(_ context.Context, threadID string) (*domain.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnLoad {
		panic("checkpoint load exploded")
	}
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	state, ok := m.states[threadID]
	if !ok {
		return nil, nil
	}
	return state.Clone(), nil
}

func (m *mockCheckpointStore) Save(_ context.Context, threadID string, state *domain.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnSave {
		panic("checkpoint save exploded")
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.states[threadID] = state.Clone()
	return nil
}

func (m *mockCheckpointStore) set(fn func(m *mockCheckpointStore)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *mockCheckpointStore) get(threadID string) *domain.ConversationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[threadID]
}

// mockPromptStore implements driven.PromptStore.
type mockPromptStore struct {
	prompts map[string]string
	err     error
}

func (m *mockPromptStore) Load(name string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if p, ok := m.prompts[name]; ok {
		return p, nil
	}
	return "", domain.ErrNotFound
}

func (m *mockPromptStore) Reload() {}

// results builds n search results with distinct sources.
func results(n int, prefix string) []domain.SearchResult {
	out := make([]domain.SearchResult, n)
	for i := range out {
		out[i] = domain.SearchResult{
			Content: prefix + " content " + string(rune('a'+i)),
			Score:   1 - float64(i)*0.1,
			Source:  prefix + "-" + string(rune('a'+i)),
		}
	}
	return out
}
