package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

// chatRequest mirrors the fields the tests inspect.
type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func completionServer(t *testing.T, reply string, captured *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			if captured != nil {
				require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":      "cmpl-1",
				"object":  "chat.completion",
				"model":   "test-model",
				"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}, "finish_reason": "stop"}},
			})
		case "/v1/models":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"test-model","object":"model"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestGenerator(t *testing.T, url string) *Generator {
	t.Helper()
	gen, err := NewGenerator(Config{BaseURL: url + "/v1", Model: "test-model", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return gen
}

type stubPromptStore struct {
	prompts map[string]string
}

func (s *stubPromptStore) Load(name string) (string, error) {
	p, ok := s.prompts[name]
	if !ok {
		return "", errors.New("missing")
	}
	return p, nil
}

func (s *stubPromptStore) Reload() {}

var _ driven.PromptStore = (*stubPromptStore)(nil)

func TestNewGenerator(t *testing.T) {
	t.Run("default url requires key", func(t *testing.T) {
		_, err := NewGenerator(Config{})
		assert.Error(t, err)
	})

	t.Run("local server without key", func(t *testing.T) {
		gen, err := NewGenerator(Config{BaseURL: "http://localhost:11434/v1/"})
		require.NoError(t, err)
		assert.Equal(t, DefaultModel, gen.ModelName())
	})

	t.Run("explicit model", func(t *testing.T) {
		gen, err := NewGenerator(Config{APIKey: "k", Model: "gpt-4o"})
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", gen.ModelName())
	})
}

func TestGenerator_Complete(t *testing.T) {
	var got chatRequest
	server := completionServer(t, "Building A has 12 access points.", &got)
	defer server.Close()

	gen := newTestGenerator(t, server.URL)

	out, err := gen.Complete(context.Background(), "How many access points?", 256, 0.5)
	require.NoError(t, err)
	assert.Equal(t, "Building A has 12 access points.", out)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.5, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "How many access points?", got.Messages[0].Content)
}

func TestGenerator_CompleteServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	gen := newTestGenerator(t, server.URL)

	_, err := gen.Complete(context.Background(), "hi", 10, 0)
	assert.ErrorIs(t, err, domain.ErrGeneratorUnavailable)
}

func TestGenerator_Rewrite(t *testing.T) {
	var got chatRequest
	server := completionServer(t, `  "How many outdoor access points are in Building A?"  `, &got)
	defer server.Close()

	gen := newTestGenerator(t, server.URL)
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "old question"},
		{Role: domain.RoleAssistant, Content: "old answer"},
		{Role: domain.RoleUser, Content: "How many access points in Building A?"},
		{Role: domain.RoleAssistant, Content: "There are 12."},
		{Role: domain.RoleUser, Content: "Tell me more about the outdoor ones"},
	}

	out, err := gen.Rewrite(context.Background(), "Tell me more about the outdoor ones", history)
	require.NoError(t, err)
	assert.Equal(t, "How many outdoor access points are in Building A?", out)

	require.Len(t, got.Messages, 1)
	prompt := got.Messages[0].Content
	assert.Contains(t, prompt, "user: How many access points in Building A?")
	assert.Contains(t, prompt, "assistant: There are 12.")
	assert.NotContains(t, prompt, "old question")
	assert.Equal(t, rewriteMaxTokens, got.MaxTokens)
}

func TestGenerator_RewriteUsesPromptStore(t *testing.T) {
	var got chatRequest
	server := completionServer(t, "rewritten", &got)
	defer server.Close()

	gen := newTestGenerator(t, server.URL)
	gen.SetPromptStore(&stubPromptStore{prompts: map[string]string{
		driven.PromptQueryRewrite: "CUSTOM history=%s query=%s",
	}})

	_, err := gen.Rewrite(context.Background(), "what about it", nil)
	require.NoError(t, err)
	assert.Equal(t, "CUSTOM history= query=what about it", got.Messages[0].Content)
}

func TestGenerator_Ping(t *testing.T) {
	server := completionServer(t, "", nil)
	defer server.Close()

	gen := newTestGenerator(t, server.URL)
	assert.NoError(t, gen.Ping(context.Background()))

	down, err := NewGenerator(Config{BaseURL: "http://127.0.0.1:1/v1", Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	assert.Error(t, down.Ping(context.Background()))
}
