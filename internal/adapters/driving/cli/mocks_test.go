package cli

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// mockConversationService replies with a canned result for each message.
type mockConversationService struct {
	mu sync.Mutex

	reply    func(threadID, text string) *domain.TurnResult
	messages []domain.Message
	err      error

	threads   []string
	texts     []string
	lastLimit int
}

func (m *mockConversationService) ProcessMessage(
	_ context.Context, threadID, text string,
) (*domain.TurnResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads = append(m.threads, threadID)
	m.texts = append(m.texts, text)
	if m.err != nil {
		return nil, m.err
	}
	if m.reply != nil {
		return m.reply(threadID, text), nil
	}
	return &domain.TurnResult{
		ThreadID:  threadID,
		Response:  "echo: " + text,
		TurnCount: len(m.texts),
		Phase:     domain.PhaseResponding,
	}, nil
}

func (m *mockConversationService) GetHistory(
	_ context.Context, threadID string, maxMessages int,
) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads = append(m.threads, threadID)
	m.lastLimit = maxMessages
	if m.err != nil {
		return nil, m.err
	}
	return m.messages, nil
}

// mockPromptWatcher records Watch calls.
type mockPromptWatcher struct {
	watched bool
	err     error
}

func (m *mockPromptWatcher) Watch(_ context.Context, _ func(name string)) error {
	m.watched = true
	return m.err
}

// setupTestRuntime installs a builder returning svc and resets global state
// when the test ends.
func setupTestRuntime(t *testing.T, svc *mockConversationService) *Runtime {
	t.Helper()

	rt := &Runtime{Conversation: svc}
	SetRuntimeBuilder(func(_ context.Context, _ RuntimeOptions) (*Runtime, error) {
		return rt, nil
	})

	t.Cleanup(func() {
		SetRuntimeBuilder(nil)
		rootCmd.SetContext(context.Background())
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		noConfig = false
		chatThreadID = ""
		askThreadID = ""
		askJSON = false
		historyThreadID = ""
		historyLimit = 20
		historyJSON = false
		servePort = 0
		serveAddr = ""
		serveMetricsAddr = ""
	})
	return rt
}

// execute runs the root command with args and stdin, returning stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(bytes.NewBufferString(stdin))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), err
}
