package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

func TestAskCmd_Use(t *testing.T) {
	assert.Equal(t, "ask [question]", askCmd.Use)
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	setupTestRuntime(t, &mockConversationService{})

	_, err := execute(t, "", "ask")
	assert.Error(t, err)
}

func TestAskCmd_JoinsArgs(t *testing.T) {
	svc := &mockConversationService{}
	setupTestRuntime(t, svc)

	out, err := execute(t, "", "ask", "--thread", "t-7", "how", "many", "incidents?")
	require.NoError(t, err)

	assert.Equal(t, []string{"how many incidents?"}, svc.texts)
	assert.Equal(t, []string{"t-7"}, svc.threads)
	assert.Contains(t, out, "echo: how many incidents?")
	assert.NotContains(t, out, "thread t-7")
}

func TestAskCmd_PrintsGeneratedThread(t *testing.T) {
	svc := &mockConversationService{}
	setupTestRuntime(t, svc)

	out, err := execute(t, "", "ask", "hello")
	require.NoError(t, err)

	require.Len(t, svc.threads, 1)
	assert.Contains(t, out, "thread "+svc.threads[0])
}

func TestAskCmd_JSON(t *testing.T) {
	svc := &mockConversationService{
		reply: func(threadID, _ string) *domain.TurnResult {
			return &domain.TurnResult{
				ThreadID:   threadID,
				Response:   "There are 3 critical incidents.",
				Sources:    []string{"INC-1"},
				TurnCount:  1,
				Phase:      domain.PhaseResponding,
				Intent:     domain.IntentQuestion,
				Confidence: 1,
			}
		},
	}
	setupTestRuntime(t, svc)

	out, err := execute(t, "", "ask", "--json", "-t", "t-j", "how many critical incidents")
	require.NoError(t, err)

	var result domain.TurnResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "t-j", result.ThreadID)
	assert.Equal(t, "There are 3 critical incidents.", result.Response)
	assert.Equal(t, domain.IntentQuestion, result.Intent)
}
