package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// mockConversationService is a mock implementation of driving.ConversationService.
type mockConversationService struct {
	result   *domain.TurnResult
	messages []domain.Message
	err      error

	lastThread  string
	lastText    string
	lastLimit   int
	historyCall int
}

func (m *mockConversationService) ProcessMessage(
	_ context.Context, threadID, text string,
) (*domain.TurnResult, error) {
	m.lastThread = threadID
	m.lastText = text
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockConversationService) GetHistory(
	_ context.Context, threadID string, maxMessages int,
) ([]domain.Message, error) {
	m.lastThread = threadID
	m.lastLimit = maxMessages
	m.historyCall++
	if m.err != nil {
		return nil, m.err
	}
	return m.messages, nil
}
