package domain

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage(i int, role Role, content string) Message {
	return Message{
		ID:        fmt.Sprintf("msg-%d", i),
		Role:      role,
		Content:   content,
		Timestamp: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func TestNewConversationState(t *testing.T) {
	now := time.Now()
	s := NewConversationState("thread-1", now)

	require.NotNil(t, s)
	assert.Equal(t, "thread-1", s.ThreadID)
	assert.Equal(t, PhaseGreeting, s.Phase)
	assert.Equal(t, 0, s.TurnCount)
	assert.Empty(t, s.Messages)
	assert.Equal(t, now, s.CreatedAt)
}

func TestConversationState_AppendMessage_KeepsOrder(t *testing.T) {
	s := NewConversationState("t", time.Time{})
	for i := 0; i < 5; i++ {
		s.AppendMessage(testMessage(i, RoleUser, fmt.Sprintf("m%d", i)))
	}

	require.Len(t, s.Messages, 5)
	for i, m := range s.Messages {
		assert.Equal(t, fmt.Sprintf("m%d", i), m.Content)
	}
	assert.Equal(t, s.Messages[4].Timestamp, s.UpdatedAt)
}

func TestConversationState_LastMessages(t *testing.T) {
	s := NewConversationState("t", time.Time{})
	for i := 0; i < 6; i++ {
		s.AppendMessage(testMessage(i, RoleUser, fmt.Sprintf("m%d", i)))
	}

	t.Run("returns trailing window", func(t *testing.T) {
		last := s.LastMessages(2)
		require.Len(t, last, 2)
		assert.Equal(t, "m4", last[0].Content)
		assert.Equal(t, "m5", last[1].Content)
	})

	t.Run("larger than ledger returns all", func(t *testing.T) {
		assert.Len(t, s.LastMessages(100), 6)
	})

	t.Run("non-positive returns all", func(t *testing.T) {
		assert.Len(t, s.LastMessages(0), 6)
	})

	t.Run("returns a copy", func(t *testing.T) {
		last := s.LastMessages(1)
		last[0].Content = "changed"
		assert.Equal(t, "m5", s.Messages[5].Content)
	})
}

func TestConversationState_ByRole(t *testing.T) {
	s := NewConversationState("t", time.Time{})
	s.AppendMessage(testMessage(0, RoleUser, "q1"))
	s.AppendMessage(testMessage(1, RoleAssistant, "a1"))
	s.AppendMessage(testMessage(2, RoleUser, "q2"))

	users := s.MessagesByRole(RoleUser)
	require.Len(t, users, 2)
	assert.Equal(t, "q2", users[1].Content)

	last, ok := s.LastMessage(RoleAssistant)
	require.True(t, ok)
	assert.Equal(t, "a1", last.Content)
	assert.True(t, s.HasAssistantTurn())

	empty := NewConversationState("t", time.Time{})
	_, ok = empty.LastMessage(RoleAssistant)
	assert.False(t, ok)
	assert.False(t, empty.HasAssistantTurn())
}

func TestConversationState_TrackTopic(t *testing.T) {
	s := NewConversationState("t", time.Time{})

	t.Run("caps at five most recent", func(t *testing.T) {
		for i := 0; i < 8; i++ {
			s.TrackTopic(fmt.Sprintf("Topic %d", i))
		}
		assert.Len(t, s.TopicEntities, MaxTopicEntities)
		assert.Equal(t, "Topic 3", s.TopicEntities[0])
		assert.Equal(t, "Topic 7", s.LatestTopic())
	})

	t.Run("re-tracking moves to most recent", func(t *testing.T) {
		s.TrackTopic("Topic 4")
		assert.Len(t, s.TopicEntities, MaxTopicEntities)
		assert.Equal(t, "Topic 4", s.LatestTopic())
		assert.Equal(t, []string{"Topic 3", "Topic 5", "Topic 6", "Topic 7", "Topic 4"}, s.TopicEntities)
	})

	t.Run("empty entity ignored", func(t *testing.T) {
		s.TrackTopic("")
		assert.Equal(t, "Topic 4", s.LatestTopic())
	})
}

func TestConversationState_SetEvidence_KeepsAlignment(t *testing.T) {
	s := NewConversationState("t", time.Time{})
	s.SetEvidence([]SearchResult{
		{Content: "first", Source: "a"},
		{Content: "second", Source: "b"},
	})

	require.Len(t, s.SearchResults, 2)
	require.Len(t, s.ContextChunks, 2)
	for i := range s.SearchResults {
		assert.Equal(t, s.SearchResults[i].Content, s.ContextChunks[i])
	}

	s.ClearEvidence()
	assert.Empty(t, s.SearchResults)
	assert.Empty(t, s.ContextChunks)
	assert.Nil(t, s.Aggregation)
}

func TestConversationState_RecordError(t *testing.T) {
	s := NewConversationState("t", time.Time{})
	for i := 0; i < MaxErrorMessages+3; i++ {
		s.RecordError(fmt.Sprintf("err %d", i))
	}

	assert.True(t, s.HasErrors)
	assert.Equal(t, MaxErrorMessages+3, s.ErrorCount)
	assert.Len(t, s.ErrorMessages, MaxErrorMessages)
	assert.Equal(t, "err 3", s.ErrorMessages[0])
}

func TestConversationState_TrimHistory(t *testing.T) {
	t.Run("drops oldest beyond message cap", func(t *testing.T) {
		s := NewConversationState("t", time.Time{})
		for i := 0; i < 10; i++ {
			s.AppendMessage(testMessage(i, RoleUser, fmt.Sprintf("m%d", i)))
		}

		dropped := s.TrimHistory(6, 0)
		assert.Equal(t, 4, dropped)
		require.Len(t, s.Messages, 6)
		assert.Equal(t, "m4", s.Messages[0].Content)
		assert.Equal(t, "m9", s.Messages[5].Content)
	})

	t.Run("keeps initial greeting", func(t *testing.T) {
		s := NewConversationState("t", time.Time{})
		s.AppendMessage(testMessage(0, RoleUser, "hello"))
		greeting := testMessage(1, RoleAssistant, "Hello! How can I help?")
		greeting.Metadata = &MessageMetadata{Intent: IntentGreeting}
		s.AppendMessage(greeting)
		for i := 2; i < 10; i++ {
			s.AppendMessage(testMessage(i, RoleUser, fmt.Sprintf("m%d", i)))
		}

		s.TrimHistory(5, 0)
		require.Len(t, s.Messages, 5)
		assert.Equal(t, "Hello! How can I help?", s.Messages[0].Content)
		assert.Equal(t, "m6", s.Messages[1].Content)
	})

	t.Run("character cap never drops recent messages", func(t *testing.T) {
		s := NewConversationState("t", time.Time{})
		for i := 0; i < 6; i++ {
			s.AppendMessage(testMessage(i, RoleUser, strings.Repeat("x", 100)))
		}

		dropped := s.TrimHistory(0, 50)
		assert.Equal(t, 2, dropped)
		assert.Len(t, s.Messages, MinRecentMessages)
	})

	t.Run("within caps is a no-op", func(t *testing.T) {
		s := NewConversationState("t", time.Time{})
		s.AppendMessage(testMessage(0, RoleUser, "short"))
		assert.Equal(t, 0, s.TrimHistory(10, 1000))
		assert.Len(t, s.Messages, 1)
	})
}

func TestConversationState_Clone(t *testing.T) {
	s := NewConversationState("t", time.Now().UTC())
	s.AppendMessage(testMessage(0, RoleUser, "q"))
	s.TrackTopic("Building A")

	cp := s.Clone()
	require.NotNil(t, cp)
	cp.Messages[0].Content = "changed"
	cp.TopicEntities[0] = "Building B"

	assert.Equal(t, "q", s.Messages[0].Content)
	assert.Equal(t, "Building A", s.TopicEntities[0])

	var nilState *ConversationState
	assert.Nil(t, nilState.Clone())
}
