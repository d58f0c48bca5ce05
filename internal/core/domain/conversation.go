package domain

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// Bounds applied to the conversation record.
const (
	// MaxTopicEntities caps the recency list of tracked topics.
	MaxTopicEntities = 5

	// MaxSuggestedQuestions caps suggested follow-up questions.
	MaxSuggestedQuestions = 3

	// MaxRelatedTopics caps related topics offered to the user.
	MaxRelatedTopics = 5

	// MaxErrorMessages caps the retained error messages. ErrorCount keeps counting.
	MaxErrorMessages = 10

	// MinRecentMessages is the number of most recent messages TrimHistory never drops.
	MinRecentMessages = 4
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry in the append-only conversation ledger.
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata carries optional details attached to assistant messages.
type MessageMetadata struct {
	Sources     []string `json:"sources,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	Intent      Intent   `json:"intent,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	Strategy    string   `json:"strategy,omitempty"`
}

// ConversationState is the canonical per-thread record.
// It is owned exclusively by the orchestrator for the duration of a turn.
type ConversationState struct {
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`

	TurnCount int   `json:"turn_count"`
	Phase     Phase `json:"phase"`

	UserIntent      Intent     `json:"user_intent"`
	QueryComplexity Complexity `json:"query_complexity"`
	OriginalQuery   string     `json:"original_query"`
	ProcessedQuery  string     `json:"processed_query"`
	IsContextual    bool       `json:"is_contextual"`
	IsInterrogative bool       `json:"is_interrogative"`
	TopicEntities   []string   `json:"topic_entities"`
	QueryKeywords   []string   `json:"query_keywords"`

	SearchResults         []SearchResult     `json:"search_results"`
	ContextChunks         []string           `json:"context_chunks"`
	Aggregation           *AggregationResult `json:"aggregation,omitempty"`
	LastStrategy          string             `json:"last_strategy,omitempty"`
	RequiresClarification bool               `json:"requires_clarification"`

	SuggestedQuestions []string `json:"suggested_questions"`
	RelatedTopics      []string `json:"related_topics"`

	HasErrors     bool     `json:"has_errors"`
	ErrorMessages []string `json:"error_messages"`
	ErrorCount    int      `json:"error_count"`
	RetryCount    int      `json:"retry_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates the record for a brand-new thread.
func NewConversationState(threadID string, now time.Time) *ConversationState {
	return &ConversationState{
		ThreadID:  threadID,
		Messages:  []Message{},
		Phase:     PhaseGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendMessage adds a message to the end of the ledger.
func (s *ConversationState) AppendMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
	if msg.Timestamp.After(s.UpdatedAt) {
		s.UpdatedAt = msg.Timestamp
	}
}

// LastMessages returns a copy of the most recent n messages in ledger order.
// A non-positive n returns every message.
func (s *ConversationState) LastMessages(n int) []Message {
	start := 0
	if n > 0 && n < len(s.Messages) {
		start = len(s.Messages) - n
	}
	out := make([]Message, len(s.Messages)-start)
	copy(out, s.Messages[start:])
	return out
}

// MessagesByRole returns the messages authored by role in ledger order.
func (s *ConversationState) MessagesByRole(role Role) []Message {
	var out []Message
	for _, m := range s.Messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// LastMessage returns the most recent message authored by role.
func (s *ConversationState) LastMessage(role Role) (Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == role {
			return s.Messages[i], true
		}
	}
	return Message{}, false
}

// HasAssistantTurn returns true if the assistant has replied at least once.
func (s *ConversationState) HasAssistantTurn() bool {
	_, ok := s.LastMessage(RoleAssistant)
	return ok
}

// TrackTopic records entity as the most recent topic.
// An entity already tracked moves to the most recent position.
func (s *ConversationState) TrackTopic(entity string) {
	if entity == "" {
		return
	}
	kept := s.TopicEntities[:0:0]
	for _, t := range s.TopicEntities {
		if t != entity {
			kept = append(kept, t)
		}
	}
	kept = append(kept, entity)
	if len(kept) > MaxTopicEntities {
		kept = kept[len(kept)-MaxTopicEntities:]
	}
	s.TopicEntities = kept
}

// LatestTopic returns the most recently tracked topic entity.
func (s *ConversationState) LatestTopic() string {
	if len(s.TopicEntities) == 0 {
		return ""
	}
	return s.TopicEntities[len(s.TopicEntities)-1]
}

// SetEvidence replaces search results and their context chunks together.
func (s *ConversationState) SetEvidence(results []SearchResult) {
	s.SearchResults = make([]SearchResult, len(results))
	s.ContextChunks = make([]string, len(results))
	for i, r := range results {
		s.SearchResults[i] = r
		s.ContextChunks[i] = r.Content
	}
}

// ClearEvidence resets per-turn retrieval fields.
func (s *ConversationState) ClearEvidence() {
	s.SearchResults = nil
	s.ContextChunks = nil
	s.Aggregation = nil
	s.LastStrategy = ""
	s.RequiresClarification = false
}

// RecordError flags the state and keeps the most recent error messages.
func (s *ConversationState) RecordError(msg string) {
	s.HasErrors = true
	s.ErrorCount++
	s.ErrorMessages = append(s.ErrorMessages, msg)
	if len(s.ErrorMessages) > MaxErrorMessages {
		s.ErrorMessages = s.ErrorMessages[len(s.ErrorMessages)-MaxErrorMessages:]
	}
}

// TrimHistory drops the oldest messages until at most maxMessages remain and
// their combined content is at most maxChars runes. The most recent
// MinRecentMessages and the initial greeting are always retained, so the caps
// may be exceeded when only protected messages are left. A non-positive cap
// disables that bound. Returns the number of messages dropped.
func (s *ConversationState) TrimHistory(maxMessages, maxChars int) int {
	pinned := s.initialGreetingIndex()
	total := 0
	for _, m := range s.Messages {
		total += utf8.RuneCountInString(m.Content)
	}

	over := func(n, chars int) bool {
		return (maxMessages > 0 && n > maxMessages) || (maxChars > 0 && chars > maxChars)
	}

	kept := make([]Message, 0, len(s.Messages))
	remaining := len(s.Messages)
	dropped := 0
	for i, m := range s.Messages {
		protected := i == pinned || i >= len(s.Messages)-MinRecentMessages
		if !protected && over(remaining, total) {
			remaining--
			total -= utf8.RuneCountInString(m.Content)
			dropped++
			continue
		}
		kept = append(kept, m)
	}
	s.Messages = kept
	return dropped
}

// initialGreetingIndex returns the ledger index of the assistant's reply to an
// opening greeting, or -1.
func (s *ConversationState) initialGreetingIndex() int {
	for i := 0; i < len(s.Messages) && i < 2; i++ {
		m := s.Messages[i]
		if m.Role == RoleAssistant && m.Metadata != nil && m.Metadata.Intent == IntentGreeting {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the state.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		// Every field is JSON-safe apart from arbitrary metadata values.
		cp := *s
		cp.Messages = append([]Message(nil), s.Messages...)
		return &cp
	}
	var out ConversationState
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *s
		return &cp
	}
	return &out
}

// TurnResult is returned to callers after one orchestrated turn.
type TurnResult struct {
	ThreadID    string   `json:"thread_id"`
	Response    string   `json:"response"`
	Sources     []string `json:"sources,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	TurnCount   int      `json:"turn_count"`
	Phase       Phase    `json:"phase"`
	Intent      Intent   `json:"intent"`
	Confidence  float64  `json:"confidence"`
	HasErrors   bool     `json:"has_errors"`
}
