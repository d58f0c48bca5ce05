package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
)

func newTestSynthesizer(gen driven.Generator) *ResponseSynthesizer {
	s := NewResponseSynthesizer(gen, SynthesisOptions{})
	s.now = func() time.Time { return fixedNow }
	return s
}

func evidenceState(intent domain.Intent, turn int) *domain.ConversationState {
	state := domain.NewConversationState("t1", fixedNow)
	state.UserIntent = intent
	state.TurnCount = turn
	state.OriginalQuery = "What types of access points are in Building A?"
	state.ProcessedQuery = state.OriginalQuery
	state.QueryKeywords = []string{"types", "access", "points", "building"}
	state.TrackTopic("Building A")
	state.SetEvidence(results(2, "doc"))
	return state
}

func lastAssistant(t *testing.T, state *domain.ConversationState) domain.Message {
	t.Helper()
	msg, ok := state.LastMessage(domain.RoleAssistant)
	require.True(t, ok)
	require.NotNil(t, msg.Metadata)
	return msg
}

func TestAggregationSentence(t *testing.T) {
	tests := []struct {
		name string
		agg  domain.AggregationResult
		want string
	}{
		{
			"plural with criteria",
			domain.AggregationResult{Count: 4, Subject: "incidents",
				Filters: domain.Filters{"severity": "critical", "type": "incident"}},
			"There are 4 incidents matching severity=critical.",
		},
		{
			"singular",
			domain.AggregationResult{Count: 1, Subject: "incidents",
				Filters: domain.Filters{"severity": "critical", "type": "incident"}},
			"There is 1 incident matching severity=critical.",
		},
		{
			"no subject or criteria",
			domain.AggregationResult{Count: 0},
			"There are 0 matching documents.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := tt.agg
			assert.Equal(t, tt.want, aggregationSentence(&agg))
		})
	}
}

func TestResponseSynthesizer_Aggregation(t *testing.T) {
	gen := &mockGenerator{}
	s := newTestSynthesizer(gen)

	state := domain.NewConversationState("t1", fixedNow)
	state.UserIntent = domain.IntentInformationSeeking
	state.TurnCount = 1
	state.Aggregation = &domain.AggregationResult{Count: 2, Subject: "incidents"}

	reply := s.Respond(context.Background(), state)

	assert.Equal(t, "There are 2 incidents.", reply.Content)
	assert.Equal(t, ConfidenceAggregation, reply.Confidence)
	assert.Equal(t, 0, gen.completes)
}

func TestResponseSynthesizer_Canned(t *testing.T) {
	tests := []struct {
		intent domain.Intent
		want   string
	}{
		{domain.IntentGreeting, GreetingMessage},
		{domain.IntentHelp, HelpMessage},
		{domain.IntentGoodbye, GoodbyeMessage},
	}
	for _, tt := range tests {
		t.Run(tt.intent.String(), func(t *testing.T) {
			s := newTestSynthesizer(nil)
			state := domain.NewConversationState("t1", fixedNow)
			state.UserIntent = tt.intent

			reply := s.Respond(context.Background(), state)

			assert.Equal(t, tt.want, reply.Content)
			assert.Equal(t, ConfidenceCanned, reply.Confidence)
			msg := lastAssistant(t, state)
			assert.Equal(t, tt.want, msg.Content)
			assert.Equal(t, tt.intent, msg.Metadata.Intent)
			assert.NotEmpty(t, msg.ID)
			assert.Equal(t, fixedNow, msg.Timestamp)
		})
	}
}

func TestResponseSynthesizer_Extractive(t *testing.T) {
	t.Run("top result with source", func(t *testing.T) {
		s := newTestSynthesizer(nil)
		state := evidenceState(domain.IntentInformationSeeking, 1)

		reply := s.Respond(context.Background(), state)

		assert.Equal(t, "doc content a\n\nSource: doc-a", reply.Content)
		assert.Equal(t, []string{"doc-a", "doc-b"}, reply.Sources)
		assert.Equal(t, ConfidenceEvidence, reply.Confidence)
		assert.Equal(t, []string{"doc-a", "doc-b"}, lastAssistant(t, state).Metadata.Sources)
	})

	t.Run("long content is truncated", func(t *testing.T) {
		s := newTestSynthesizer(nil)
		state := evidenceState(domain.IntentInformationSeeking, 1)
		state.SetEvidence([]domain.SearchResult{{Content: strings.Repeat("x", 600)}})

		reply := s.Respond(context.Background(), state)

		assert.Equal(t, strings.Repeat("x", DefaultExtractiveRunes)+"...", reply.Content)
	})

	t.Run("empty evidence", func(t *testing.T) {
		s := newTestSynthesizer(&mockGenerator{})
		state := evidenceState(domain.IntentInformationSeeking, 1)
		state.SetEvidence(nil)

		reply := s.Respond(context.Background(), state)

		assert.Equal(t, NoInformationMessage, reply.Content)
		assert.Equal(t, ConfidenceNoEvidence, reply.Confidence)
		assert.Empty(t, reply.Sources)
	})
}

func TestResponseSynthesizer_Generator(t *testing.T) {
	t.Run("answer grounded in context", func(t *testing.T) {
		gen := &mockGenerator{}
		s := newTestSynthesizer(gen)
		s.SetPromptStore(&mockPromptStore{prompts: map[string]string{
			driven.PromptAnswer: "CTX=%s|HIST=%s|Q=%s",
		}})
		state := evidenceState(domain.IntentInformationSeeking, 1)
		state.AppendMessage(domain.Message{Role: domain.RoleUser, Content: state.OriginalQuery})

		reply := s.Respond(context.Background(), state)

		assert.Equal(t, "generated answer", reply.Content)
		assert.Equal(t, ConfidenceEvidence, reply.Confidence)
		require.Equal(t, 1, gen.completes)
		prompt := gen.prompts[0]
		assert.True(t, strings.HasPrefix(prompt, "CTX=[1] (doc-a) doc content a"))
		assert.Contains(t, prompt, "user: What types of access points are in Building A?")
		assert.True(t, strings.HasSuffix(prompt, "|Q=What types of access points are in Building A?"))
	})

	t.Run("missing or broken prompt store uses the default template", func(t *testing.T) {
		for _, store := range []*mockPromptStore{{}, {err: errBoom}} {
			gen := &mockGenerator{}
			s := newTestSynthesizer(gen)
			s.SetPromptStore(store)
			state := evidenceState(domain.IntentInformationSeeking, 1)

			reply := s.Respond(context.Background(), state)

			assert.Equal(t, "generated answer", reply.Content)
			require.Equal(t, 1, gen.completes)
			assert.Contains(t, gen.prompts[0], "doc content a")
		}
	})

	t.Run("failure falls back to extractive", func(t *testing.T) {
		gen := failingGenerator()
		s := newTestSynthesizer(gen)
		state := evidenceState(domain.IntentInformationSeeking, 1)

		reply := s.Respond(context.Background(), state)

		assert.Equal(t, "doc content a\n\nSource: doc-a", reply.Content)
		assert.Equal(t, 1, gen.completes)
	})

	t.Run("empty completion falls back to extractive", func(t *testing.T) {
		gen := &mockGenerator{completeFn: func(string) (string, error) { return "  ", nil }}
		s := newTestSynthesizer(gen)
		state := evidenceState(domain.IntentInformationSeeking, 1)

		reply := s.Respond(context.Background(), state)

		assert.Equal(t, "doc content a\n\nSource: doc-a", reply.Content)
	})
}

func TestResponseSynthesizer_Suggestions(t *testing.T) {
	t.Run("carried forward between refreshes", func(t *testing.T) {
		gen := &mockGenerator{}
		s := newTestSynthesizer(gen)
		state := evidenceState(domain.IntentInformationSeeking, 1)
		state.SuggestedQuestions = []string{"keep me"}

		s.Respond(context.Background(), state)

		assert.Equal(t, []string{"keep me"}, state.SuggestedQuestions)
		assert.Equal(t, 1, gen.completes)
	})

	t.Run("generator suggestions on refresh turns", func(t *testing.T) {
		gen := &mockGenerator{completeFn: func(prompt string) (string, error) {
			if strings.Contains(prompt, "follow-up questions") {
				return "1. What about outdoor units?\n- Who maintains them?\n\nWhere are they mounted?\nOne more?", nil
			}
			return "answer", nil
		}}
		s := newTestSynthesizer(gen)
		state := evidenceState(domain.IntentInformationSeeking, 2)

		s.Respond(context.Background(), state)

		assert.Equal(t, []string{
			"What about outdoor units?",
			"Who maintains them?",
			"Where are they mounted?",
		}, state.SuggestedQuestions)
		assert.Equal(t, state.SuggestedQuestions, lastAssistant(t, state).Metadata.Suggestions)
		assert.Equal(t, 2, gen.completes)
	})

	t.Run("rule based without generator", func(t *testing.T) {
		s := newTestSynthesizer(nil)
		state := evidenceState(domain.IntentInformationSeeking, 2)

		s.Respond(context.Background(), state)

		require.Len(t, state.SuggestedQuestions, 3)
		assert.Equal(t, "What else do you know about Building A?", state.SuggestedQuestions[0])
		assert.Equal(t, []string{"Building A", "types", "access", "points", "building"}, state.RelatedTopics)
	})

	t.Run("generator failure uses rules", func(t *testing.T) {
		s := newTestSynthesizer(failingGenerator())
		state := evidenceState(domain.IntentInformationSeeking, 2)

		s.Respond(context.Background(), state)

		assert.Equal(t, ruleSuggestions("Building A"), state.SuggestedQuestions)
	})

	t.Run("goodbye keeps previous suggestions", func(t *testing.T) {
		s := newTestSynthesizer(nil)
		state := domain.NewConversationState("t1", fixedNow)
		state.UserIntent = domain.IntentGoodbye
		state.SuggestedQuestions = []string{"keep me"}

		s.Respond(context.Background(), state)

		assert.Equal(t, []string{"keep me"}, state.SuggestedQuestions)
	})
}

func TestIsRefreshTurn(t *testing.T) {
	var refreshed []int
	for turn := 1; turn <= 9; turn++ {
		if isRefreshTurn(turn-1, 3) {
			refreshed = append(refreshed, turn)
		}
	}
	assert.Equal(t, []int{3, 6, 9}, refreshed)
}

func TestResponseSynthesizer_ClarifyAndFailure(t *testing.T) {
	s := newTestSynthesizer(nil)
	state := domain.NewConversationState("t1", fixedNow)

	clarify := s.Clarify(state)
	failure := s.Failure(state)

	assert.Equal(t, ClarifyMessage, clarify.Content)
	assert.Equal(t, FailureMessage, failure.Content)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, domain.RoleAssistant, state.Messages[1].Role)
	assert.Equal(t, FailureMessage, state.Messages[1].Content)
}

func TestParseSuggestions(t *testing.T) {
	got := parseSuggestions("1) First?\n* Second?\n\n   \n• Third?")
	assert.Equal(t, []string{"First?", "Second?", "Third?"}, got)
}
