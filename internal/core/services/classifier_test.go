package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

func priorExchange() []domain.Message {
	return []domain.Message{
		{Role: domain.RoleUser, Content: "What types of access points are in Building A?"},
		{Role: domain.RoleAssistant, Content: "Building A has indoor and outdoor access points."},
	}
}

func TestIntentClassifier_Intents(t *testing.T) {
	c := NewIntentClassifier(nil)

	tests := []struct {
		text string
		want domain.Intent
	}{
		{"hello", domain.IntentGreeting},
		{"Hi there!", domain.IntentGreeting},
		{"bye", domain.IntentGoodbye},
		{"Goodbye, thanks for the help", domain.IntentGoodbye},
		{"ok bye", domain.IntentGoodbye},
		{"that's all, thanks", domain.IntentGoodbye},
		{"quit", domain.IntentGoodbye},
		{"exit signs in Building A", domain.IntentInformationSeeking},
		{"quit smoking areas near Building B", domain.IntentInformationSeeking},
		{"help", domain.IntentHelp},
		{"what do you mean", domain.IntentClarification},
		{"compare Building A and Building B", domain.IntentComparison},
		{"list all open incidents", domain.IntentListing},
		{"Please list the printers", domain.IntentListing},
		{"Which printers support that protocol list?", domain.IntentInformationSeeking},
		{"explain the escalation policy", domain.IntentExplanation},
		{"find the onboarding guide", domain.IntentSearch},
		{"Is the VPN down?", domain.IntentQuestion},
		{"What types of access points are in Building A?", domain.IntentInformationSeeking},
		{"printer firmware", domain.IntentInformationSeeking},
		{"ok", domain.IntentUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cls, ok := c.Classify(context.Background(), tt.text, nil, nil)
			require.True(t, ok)
			assert.Equal(t, tt.want, cls.Intent)
		})
	}
}

func TestIntentClassifier_ConversationalGuards(t *testing.T) {
	c := NewIntentClassifier(nil)

	t.Run("interrogative greeting falls through", func(t *testing.T) {
		cls, _ := c.Classify(context.Background(), "hello, what is the VPN address?", nil, nil)
		assert.Equal(t, domain.IntentInformationSeeking, cls.Intent)
	})

	t.Run("long help request falls through", func(t *testing.T) {
		cls, _ := c.Classify(context.Background(), "help me with the printer firmware update", nil, nil)
		assert.NotEqual(t, domain.IntentHelp, cls.Intent)
	})

	t.Run("interrogative goodbye falls through", func(t *testing.T) {
		cls, _ := c.Classify(context.Background(), "bye, but what is the status?", nil, nil)
		assert.Equal(t, domain.IntentInformationSeeking, cls.Intent)
	})
}

func TestIntentClassifier_EmptyInput(t *testing.T) {
	c := NewIntentClassifier(nil)

	for _, text := range []string{"", "   ", "?!"} {
		cls, ok := c.Classify(context.Background(), text, priorExchange(), nil)
		assert.False(t, ok)
		assert.Equal(t, domain.Classification{}, cls)
	}
}

func TestIntentClassifier_Entities(t *testing.T) {
	c := NewIntentClassifier(nil)

	cls, ok := c.Classify(context.Background(), "What types of access points are in Building A?", nil, nil)
	require.True(t, ok)
	assert.Equal(t, []string{"Building A"}, cls.TopicEntities)
	assert.False(t, cls.IsContextual)
	assert.Equal(t, "What types of access points are in Building A?", cls.ProcessedQuery)
	assert.Equal(t, []string{"types", "access", "points", "building"}, cls.Keywords)
	assert.True(t, cls.Interrogative)
}

func TestIntentClassifier_Contextual(t *testing.T) {
	t.Run("anaphora with prior assistant turn concatenates topic", func(t *testing.T) {
		c := NewIntentClassifier(nil)

		cls, ok := c.Classify(context.Background(), "tell me more about them", priorExchange(), []string{"Building A"})
		require.True(t, ok)
		assert.Equal(t, domain.IntentFollowUp, cls.Intent)
		assert.True(t, cls.IsContextual)
		assert.Equal(t, "Building A tell me more about them", cls.ProcessedQuery)
		assert.Contains(t, cls.Keywords, "building")
	})

	t.Run("no assistant turn is never contextual", func(t *testing.T) {
		c := NewIntentClassifier(nil)

		cls, _ := c.Classify(context.Background(), "tell me more about them", nil, []string{"Building A"})
		assert.False(t, cls.IsContextual)
		assert.Equal(t, "tell me more about them", cls.ProcessedQuery)
	})

	t.Run("generator rewrite is preferred", func(t *testing.T) {
		gen := &mockGenerator{rewriteOut: "  access points in Building A  "}
		c := NewIntentClassifier(gen)

		cls, _ := c.Classify(context.Background(), "what about them?", priorExchange(), []string{"Building A"})
		assert.True(t, cls.IsContextual)
		assert.Equal(t, "access points in Building A", cls.ProcessedQuery)
		assert.Equal(t, 1, gen.rewrites)
	})

	t.Run("generator failure falls back to concatenation", func(t *testing.T) {
		gen := failingGenerator()
		c := NewIntentClassifier(gen)

		cls, _ := c.Classify(context.Background(), "what about them?", priorExchange(), []string{"Building A"})
		assert.Equal(t, "Building A what about them?", cls.ProcessedQuery)
		assert.Equal(t, 1, gen.rewrites)
	})

	t.Run("empty rewrite falls back to concatenation", func(t *testing.T) {
		gen := &mockGenerator{rewriteOut: "   "}
		c := NewIntentClassifier(gen)

		cls, _ := c.Classify(context.Background(), "what about them?", priorExchange(), []string{"Building A"})
		assert.Equal(t, "Building A what about them?", cls.ProcessedQuery)
	})

	t.Run("without topics uses previous user keywords", func(t *testing.T) {
		c := NewIntentClassifier(nil)

		cls, _ := c.Classify(context.Background(), "what about them?", priorExchange(), nil)
		assert.Equal(t, "types access points what about them?", cls.ProcessedQuery)
	})

	t.Run("pronoun demonstrative is contextual", func(t *testing.T) {
		c := NewIntentClassifier(nil)

		text := "How long has that been a problem for the network team?"
		cls, _ := c.Classify(context.Background(), text, priorExchange(), []string{"Building A"})
		assert.True(t, cls.IsContextual)
		assert.Equal(t, "Building A "+text, cls.ProcessedQuery)
	})

	t.Run("self-contained questions are not contextual", func(t *testing.T) {
		c := NewIntentClassifier(nil)

		for _, text := range []string{
			"Is there a password policy for guest wifi?",
			"Which printers that support duplex are on floor two?",
			"Which printers support that protocol?",
		} {
			cls, ok := c.Classify(context.Background(), text, priorExchange(), []string{"Building A"})
			require.True(t, ok)
			assert.False(t, cls.IsContextual, text)
			assert.Equal(t, text, cls.ProcessedQuery, text)
		}
	})

	t.Run("short continuation without new nouns", func(t *testing.T) {
		c := NewIntentClassifier(nil)

		cls, _ := c.Classify(context.Background(), "and the second one", priorExchange(), []string{"Building A"})
		assert.True(t, cls.IsContextual)
	})

	t.Run("conversational intents are never contextual", func(t *testing.T) {
		c := NewIntentClassifier(&mockGenerator{rewriteOut: "unused"})

		cls, _ := c.Classify(context.Background(), "thanks bye", priorExchange(), []string{"Building A"})
		assert.Equal(t, domain.IntentGoodbye, cls.Intent)
		assert.False(t, cls.IsContextual)
	})
}

func TestIntentClassifier_HistoryWindow(t *testing.T) {
	gen := &mockGenerator{rewriteOut: "rewritten"}
	c := NewIntentClassifier(gen)

	history := []domain.Message{
		{Role: domain.RoleAssistant, Content: "old reply"},
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleUser, Content: "q2"},
		{Role: domain.RoleUser, Content: "q3"},
		{Role: domain.RoleUser, Content: "q4"},
	}

	// The only assistant message lies outside the trailing window.
	cls, _ := c.Classify(context.Background(), "what about them?", history, []string{"Building A"})
	assert.False(t, cls.IsContextual)
	assert.Equal(t, 0, gen.rewrites)
}

func TestEstimateComplexity(t *testing.T) {
	tests := []struct {
		text string
		want domain.Complexity
	}{
		{"hello", domain.ComplexitySimple},
		{"what access points are in Building A", domain.ComplexityModerate},
		{"compare the access points, switches, and routers installed in Building A and Building B",
			domain.ComplexityComplex},
		{"which incidents were opened last week for the VPN gateway in the north data center and who owns them",
			domain.ComplexityComplex},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, estimateComplexity(tokenize(tt.text), tt.text))
		})
	}
}
