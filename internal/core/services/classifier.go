package services

import (
	"context"
	"strings"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/logger"
	"github.com/custodia-labs/sercha-chat/internal/metrics"
)

// Classifier tuning.
const (
	// ClassifierHistoryWindow is the number of trailing messages considered.
	ClassifierHistoryWindow = 4

	// DefaultKeywordCount is the number of keywords extracted per query.
	DefaultKeywordCount = 5

	// shortMessageTokens bounds greeting and help detection.
	shortMessageTokens = 5

	// goodbyeMaxTokens bounds goodbye detection.
	goodbyeMaxTokens = 6

	// continuationMaxTokens bounds "short continuation" detection.
	continuationMaxTokens = 4
)

// intentSignature is one row of the ordered trigger table.
type intentSignature struct {
	intent  domain.Intent
	phrases []string
	leading []string
	matchFn func(tokens []string) bool
	guardFn func(tokens []string, interrogative bool) bool
}

// matches reports whether tokens trigger the signature, ignoring its guard.
func (s intentSignature) matches(tokens []string) bool {
	if s.matchFn != nil && s.matchFn(tokens) {
		return true
	}
	if startsWithAny(tokens, s.leading) {
		return true
	}
	return containsAny(normalise(tokens), s.phrases)
}

// shortNonInterrogative guards the conversational intents.
func shortNonInterrogative(limit int) func([]string, bool) bool {
	return func(tokens []string, interrogative bool) bool {
		return len(tokens) < limit && !interrogative
	}
}

// signatures is evaluated in order; the first match whose guard passes wins.
var signatures = []intentSignature{
	{
		intent:  domain.IntentGoodbye,
		matchFn: isFarewell,
		guardFn: shortNonInterrogative(goodbyeMaxTokens + 1),
	},
	{
		intent: domain.IntentGreeting,
		phrases: []string{
			"hello", "hi", "hey", "hiya", "howdy", "greetings",
			"good morning", "good afternoon", "good evening",
		},
		guardFn: shortNonInterrogative(shortMessageTokens),
	},
	{
		intent:  domain.IntentHelp,
		phrases: []string{"help", "help me", "commands", "usage", "assist me"},
		guardFn: shortNonInterrogative(shortMessageTokens),
	},
	{
		intent: domain.IntentClarification,
		phrases: []string{
			"what do you mean", "clarify", "i don't understand", "i dont understand",
			"not clear", "rephrase that", "what does that mean",
		},
	},
	{
		intent: domain.IntentComparison,
		phrases: []string{
			"compare", "comparison", "versus", "vs", "difference between",
			"differences between", "better than", "compared to",
		},
	},
	{
		intent:  domain.IntentListing,
		leading: []string{"list", "enumerate"},
		phrases: []string{
			"show all", "show me all", "what are all", "give me all", "list all",
		},
	},
	{
		intent: domain.IntentExplanation,
		phrases: []string{
			"explain", "why", "how does", "how do", "how is", "describe",
			"what causes", "reason for",
		},
	},
	{
		intent: domain.IntentFollowUp,
		phrases: []string{
			"tell me more", "more about", "what else", "elaborate", "go on",
			"more details", "what about", "how about", "and also",
		},
	},
	{
		intent: domain.IntentSearch,
		phrases: []string{
			"search", "find", "look up", "lookup", "look for", "locate", "retrieve",
			"where can i find",
		},
	},
	{
		intent:  domain.IntentQuestion,
		matchFn: startsWithAuxiliary,
	},
}

var farewellPhrases = []string{
	"bye", "goodbye", "good bye", "bye bye", "see you", "see ya", "farewell",
	"that's all", "thats all", "good night", "talk later",
}

// farewellCommands only count as a goodbye when they are the whole message.
var farewellCommands = toSet("exit", "quit")

// isFarewell matches a farewell phrase that opens or closes the message.
func isFarewell(tokens []string) bool {
	if len(tokens) == 1 && inSet(farewellCommands, tokens[0]) {
		return true
	}
	joined := strings.Join(tokens, " ")
	for _, p := range farewellPhrases {
		if joined == p || strings.HasPrefix(joined, p+" ") || strings.HasSuffix(joined, " "+p) {
			return true
		}
	}
	return false
}

// startsWithAny reports whether the message opens with one of phrases,
// skipping a leading "please".
func startsWithAny(tokens []string, phrases []string) bool {
	if len(tokens) > 0 && tokens[0] == "please" {
		tokens = tokens[1:]
	}
	joined := strings.Join(tokens, " ")
	for _, p := range phrases {
		if joined == p || strings.HasPrefix(joined, p+" ") {
			return true
		}
	}
	return false
}

var anaphora = toSet(
	"it", "its", "these", "those", "them", "they", "their", "he", "she", "him",
	"her", "ones",
)

// demonstratives refer back only when used as pronouns ("what about that?"),
// not as determiners or relatives ("that protocol", "printers that support").
var demonstratives = toSet("this", "that")

var continuationPhrases = []string{
	"tell me more", "more about", "what about", "how about", "what else",
	"and also", "go on", "elaborate", "more details",
}

// IntentClassifier derives intent, contextuality, the processed query,
// keywords and topic entities from the latest user message.
type IntentClassifier struct {
	generator   driven.Generator
	keywordTopK int
}

// NewIntentClassifier creates a classifier. generator is optional (can be nil);
// without it contextual queries are rewritten by concatenation.
func NewIntentClassifier(generator driven.Generator) *IntentClassifier {
	return &IntentClassifier{
		generator:   generator,
		keywordTopK: DefaultKeywordCount,
	}
}

// Classify analyses text given the trailing history and previously tracked topics.
// Returns ok=false for empty input, which callers must treat as a no-op.
func (c *IntentClassifier) Classify(
	ctx context.Context, text string, history []domain.Message, priorTopics []string,
) (domain.Classification, bool) {
	text = strings.TrimSpace(text)
	tokens := tokenize(text)
	if text == "" || len(tokens) == 0 {
		return domain.Classification{}, false
	}

	if len(history) > ClassifierHistoryWindow {
		history = history[len(history)-ClassifierHistoryWindow:]
	}

	interrogative := isInterrogative(text, tokens)
	entities := extractEntities(text)
	rawKeywords := extractKeywords(text, c.keywordTopK)

	intent := c.detectIntent(tokens, interrogative, rawKeywords)
	contextual := !intent.IsConversational() &&
		hasAssistantMessage(history) &&
		isContextual(tokens, entities, rawKeywords)

	processed := text
	if contextual {
		processed = c.rewrite(ctx, text, history, priorTopics)
	}

	result := domain.Classification{
		Intent:         intent,
		Complexity:     estimateComplexity(tokens, text),
		IsContextual:   contextual,
		ProcessedQuery: processed,
		Keywords:       extractKeywords(processed, c.keywordTopK),
		TopicEntities:  entities,
		Interrogative:  interrogative,
	}

	logger.Debug("Classified %q: intent=%s contextual=%t complexity=%s keywords=%v entities=%v",
		text, result.Intent, result.IsContextual, result.Complexity, result.Keywords, result.TopicEntities)

	return result, true
}

// detectIntent walks the ordered signature table.
func (c *IntentClassifier) detectIntent(tokens []string, interrogative bool, keywords []string) domain.Intent {
	for _, sig := range signatures {
		if !sig.matches(tokens) {
			continue
		}
		if sig.guardFn != nil && !sig.guardFn(tokens, interrogative) {
			continue
		}
		return sig.intent
	}

	if interrogative || len(keywords) > 0 {
		return domain.IntentInformationSeeking
	}
	return domain.IntentUnknown
}

// rewrite produces a standalone query for a contextual message.
func (c *IntentClassifier) rewrite(
	ctx context.Context, text string, history []domain.Message, priorTopics []string,
) string {
	if c.generator != nil {
		rewritten, err := c.generator.Rewrite(ctx, text, history)
		if err == nil && strings.TrimSpace(rewritten) != "" {
			logger.Info("Contextual rewrite: %q -> %q", text, rewritten)
			return strings.TrimSpace(rewritten)
		}
		if err != nil {
			metrics.CollaboratorErrorsTotal.WithLabelValues("generator", "rewrite").Inc()
			logger.Warn("Generator rewrite failed: %v (using concatenation)", err)
		}
	}

	topic := ""
	if len(priorTopics) > 0 {
		topic = priorTopics[len(priorTopics)-1]
	} else {
		topic = previousUserTopic(history)
	}
	if topic == "" {
		return text
	}
	return topic + " " + text
}

// previousUserTopic falls back to the keywords of the last user message.
func previousUserTopic(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return strings.Join(extractKeywords(history[i].Content, 3), " ")
		}
	}
	return ""
}

func hasAssistantMessage(history []domain.Message) bool {
	for _, m := range history {
		if m.Role == domain.RoleAssistant {
			return true
		}
	}
	return false
}

// isContextual detects anaphora, a pronoun demonstrative, follow-up phrasing,
// or a short continuation that introduces no new nouns.
func isContextual(tokens []string, entities, keywords []string) bool {
	for i, t := range tokens {
		if inSet(anaphora, t) {
			return true
		}
		if inSet(demonstratives, t) && (i == len(tokens)-1 || inSet(stopwords, tokens[i+1])) {
			return true
		}
	}
	if containsAny(normalise(tokens), continuationPhrases) {
		return true
	}
	return len(tokens) <= continuationMaxTokens && len(entities) == 0 && len(keywords) <= 1
}

// estimateComplexity buckets a query by length and clause structure.
func estimateComplexity(tokens []string, raw string) domain.Complexity {
	clauses := 1 + strings.Count(raw, ",") + strings.Count(raw, ";") +
		strings.Count(normalise(tokens), " and ")
	switch {
	case len(tokens) <= 6:
		return domain.ComplexitySimple
	case len(tokens) > 15 || (clauses > 2 && len(tokens) > 10):
		return domain.ComplexityComplex
	default:
		return domain.ComplexityModerate
	}
}
