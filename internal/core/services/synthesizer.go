package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/logger"
	"github.com/custodia-labs/sercha-chat/internal/metrics"
)

// Fixed replies.
const (
	GreetingMessage = "Hello! I can answer questions from the knowledge base. What would you like to know?"

	HelpMessage = "Ask me a question in plain language, for example \"What types of access points " +
		"are in Building A?\" or \"How many incidents are critical?\". Follow up with " +
		"\"tell me more\" to dig deeper, and say \"bye\" when you are done."

	GoodbyeMessage = "Goodbye! Come back any time you have more questions."

	NoInformationMessage = "No information found for your question in the knowledge base. " +
		"Try rephrasing or asking about a different topic."

	ClarifyMessage = "I'm not sure what you are looking for. Could you add a name or a keyword " +
		"I can search for?"

	FailureMessage = "I'm sorry, something went wrong while processing your request. Please try again."
)

// Confidence levels reported with each reply. They are informational only.
const (
	ConfidenceCanned      = 1.0
	ConfidenceAggregation = 0.95
	ConfidenceEvidence    = 0.8
	ConfidenceNoEvidence  = 0.6
	ConfidenceFailure     = 0.0
)

// Synthesis defaults.
const (
	DefaultMaxTokens          = 512
	DefaultTemperature        = 0.2
	DefaultSuggestionInterval = 3
	DefaultExtractiveRunes    = 500
	synthesisHistoryWindow    = 4
)

const fallbackAnswerPrompt = `Answer the question using only the context below. If the context does not
contain the answer, say so. Cite sources by their bracketed number.

Context:
%s

Conversation so far:
%s

Question: %s
Answer:`

const fallbackSuggestionsPrompt = `Suggest three short follow-up questions a user might ask next about %s.
The previous answer was:
%s

Return one question per line with no numbering.`

// SynthesisOptions tunes the response synthesizer.
type SynthesisOptions struct {
	MaxTokens          int
	Temperature        float64
	SuggestionInterval int
	ExtractiveRunes    int

	// Timeout bounds each generator call. Zero leaves it to the generator.
	Timeout time.Duration
}

// Reply is the assistant output of one turn.
type Reply struct {
	Content    string
	Sources    []string
	Confidence float64
}

// ResponseSynthesizer builds the assistant message from the evidence on the state.
type ResponseSynthesizer struct {
	generator   driven.Generator
	promptStore driven.PromptStore
	opts        SynthesisOptions
	now         func() time.Time
}

// Ensure ResponseSynthesizer accepts custom prompts.
var _ driven.PromptStoreAware = (*ResponseSynthesizer)(nil)

// NewResponseSynthesizer creates a synthesizer. generator is optional (can be nil).
func NewResponseSynthesizer(generator driven.Generator, opts SynthesisOptions) *ResponseSynthesizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature < 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.SuggestionInterval <= 0 {
		opts.SuggestionInterval = DefaultSuggestionInterval
	}
	if opts.ExtractiveRunes <= 0 {
		opts.ExtractiveRunes = DefaultExtractiveRunes
	}
	return &ResponseSynthesizer{
		generator: generator,
		opts:      opts,
		now:       time.Now,
	}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (s *ResponseSynthesizer) SetPromptStore(store driven.PromptStore) {
	s.promptStore = store
}

// Respond renders the reply for the current turn and appends it to the ledger.
func (s *ResponseSynthesizer) Respond(ctx context.Context, state *domain.ConversationState) Reply {
	logger.Section("Synthesis")
	reply := s.compose(ctx, state)

	if state.UserIntent != domain.IntentGoodbye {
		s.refreshSuggestions(ctx, state, reply.Content)
	}
	s.appendReply(state, reply)
	return reply
}

// Clarify asks the user for more detail and appends the question to the ledger.
func (s *ResponseSynthesizer) Clarify(state *domain.ConversationState) Reply {
	reply := Reply{Content: ClarifyMessage, Confidence: ConfidenceNoEvidence}
	s.appendReply(state, reply)
	return reply
}

// Failure appends the generic error reply.
func (s *ResponseSynthesizer) Failure(state *domain.ConversationState) Reply {
	reply := Reply{Content: FailureMessage, Confidence: ConfidenceFailure}
	s.appendReply(state, reply)
	return reply
}

func (s *ResponseSynthesizer) compose(ctx context.Context, state *domain.ConversationState) Reply {
	if state.Aggregation != nil {
		return Reply{Content: aggregationSentence(state.Aggregation), Confidence: ConfidenceAggregation}
	}

	switch state.UserIntent {
	case domain.IntentGreeting:
		return Reply{Content: GreetingMessage, Confidence: ConfidenceCanned}
	case domain.IntentHelp:
		return Reply{Content: HelpMessage, Confidence: ConfidenceCanned}
	case domain.IntentGoodbye:
		return Reply{Content: GoodbyeMessage, Confidence: ConfidenceCanned}
	}

	if len(state.SearchResults) == 0 {
		return Reply{Content: NoInformationMessage, Confidence: ConfidenceNoEvidence}
	}

	sources := uniqueSources(state.SearchResults)
	if s.generator == nil {
		metrics.FallbacksTotal.WithLabelValues("no_generator").Inc()
		return Reply{Content: s.extractive(state), Sources: sources, Confidence: ConfidenceEvidence}
	}

	answer, err := s.generate(ctx, state)
	if err != nil {
		metrics.FallbacksTotal.WithLabelValues("generator_error").Inc()
		metrics.CollaboratorErrorsTotal.WithLabelValues("generator", "complete").Inc()
		logger.Warn("Generator failed, using extractive answer: %v", err)
		return Reply{Content: s.extractive(state), Sources: sources, Confidence: ConfidenceEvidence}
	}
	return Reply{Content: answer, Sources: sources, Confidence: ConfidenceEvidence}
}

// extractive returns the top result with its source.
func (s *ResponseSynthesizer) extractive(state *domain.ConversationState) string {
	top := state.SearchResults[0]
	content := truncate(strings.TrimSpace(top.Content), s.opts.ExtractiveRunes)
	if top.Source == "" {
		return content
	}
	return fmt.Sprintf("%s\n\nSource: %s", content, top.Source)
}

// generate asks the generator for an answer grounded in the context chunks.
func (s *ResponseSynthesizer) generate(ctx context.Context, state *domain.ConversationState) (string, error) {
	var contextBuf strings.Builder
	for i, chunk := range state.ContextChunks {
		source := state.SearchResults[i].Source
		fmt.Fprintf(&contextBuf, "[%d] (%s) %s\n", i+1, source, strings.TrimSpace(chunk))
	}

	question := state.ProcessedQuery
	if question == "" {
		question = state.OriginalQuery
	}
	prompt := fmt.Sprintf(s.loadPrompt(driven.PromptAnswer, fallbackAnswerPrompt),
		contextBuf.String(), formatHistory(state.LastMessages(synthesisHistoryWindow)), question)

	answer, err := s.complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("empty completion: %w", domain.ErrGeneratorUnavailable)
	}
	return answer, nil
}

// isRefreshTurn reports whether the turn being answered is a multiple of
// interval. completed counts the turns finished before this one.
func isRefreshTurn(completed, interval int) bool {
	return (completed+1)%interval == 0
}

func (s *ResponseSynthesizer) complete(ctx context.Context, prompt string) (string, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	return s.generator.Complete(ctx, prompt, s.opts.MaxTokens, s.opts.Temperature)
}

// refreshSuggestions recomputes follow-ups every SuggestionInterval turns and
// otherwise leaves the previous ones in place.
func (s *ResponseSynthesizer) refreshSuggestions(ctx context.Context, state *domain.ConversationState, answer string) {
	if !isRefreshTurn(state.TurnCount, s.opts.SuggestionInterval) {
		return
	}

	topic := state.LatestTopic()
	if topic == "" && len(state.QueryKeywords) > 0 {
		topic = state.QueryKeywords[0]
	}

	var suggestions []string
	if s.generator != nil && topic != "" {
		prompt := fmt.Sprintf(s.loadPrompt(driven.PromptSuggestions, fallbackSuggestionsPrompt), topic, answer)
		out, err := s.complete(ctx, prompt)
		if err != nil {
			metrics.CollaboratorErrorsTotal.WithLabelValues("generator", "suggestions").Inc()
			logger.Debug("Suggestion generation failed: %v", err)
		} else {
			suggestions = parseSuggestions(out)
		}
	}
	if len(suggestions) == 0 {
		suggestions = ruleSuggestions(topic)
	}
	if len(suggestions) > domain.MaxSuggestedQuestions {
		suggestions = suggestions[:domain.MaxSuggestedQuestions]
	}

	state.SuggestedQuestions = suggestions
	state.RelatedTopics = relatedTopics(state)
}

func (s *ResponseSynthesizer) appendReply(state *domain.ConversationState, reply Reply) {
	state.AppendMessage(domain.Message{
		ID:        uuid.NewString(),
		Role:      domain.RoleAssistant,
		Content:   reply.Content,
		Timestamp: s.now(),
		Metadata: &domain.MessageMetadata{
			Sources:     reply.Sources,
			Suggestions: append([]string(nil), state.SuggestedQuestions...),
			Intent:      state.UserIntent,
			Confidence:  reply.Confidence,
			Strategy:    state.LastStrategy,
		},
	})
}

// loadPrompt loads a prompt from the store, falling back to the default.
func (s *ResponseSynthesizer) loadPrompt(name, fallback string) string {
	if s.promptStore == nil {
		return fallback
	}
	prompt, err := s.promptStore.Load(name)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		logger.Debug("No %s prompt template, using default", name)
		return fallback
	case err != nil:
		logger.Warn("Loading %s prompt failed: %v (using default)", name, err)
		return fallback
	case prompt == "":
		return fallback
	}
	return prompt
}

// aggregationSentence renders a count as a sentence.
func aggregationSentence(agg *domain.AggregationResult) string {
	noun := agg.Subject
	if noun == "" {
		noun = "matching documents"
	} else if agg.Count == 1 {
		noun = singular(noun)
	}

	verb := "are"
	if agg.Count == 1 {
		verb = "is"
	}

	criteria := agg.Filters.Clone()
	delete(criteria, "type")
	if len(criteria) == 0 {
		return fmt.Sprintf("There %s %d %s.", verb, agg.Count, noun)
	}
	return fmt.Sprintf("There %s %d %s matching %s.", verb, agg.Count, noun, criteria.String())
}

func uniqueSources(results []domain.SearchResult) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range results {
		if r.Source == "" {
			continue
		}
		if _, dup := seen[r.Source]; dup {
			continue
		}
		seen[r.Source] = struct{}{}
		out = append(out, r.Source)
	}
	return out
}

func formatHistory(messages []domain.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, strings.TrimSpace(m.Content))
	}
	return b.String()
}

// parseSuggestions splits generator output into questions, dropping list markers.
func parseSuggestions(out string) []string {
	var suggestions []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		if line == "" {
			continue
		}
		suggestions = append(suggestions, line)
	}
	return suggestions
}

func ruleSuggestions(topic string) []string {
	if topic == "" {
		return []string{
			"What topics does the knowledge base cover?",
			"How many incidents are open?",
		}
	}
	return []string{
		fmt.Sprintf("What else do you know about %s?", topic),
		fmt.Sprintf("Are there any recent changes to %s?", topic),
		fmt.Sprintf("How does %s compare to similar items?", topic),
	}
}

// relatedTopics lists recent topics first, then query keywords.
func relatedTopics(state *domain.ConversationState) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(t string) {
		key := strings.ToLower(t)
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	for i := len(state.TopicEntities) - 1; i >= 0; i-- {
		add(state.TopicEntities[i])
	}
	for _, k := range state.QueryKeywords {
		add(k)
	}
	if len(out) > domain.MaxRelatedTopics {
		out = out[:domain.MaxRelatedTopics]
	}
	return out
}
