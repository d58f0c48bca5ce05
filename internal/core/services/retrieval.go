package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-chat/internal/logger"
	"github.com/custodia-labs/sercha-chat/internal/metrics"
)

// Retrieval strategy names, in the order they are attempted.
const (
	StrategyEnhanced = "enhanced"
	StrategyOriginal = "original"
	StrategyKeywords = "keywords"
	StrategyEntity   = "entity"
	StrategyCount    = "count"
)

// Retrieval defaults.
const (
	// DefaultTopK is the number of results requested per strategy.
	DefaultTopK = 5

	// DefaultMinResults stops the strategy chain early once reached.
	DefaultMinResults = 3

	// strategyKeywordCount is the number of keywords joined by the keyword strategy.
	strategyKeywordCount = 3
)

var aggregationMarkers = []string{"how many", "count", "total", "number of"}

// Filter vocabularies recognised in aggregation queries.
var (
	severityTerms = toSet("critical", "high", "medium", "low", "major", "minor")
	statusTerms   = toSet("open", "closed", "resolved", "pending", "active", "in-progress")
	genericNouns  = toSet("documents", "document", "items", "item", "results", "result",
		"records", "record", "entries", "entry", "things", "times")
)

// RetrievalOptions tunes the strategy engine.
type RetrievalOptions struct {
	TopK       int
	MinResults int

	// Timeout bounds each index call. Zero leaves it to the index.
	Timeout time.Duration
}

// StrategyAttempt records one query formulation tried against the index.
type StrategyAttempt struct {
	Name    string
	Query   string
	Results int
	Err     error
}

// RetrievalOutcome summarises one retrieval pass.
type RetrievalOutcome struct {
	Results     []domain.SearchResult
	Strategy    string
	Attempts    []StrategyAttempt
	Aggregation *domain.AggregationResult

	// Err is ErrRetrievalUnavailable when every attempted call failed.
	Err error
}

// RetrievalEngine tries ordered query formulations against a knowledge index.
type RetrievalEngine struct {
	index driven.KnowledgeIndex
	opts  RetrievalOptions
}

// NewRetrievalEngine creates a retrieval engine. Zero options take defaults.
func NewRetrievalEngine(index driven.KnowledgeIndex, opts RetrievalOptions) *RetrievalEngine {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.MinResults <= 0 {
		opts.MinResults = DefaultMinResults
	}
	return &RetrievalEngine{index: index, opts: opts}
}

// Retrieve runs the retrieval pass for the current turn and records the
// evidence on state.
func (e *RetrievalEngine) Retrieve(ctx context.Context, state *domain.ConversationState) RetrievalOutcome {
	logger.Section("Retrieval")
	state.ClearEvidence()

	var outcome RetrievalOutcome
	if isAggregationQuery(state.OriginalQuery) {
		outcome = e.aggregate(ctx, state)
	} else {
		outcome = e.search(ctx, state)
	}

	state.SetEvidence(outcome.Results)
	state.Aggregation = outcome.Aggregation
	state.LastStrategy = outcome.Strategy

	if outcome.Err != nil {
		state.RecordError(outcome.Err.Error())
		return outcome
	}

	state.RequiresClarification = len(outcome.Results) == 0 &&
		outcome.Aggregation == nil &&
		len(state.QueryKeywords) == 0 &&
		state.LatestTopic() == ""

	logger.Info("Retrieval finished: strategy=%q results=%d attempts=%d",
		outcome.Strategy, len(outcome.Results), len(outcome.Attempts))
	return outcome
}

// search walks the strategy chain, stopping early once enough results are found.
func (e *RetrievalEngine) search(ctx context.Context, state *domain.ConversationState) RetrievalOutcome {
	var outcome RetrievalOutcome
	if e.index == nil {
		logger.Warn("Knowledge index not configured")
		outcome.Err = fmt.Errorf("%w: %v", domain.ErrRetrievalUnavailable, domain.ErrIndexUnavailable)
		return outcome
	}

	found := false
	failures := 0
	for _, f := range formulations(state) {
		results, err := e.searchOnce(ctx, f.query)
		attempt := StrategyAttempt{Name: f.name, Query: f.query, Results: len(results), Err: err}
		outcome.Attempts = append(outcome.Attempts, attempt)

		if err != nil {
			failures++
			metrics.StrategyAttemptsTotal.WithLabelValues(f.name, "error").Inc()
			metrics.CollaboratorErrorsTotal.WithLabelValues("index", "search").Inc()
			logger.Warn("Strategy %s failed: %v", f.name, err)
			continue
		}

		logger.Debug("Strategy %s: query=%q results=%d", f.name, f.query, len(results))
		if len(results) == 0 {
			metrics.StrategyAttemptsTotal.WithLabelValues(f.name, "empty").Inc()
		} else {
			metrics.StrategyAttemptsTotal.WithLabelValues(f.name, "hit").Inc()
		}

		// Strictly greater keeps the earliest strategy on ties.
		if !found || len(results) > len(outcome.Results) {
			found = true
			outcome.Results = results
			outcome.Strategy = f.name
		}
		if len(results) >= e.opts.MinResults {
			break
		}
	}

	if len(outcome.Attempts) > 0 && failures == len(outcome.Attempts) {
		outcome.Results = nil
		outcome.Strategy = ""
		outcome.Err = domain.ErrRetrievalUnavailable
	}
	return outcome
}

func (e *RetrievalEngine) searchOnce(ctx context.Context, query string) ([]domain.SearchResult, error) {
	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	return e.index.Search(callCtx, query, e.opts.TopK, nil)
}

// aggregate answers a count query without similarity search.
func (e *RetrievalEngine) aggregate(ctx context.Context, state *domain.ConversationState) RetrievalOutcome {
	outcome := RetrievalOutcome{Strategy: StrategyCount}
	query := state.ProcessedQuery
	if query == "" {
		query = state.OriginalQuery
	}
	filters, subject := aggregationFilters(query)
	logger.Debug("Aggregation query: filters=%q subject=%q", filters.String(), subject)

	if e.index == nil {
		outcome.Strategy = ""
		outcome.Err = fmt.Errorf("%w: %v", domain.ErrRetrievalUnavailable, domain.ErrIndexUnavailable)
		return outcome
	}

	callCtx, cancel := e.callContext(ctx)
	defer cancel()
	count, err := e.index.Count(callCtx, filters)
	outcome.Attempts = []StrategyAttempt{{Name: StrategyCount, Query: filters.String(), Results: count, Err: err}}
	if err != nil {
		metrics.AggregationsTotal.WithLabelValues("error").Inc()
		metrics.CollaboratorErrorsTotal.WithLabelValues("index", "count").Inc()
		logger.Warn("Count failed: %v", err)
		outcome.Strategy = ""
		outcome.Err = domain.ErrRetrievalUnavailable
		return outcome
	}

	metrics.AggregationsTotal.WithLabelValues("ok").Inc()
	outcome.Aggregation = &domain.AggregationResult{Count: count, Filters: filters, Subject: subject}
	return outcome
}

func (e *RetrievalEngine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.Timeout > 0 {
		return context.WithTimeout(ctx, e.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

type formulation struct {
	name  string
	query string
}

// formulations lists the strategies for the current turn. Non-contextual
// queries search the original text only. Empty and repeated queries are skipped.
func formulations(state *domain.ConversationState) []formulation {
	original := strings.TrimSpace(state.OriginalQuery)
	if !state.IsContextual {
		if original == "" {
			return nil
		}
		return []formulation{{StrategyOriginal, original}}
	}

	keywords := state.QueryKeywords
	if len(keywords) > strategyKeywordCount {
		keywords = keywords[:strategyKeywordCount]
	}
	candidates := []formulation{
		{StrategyEnhanced, strings.TrimSpace(state.ProcessedQuery)},
		{StrategyOriginal, original},
		{StrategyKeywords, strings.Join(keywords, " ")},
		{StrategyEntity, state.LatestTopic()},
	}

	seen := map[string]struct{}{}
	out := make([]formulation, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(c.query)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

// isAggregationQuery reports whether text asks for a count.
func isAggregationQuery(text string) bool {
	return containsAny(normalise(tokenize(text)), aggregationMarkers)
}

// aggregationFilters extracts metadata filters and the counted subject.
func aggregationFilters(text string) (domain.Filters, string) {
	tokens := tokenize(text)
	filters := domain.Filters{}

	severityKey := "severity"
	if containsPhrase(normalise(tokens), "priority") {
		severityKey = "priority"
	}
	for _, t := range tokens {
		switch {
		case inSet(severityTerms, t):
			filters[severityKey] = t
		case inSet(statusTerms, t):
			filters["status"] = t
		}
	}

	subject := countedSubject(tokens)
	if subject != "" {
		filters["type"] = singular(subject)
	}
	return filters, subject
}

// countedSubject finds the noun following a count marker, skipping filter terms.
func countedSubject(tokens []string) string {
	for i := 0; i < len(tokens); i++ {
		start := -1
		switch {
		case tokens[i] == "many" && i > 0 && tokens[i-1] == "how":
			start = i + 1
		case tokens[i] == "of" && i > 0 && (tokens[i-1] == "number" || tokens[i-1] == "count" || tokens[i-1] == "total"):
			start = i + 1
		case tokens[i] == "total" || tokens[i] == "count":
			start = i + 1
		}
		if start < 0 {
			continue
		}
		for j := start; j < len(tokens); j++ {
			t := tokens[j]
			if t == "number" || t == "of" {
				continue
			}
			if inSet(severityTerms, t) || inSet(statusTerms, t) || t == "priority" {
				continue
			}
			if inSet(stopwords, t) || inSet(genericNouns, t) {
				break
			}
			return t
		}
	}
	return ""
}

// singular strips common English plural endings.
func singular(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return strings.TrimSuffix(word, "ies") + "y"
	case strings.HasSuffix(word, "sses"), strings.HasSuffix(word, "ches"), strings.HasSuffix(word, "shes"):
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "ss"):
		return word
	case strings.HasSuffix(word, "s") && len(word) > 3:
		return strings.TrimSuffix(word, "s")
	default:
		return word
	}
}
