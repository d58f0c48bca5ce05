package services

import (
	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

// Node is a step of the turn graph selected by the router.
type Node string

// Turn graph nodes.
const (
	NodeSearch  Node = "search"
	NodeRespond Node = "respond"
	NodeClarify Node = "clarify"
	NodeEnd     Node = "end"
)

// Limits bound a conversation so pathological loops always terminate.
type Limits struct {
	TurnLimit  int
	RetryLimit int
	ErrorLimit int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		TurnLimit:  100,
		RetryLimit: 3,
		ErrorLimit: 5,
	}
}

// Router holds the pure routing decisions of the turn graph.
type Router struct {
	limits Limits
}

// NewRouter creates a router. Non-positive limits are replaced by defaults.
func NewRouter(limits Limits) *Router {
	def := DefaultLimits()
	if limits.TurnLimit <= 0 {
		limits.TurnLimit = def.TurnLimit
	}
	if limits.RetryLimit <= 0 {
		limits.RetryLimit = def.RetryLimit
	}
	if limits.ErrorLimit <= 0 {
		limits.ErrorLimit = def.ErrorLimit
	}
	return &Router{limits: limits}
}

// Limits returns the effective limits.
func (r *Router) Limits() Limits {
	return r.limits
}

// AfterClassify selects the node following classification.
func (r *Router) AfterClassify(state *domain.ConversationState) Node {
	switch state.UserIntent {
	case domain.IntentGoodbye:
		return NodeEnd
	case domain.IntentGreeting, domain.IntentHelp:
		if !state.IsInterrogative {
			return NodeRespond
		}
		return NodeSearch
	case domain.IntentInformationSeeking, domain.IntentQuestion, domain.IntentSearch,
		domain.IntentExplanation, domain.IntentFollowUp, domain.IntentListing:
		return NodeSearch
	case domain.IntentComparison, domain.IntentClarification, domain.IntentUnknown:
		// Unmatched intents still search rather than answer with nothing.
		return NodeSearch
	default:
		return NodeSearch
	}
}

// AfterSearch selects the node following retrieval. Empty evidence still
// goes to respond.
func (r *Router) AfterSearch(state *domain.ConversationState) Node {
	if state.RequiresClarification {
		return NodeClarify
	}
	return NodeRespond
}

// ShouldContinue reports whether the thread accepts another turn.
func (r *Router) ShouldContinue(state *domain.ConversationState) bool {
	return r.exceeded(state) == "" &&
		state.Phase != domain.PhaseEnding &&
		state.UserIntent != domain.IntentGoodbye
}

// exceeded names the first limit the state is over, or "".
func (r *Router) exceeded(state *domain.ConversationState) string {
	switch {
	case state.TurnCount > r.limits.TurnLimit:
		return "turn"
	case state.RetryCount > r.limits.RetryLimit:
		return "retry"
	case state.ErrorCount > r.limits.ErrorLimit:
		return "error"
	default:
		return ""
	}
}
