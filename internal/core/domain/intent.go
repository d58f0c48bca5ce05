package domain

// Intent is the closed set of user intents recognised by the classifier.
type Intent string

// Recognised intents.
const (
	IntentGreeting           Intent = "greeting"
	IntentGoodbye            Intent = "goodbye"
	IntentHelp               Intent = "help"
	IntentInformationSeeking Intent = "information_seeking"
	IntentQuestion           Intent = "question"
	IntentSearch             Intent = "search"
	IntentComparison         Intent = "comparison"
	IntentExplanation        Intent = "explanation"
	IntentClarification      Intent = "clarification"
	IntentFollowUp           Intent = "follow_up"
	IntentListing            Intent = "listing"
	IntentUnknown            Intent = "unknown"
)

// AllIntents returns every recognised intent in declaration order.
func AllIntents() []Intent {
	return []Intent{
		IntentGreeting,
		IntentGoodbye,
		IntentHelp,
		IntentInformationSeeking,
		IntentQuestion,
		IntentSearch,
		IntentComparison,
		IntentExplanation,
		IntentClarification,
		IntentFollowUp,
		IntentListing,
		IntentUnknown,
	}
}

// ParseIntent converts a string to an Intent.
// Unrecognised values map to IntentUnknown.
func ParseIntent(s string) Intent {
	i := Intent(s)
	if i.IsValid() {
		return i
	}
	return IntentUnknown
}

// IsValid returns true if the intent is recognised.
func (i Intent) IsValid() bool {
	switch i {
	case IntentGreeting, IntentGoodbye, IntentHelp, IntentInformationSeeking,
		IntentQuestion, IntentSearch, IntentComparison, IntentExplanation,
		IntentClarification, IntentFollowUp, IntentListing, IntentUnknown:
		return true
	default:
		return false
	}
}

// IsConversational returns true for intents answered from canned templates.
func (i Intent) IsConversational() bool {
	return i == IntentGreeting || i == IntentGoodbye || i == IntentHelp
}

// String returns the string representation.
func (i Intent) String() string {
	return string(i)
}

// Phase is a state of the conversation state machine.
type Phase string

// Conversation phases.
const (
	PhaseGreeting      Phase = "greeting"
	PhaseUnderstanding Phase = "understanding"
	PhaseSearching     Phase = "searching"
	PhaseClarifying    Phase = "clarifying"
	PhaseResponding    Phase = "responding"
	PhaseEnding        Phase = "ending"
)

// IsTerminal returns true if no further turns are accepted in this phase.
func (p Phase) IsTerminal() bool {
	return p == PhaseEnding
}

// CanTransition reports whether the state machine permits moving from p to next.
func (p Phase) CanTransition(next Phase) bool {
	if next == PhaseEnding {
		return true
	}
	switch p {
	case PhaseGreeting:
		return next == PhaseUnderstanding
	case PhaseUnderstanding:
		return next == PhaseSearching || next == PhaseResponding
	case PhaseSearching:
		return next == PhaseResponding || next == PhaseClarifying
	case PhaseClarifying, PhaseResponding:
		return next == PhaseUnderstanding
	default:
		return false
	}
}

// String returns the string representation.
func (p Phase) String() string {
	return string(p)
}

// Complexity is a coarse estimate of how involved a query is.
type Complexity string

// Query complexity levels.
const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Classification is the output of intent classification for one user message.
type Classification struct {
	Intent         Intent
	Complexity     Complexity
	IsContextual   bool
	ProcessedQuery string
	Keywords       []string
	TopicEntities  []string

	// Interrogative is true when the message asks something.
	Interrogative bool
}
