package driven

// PromptStore provides access to generator prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return a sensible
	// default or an error, depending on whether the prompt is required.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	// This is used when prompts have been edited on disk.
	Reload()
}

// Well-known prompt names used throughout the application.
// These constants define the contract between prompt consumers and providers.
const (
	// PromptQueryRewrite turns a follow-up into a standalone query.
	// The template expects %s (history) and %s (query) placeholders.
	PromptQueryRewrite = "query_rewrite"

	// PromptAnswer grounds an answer in retrieved evidence.
	// The template expects %s (context), %s (history) and %s (question) placeholders.
	PromptAnswer = "answer"

	// PromptSuggestions asks for follow-up questions.
	// The template expects %s (topic) and %s (last answer) placeholders.
	PromptSuggestions = "suggestions"
)

// PromptStoreAware is an optional interface for services that can use custom prompts.
type PromptStoreAware interface {
	// SetPromptStore sets the prompt store for loading customisable prompts.
	// If not set, the service should use hardcoded default prompts.
	SetPromptStore(store PromptStore)
}
