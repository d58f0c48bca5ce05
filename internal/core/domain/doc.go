// Package domain defines the core business entities for Sercha Chat.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - ConversationState: The per-thread record mutated once per turn
//   - Message: One entry in the append-only message ledger
//   - SearchResult: A piece of evidence returned by the knowledge index
//   - Intent, Phase, Complexity: Closed enumerations driving the router
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
