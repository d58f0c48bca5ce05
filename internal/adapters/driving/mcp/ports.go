package mcp

import (
	"github.com/custodia-labs/sercha-chat/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Conversation runs turns and serves history.
	Conversation driving.ConversationService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Conversation == nil {
		return ErrMissingConversationService
	}
	return nil
}
