// Package mcp provides an MCP (Model Context Protocol) server adapter for sercha-chat.
// It lets AI assistants hold grounded conversations against the knowledge base.
package mcp

import "errors"

var (
	// ErrMissingConversationService is returned when the conversation service is not provided.
	ErrMissingConversationService = errors.New("mcp: conversation service is required")

	// ErrMissingThreadID is returned by tools called without a thread id.
	ErrMissingThreadID = errors.New("mcp: thread_id is required")
)
