package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// defaultHistoryLimit is used when the history tool is called without a limit.
const defaultHistoryLimit = 20

// ChatInput is the input schema for the chat tool.
type ChatInput struct {
	ThreadID string `json:"thread_id" jsonschema:"conversation thread identifier; reuse it to continue a conversation"`
	Message  string `json:"message" jsonschema:"the user's message"`
}

// ChatOutput is the output schema for the chat tool.
type ChatOutput struct {
	Response    string   `json:"response"`
	Sources     []string `json:"sources,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
	TurnCount   int      `json:"turn_count"`
	Phase       string   `json:"phase"`
	Intent      string   `json:"intent"`
	Confidence  float64  `json:"confidence"`
	HasErrors   bool     `json:"has_errors"`
}

// HistoryInput is the input schema for the history tool.
type HistoryInput struct {
	ThreadID string `json:"thread_id" jsonschema:"conversation thread identifier"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of most recent messages (default 20)"`
}

// HistoryOutput is the output schema for the history tool.
type HistoryOutput struct {
	Messages []MessageOutput `json:"messages"`
	Count    int             `json:"count"`
}

// MessageOutput is one message in a thread history.
type MessageOutput struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Sources   []string  `json:"sources,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "chat",
		Description: "Send a message in a conversation grounded in the knowledge base",
	}, s.handleChat)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "history",
		Description: "Read the most recent messages of a conversation thread",
	}, s.handleHistory)
}

// handleChat runs one conversation turn.
func (s *Server) handleChat(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ChatInput,
) (*mcp.CallToolResult, ChatOutput, error) {
	threadID := strings.TrimSpace(input.ThreadID)
	if threadID == "" {
		return nil, ChatOutput{}, ErrMissingThreadID
	}

	result, err := s.ports.Conversation.ProcessMessage(ctx, threadID, input.Message)
	if err != nil {
		return nil, ChatOutput{}, err
	}

	return nil, ChatOutput{
		Response:    result.Response,
		Sources:     result.Sources,
		Suggestions: result.Suggestions,
		TurnCount:   result.TurnCount,
		Phase:       string(result.Phase),
		Intent:      string(result.Intent),
		Confidence:  result.Confidence,
		HasErrors:   result.HasErrors,
	}, nil
}

// handleHistory returns recent messages for a thread.
func (s *Server) handleHistory(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input HistoryInput,
) (*mcp.CallToolResult, HistoryOutput, error) {
	threadID := strings.TrimSpace(input.ThreadID)
	if threadID == "" {
		return nil, HistoryOutput{}, ErrMissingThreadID
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	messages, err := s.ports.Conversation.GetHistory(ctx, threadID, limit)
	if err != nil {
		return nil, HistoryOutput{}, err
	}

	output := HistoryOutput{
		Messages: make([]MessageOutput, len(messages)),
		Count:    len(messages),
	}
	for i, m := range messages {
		output.Messages[i] = MessageOutput{
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
		if m.Metadata != nil {
			output.Messages[i].Sources = m.Metadata.Sources
		}
	}

	return nil, output, nil
}
