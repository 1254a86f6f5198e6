package ports

import (
	"context"

	"github.com/aretw0/waypoint/pkg/domain"
)

// ToolCaller invokes a named remote tool.
// The returned value is the raw response envelope, either the payload itself or an
// MCP-style {"content":[{"text":"<json>"}]} wrapper.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, params map[string]any) (any, error)
}

// ToolCallerFunc adapts a function into a ToolCaller.
type ToolCallerFunc func(ctx context.Context, name string, params map[string]any) (any, error)

// CallTool calls f.
func (f ToolCallerFunc) CallTool(ctx context.Context, name string, params map[string]any) (any, error) {
	return f(ctx, name, params)
}

// IntentExtractor classifies a user message.
type IntentExtractor interface {
	// Extract returns at least one intent for a non-empty message.
	Extract(ctx context.Context, message string, c *domain.ConversationContext) ([]domain.Intent, error)
}
