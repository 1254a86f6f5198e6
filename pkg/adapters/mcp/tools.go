package mcp

import (
	"context"
	"encoding/json"

	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// NewToolServer serves the tools names of caller over MCP. It stands in for
// the remote travel backend in demos and tests.
func NewToolServer(version string, caller ports.ToolCaller, names []string) *server.MCPServer {
	s := server.NewMCPServer("waypoint-tools", version)
	for _, name := range names {
		s.AddTool(mcp.NewTool(name, mcp.WithDescription("Travel tool "+name)), toolHandler(caller, name))
	}
	return s
}

func toolHandler(caller ports.ToolCaller, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := caller.CallTool(ctx, name, request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if text, ok := envelopeText(raw); ok {
			return mcp.NewToolResultText(text), nil
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}

// envelopeText returns the first text of a {content:[{text}]} envelope.
func envelopeText(raw any) (string, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return "", false
	}
	content, ok := m["content"].([]any)
	if !ok || len(content) == 0 {
		return "", false
	}
	first, ok := content[0].(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := first["text"].(string)
	return text, ok
}
