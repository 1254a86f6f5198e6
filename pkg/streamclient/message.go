package streamclient

import (
	"maps"

	"github.com/aretw0/waypoint/pkg/domain"
)

// ToolStatus is the lifecycle state of a tool call seen on the stream.
type ToolStatus string

const (
	ToolExecuting ToolStatus = "executing"
	ToolComplete  ToolStatus = "complete"
	ToolError     ToolStatus = "error"
)

// ToolCall is a tool invocation announced by the server.
type ToolCall struct {
	ToolName string         `json:"toolName"`
	Params   map[string]any `json:"params,omitempty"`
	Status   ToolStatus     `json:"status"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Message is the assistant message assembled from a stream.
type Message struct {
	Content string `json:"content"`
	// StreamingToolCalls holds every tool call of the stream as it progresses.
	StreamingToolCalls []ToolCall `json:"streamingToolCalls,omitempty"`
	// ToolCalls holds the completed tool calls once the stream is complete.
	ToolCalls   []ToolCall          `json:"toolCalls,omitempty"`
	IsStreaming bool                `json:"isStreaming"`
	Error       *domain.StreamError `json:"error,omitempty"`
}

// Clone returns a deep copy of the message slices.
func (m Message) Clone() Message {
	out := m
	out.StreamingToolCalls = cloneCalls(m.StreamingToolCalls)
	out.ToolCalls = cloneCalls(m.ToolCalls)
	if m.Error != nil {
		e := *m.Error
		out.Error = &e
	}
	return out
}

func cloneCalls(in []ToolCall) []ToolCall {
	if in == nil {
		return nil
	}
	out := make([]ToolCall, len(in))
	for i, c := range in {
		c.Params = maps.Clone(c.Params)
		out[i] = c
	}
	return out
}
