package domain

// EventType is the discriminator of a stream frame.
type EventType string

const (
	EventChunk      EventType = "chunk"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
)

// StreamErrorType classifies a stream-level failure.
type StreamErrorType string

const (
	StreamErrorGeneral StreamErrorType = "general"
	StreamErrorNetwork StreamErrorType = "network"
	StreamErrorTimeout StreamErrorType = "timeout"
)

// StreamError is attached to error frames and to the assistant message that received it.
type StreamError struct {
	Type      StreamErrorType `json:"type"`
	Message   string          `json:"message"`
	Retryable bool            `json:"retryable"`
}

func (e *StreamError) Error() string {
	return e.Message
}

// StreamEvent is one server-sent frame of the chat stream.
// Which fields are populated depends on Type.
type StreamEvent struct {
	Type      EventType      `json:"type"`
	Content   string         `json:"content,omitempty"`
	ToolName  string         `json:"toolName,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Success   *bool          `json:"success,omitempty"`
	Data      any            `json:"data,omitempty"`
	Error     *StreamError   `json:"error,omitempty"`
	ToolCalls []ToolResult   `json:"toolCalls,omitempty"`
}

// ChunkEvent builds a text chunk frame.
func ChunkEvent(text string) StreamEvent {
	return StreamEvent{Type: EventChunk, Content: text}
}

// ToolCallEvent builds a frame announcing a tool invocation.
func ToolCallEvent(tool string, params map[string]any) StreamEvent {
	return StreamEvent{Type: EventToolCall, ToolName: tool, Params: params}
}

// ToolResultEvent builds a frame carrying a tool outcome.
func ToolResultEvent(r ToolResult) StreamEvent {
	ok := r.Success
	ev := StreamEvent{Type: EventToolResult, ToolName: r.ToolName, Success: &ok, Data: r.Data}
	if r.Error != "" {
		ev.Error = &StreamError{Type: StreamErrorGeneral, Message: r.Error}
	}
	return ev
}

// CompleteEvent builds the terminal frame of a successful stream.
func CompleteEvent(calls []ToolResult) StreamEvent {
	return StreamEvent{Type: EventComplete, ToolCalls: calls}
}

// ErrorEvent builds a terminal error frame.
func ErrorEvent(kind StreamErrorType, msg string, retryable bool) StreamEvent {
	return StreamEvent{Type: EventError, Error: &StreamError{Type: kind, Message: msg, Retryable: retryable}}
}
