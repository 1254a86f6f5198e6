package domain

// ToolCall is a request to invoke a named remote tool.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult is the uniform outcome of a tool invocation.
type ToolResult struct {
	ToolName string         `json:"toolName"`
	Params   map[string]any `json:"params,omitempty"`
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    string         `json:"error,omitempty"`
}
