package domain

// HistoryMessage is one earlier message of the conversation as sent by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatContext carries client-side settings of a turn.
type ChatContext struct {
	Language       string `json:"language,omitempty"`
	VoiceEnabled   bool   `json:"voiceEnabled,omitempty"`
	NearestStation string `json:"nearestStation,omitempty"`
}

// ChatRequest is the body of the chat and stream endpoints.
type ChatRequest struct {
	Message   string           `json:"message"`
	History   []HistoryMessage `json:"history,omitempty"`
	Context   ChatContext      `json:"context"`
	SessionID string           `json:"sessionId,omitempty"`
}

// ChatResponse is the body returned by the non-streaming chat endpoint.
type ChatResponse struct {
	SessionID string       `json:"sessionId,omitempty"`
	Response  string       `json:"response"`
	ToolCalls []ToolResult `json:"toolCalls,omitempty"`
	Error     string       `json:"error,omitempty"`
}
