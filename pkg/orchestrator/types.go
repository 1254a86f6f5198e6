package orchestrator

import (
	"github.com/aretw0/waypoint/pkg/compile"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/intent"
)

// HistoryMessage is one earlier message of the conversation.
type HistoryMessage = domain.HistoryMessage

// Request is one user turn.
type Request struct {
	Message   string
	History   []HistoryMessage
	SessionID string
	Language  string
	// VoiceEnabled selects the narrated synthesis prompt.
	VoiceEnabled bool
	// NearestStation replaces the user location placeholder when known.
	NearestStation string
	// Structure is explicit markdown structure parsed by the caller. When nil
	// the message itself is parsed.
	Structure *intent.Structure
}

// Response is the outcome of a turn.
type Response struct {
	SessionID    string                      `json:"sessionId"`
	Response     string                      `json:"response"`
	ToolCalls    []domain.ToolResult         `json:"toolCalls,omitempty"`
	Intents      []domain.Intent             `json:"intents,omitempty"`
	Orchestrated bool                        `json:"orchestrated"`
	Plan         *domain.PlanExecutionResult `json:"-"`
	Summary      *compile.Summary            `json:"summary,omitempty"`
}

// RequestFrom converts a wire request.
func RequestFrom(in domain.ChatRequest) Request {
	return Request{
		Message:        in.Message,
		History:        in.History,
		SessionID:      in.SessionID,
		Language:       in.Context.Language,
		VoiceEnabled:   in.Context.VoiceEnabled,
		NearestStation: in.Context.NearestStation,
	}
}
