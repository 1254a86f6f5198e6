package tui

import (
	"fmt"

	"github.com/muesli/termenv"

	"github.com/aretw0/waypoint/pkg/streamclient"
)

// ToolLine formats one streamed tool call for the status area.
func ToolLine(call streamclient.ToolCall) string {
	p := termenv.ColorProfile()
	switch call.Status {
	case streamclient.ToolComplete:
		return fmt.Sprintf("%s %s", termenv.String("✓").Foreground(p.Color("#22c55e")), call.ToolName)
	case streamclient.ToolError:
		msg := call.Error
		if msg == "" {
			msg = "failed"
		}
		return fmt.Sprintf("%s %s: %s", termenv.String("✗").Foreground(p.Color("#ef4444")), call.ToolName, msg)
	default:
		return fmt.Sprintf("%s %s…", termenv.String("•").Foreground(p.Color("#eab308")), call.ToolName)
	}
}

// ErrorLine formats a stream error, hinting when a retry may help.
func ErrorLine(msg string, retryable bool) string {
	p := termenv.ColorProfile()
	out := termenv.String("error: " + msg).Foreground(p.Color("#ef4444")).String()
	if retryable {
		out += termenv.String(" (retry with /retry)").Faint().String()
	}
	return out
}
