package tui_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/waypoint/internal/presentation/tui"
	"github.com/aretw0/waypoint/pkg/streamclient"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf, "1.2.3\n")
	assert.Contains(t, buf.String(), "travel assistant 1.2.3")
}

func TestNewRenderer(t *testing.T) {
	render := tui.NewRenderer(60)
	out, err := render("# Trips\n\n- **09:00** Zürich HB")
	require.NoError(t, err)
	assert.Contains(t, out, "Trips")
	assert.Contains(t, out, "09:00")
}

func TestToolLine(t *testing.T) {
	tests := []struct {
		call streamclient.ToolCall
		want string
	}{
		{streamclient.ToolCall{ToolName: "findTrips", Status: streamclient.ToolExecuting}, "findTrips…"},
		{streamclient.ToolCall{ToolName: "findTrips", Status: streamclient.ToolComplete}, "findTrips"},
		{streamclient.ToolCall{ToolName: "getWeather", Status: streamclient.ToolError, Error: "tool call timed out"}, "getWeather: tool call timed out"},
		{streamclient.ToolCall{ToolName: "getWeather", Status: streamclient.ToolError}, "getWeather: failed"},
	}
	for _, tt := range tests {
		assert.Contains(t, tui.ToolLine(tt.call), tt.want)
	}
}

func TestErrorLine(t *testing.T) {
	assert.Contains(t, tui.ErrorLine("took too long", true), "/retry")
	assert.NotContains(t, tui.ErrorLine("bad request", false), "/retry")
}
