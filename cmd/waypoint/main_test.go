package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/pkg/domain"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "waypoint version "+waypoint.Version)
}

func TestSessionCommands(t *testing.T) {
	eng, err := waypoint.New()
	require.NoError(t, err)
	h, err := eng.HTTPHandler()
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	defer srv.Close()

	out, err := run(t, "session", "ls", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "No active sessions found.")

	_, err = eng.Chat(context.Background(), domain.ChatRequest{Message: "weather in Bern", SessionID: "cli-1"})
	require.NoError(t, err)

	out, err = run(t, "session", "ls", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "- cli-1")

	out, err = run(t, "session", "inspect", "cli-1", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, `"sessionId": "cli-1"`)

	out, err = run(t, "session", "rm", "cli-1", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed session 'cli-1'")

	_, err = run(t, "session", "rm", "cli-1", "--url", srv.URL)
	assert.Error(t, err)
}

func TestMCPCommand_UnknownTransport(t *testing.T) {
	_, err := run(t, "mcp", "--transport", "carrier-pigeon")
	assert.ErrorContains(t, err, "unknown transport")
}
