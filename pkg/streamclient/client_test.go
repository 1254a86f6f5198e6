package streamclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/streamclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamServer(t *testing.T, events ...domain.StreamEvent) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/llm/stream", r.URL.Path)
		var req domain.ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "s1", r.Header.Get("X-Session-Id"))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			assert.NoError(t, streamclient.WriteFrame(w, ev))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParseFrames(t *testing.T) {
	in := "event: ping\ndata: {\"type\":\"chunk\",\"content\":\"a\"}\n\n: comment\ndata: {\"type\":\"complete\"}\n\n"
	var got []domain.EventType
	err := streamclient.ParseFrames(strings.NewReader(in), func(ev domain.StreamEvent) error {
		got = append(got, ev.Type)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.EventType{domain.EventChunk, domain.EventComplete}, got)

	err = streamclient.ParseFrames(strings.NewReader("data: {oops\n\n"), func(domain.StreamEvent) error { return nil })
	assert.ErrorContains(t, err, "decode")
}

func TestClient_Send(t *testing.T) {
	srv := streamServer(t,
		domain.ToolCallEvent(domain.ToolFindTrips, map[string]any{"origin": "Zürich"}),
		domain.ToolResultEvent(domain.ToolResult{ToolName: domain.ToolFindTrips, Success: true}),
		domain.ChunkEvent("Here are "),
		domain.ChunkEvent("three trains."),
		domain.CompleteEvent([]domain.ToolResult{{ToolName: domain.ToolFindTrips, Success: true}}),
	)

	var seen int
	c := streamclient.New(srv.URL)
	msg, err := c.Send(context.Background(), domain.ChatRequest{Message: "trains to Bern", SessionID: "s1"}, func(streamclient.Message) { seen++ })
	require.NoError(t, err)

	assert.Equal(t, "Here are three trains.", msg.Content)
	assert.False(t, msg.IsStreaming)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, streamclient.ToolComplete, msg.ToolCalls[0].Status)
	assert.Positive(t, seen)
}

func TestClient_ErrorFrame(t *testing.T) {
	srv := streamServer(t, domain.ErrorEvent(domain.StreamErrorGeneral, "model unavailable", true))

	msg, err := streamclient.New(srv.URL).Send(context.Background(), domain.ChatRequest{Message: "hi", SessionID: "s1"}, nil)
	require.Error(t, err)
	assert.Equal(t, "model unavailable", err.Error())
	assert.True(t, msg.Error.Retryable)
}

func TestClient_Offline(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	c := streamclient.New(srv.URL, streamclient.WithOnlineCheck(func(context.Context) bool { return false }))
	msg, err := c.Send(context.Background(), domain.ChatRequest{Message: "hi"}, nil)

	require.Error(t, err)
	assert.False(t, called, "no request is sent while offline")
	assert.Equal(t, domain.StreamErrorNetwork, msg.Error.Type)
	assert.Equal(t, streamclient.OfflineMessage, msg.Error.Message)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c := streamclient.New(srv.URL, streamclient.WithTimeout(50*time.Millisecond))
	msg, err := c.Send(context.Background(), domain.ChatRequest{Message: "hi"}, nil)

	require.Error(t, err)
	assert.Equal(t, domain.StreamErrorTimeout, msg.Error.Type)
	assert.Contains(t, msg.Error.Message, "took too long")
	assert.True(t, msg.Error.Retryable)
}

func TestClient_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Too many requests","retryAfter":6}`))
	}))
	defer srv.Close()

	msg, err := streamclient.New(srv.URL).Send(context.Background(), domain.ChatRequest{Message: "hi"}, nil)
	require.Error(t, err)
	assert.Equal(t, "Too many requests", msg.Error.Message)
	assert.True(t, msg.Error.Retryable)
}

func TestClient_Sessions(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/llm/sessions", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"sessions":["a","b"]}`))
	})
	mux.HandleFunc("GET /api/llm/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "a" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"sessionId":"a","language":"de"}`))
	})
	mux.HandleFunc("DELETE /api/llm/session/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := streamclient.New(srv.URL)
	ctx := context.Background()

	ids, err := c.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	s, err := c.Session(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "de", s.Language)

	_, err = c.Session(ctx, "zzz")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	assert.NoError(t, c.DeleteSession(ctx, "a"))
}

func TestIsLoopback(t *testing.T) {
	assert.True(t, streamclient.IsLoopback("http://localhost:8080"))
	assert.True(t, streamclient.IsLoopback("http://127.0.0.1:8080"))
	assert.False(t, streamclient.IsLoopback("https://waypoint.example.com"))
}
