package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/registry"
	"github.com/aretw0/waypoint/pkg/retry"
	"github.com/aretw0/waypoint/pkg/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newExecutor(caller ports.ToolCaller) *tools.Executor {
	h := retry.New(retry.DefaultConfig(), retry.WithSleep(noSleep))
	return tools.NewExecutor(caller, tools.WithRetry(h))
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want any
	}{
		{"mcp json", map[string]any{"content": []any{map[string]any{"text": `{"a":1}`}}}, map[string]any{"a": float64(1)}},
		{"mcp array", map[string]any{"content": []any{map[string]any{"text": `[1,2]`}}}, []any{float64(1), float64(2)}},
		{"mcp plain text", map[string]any{"content": []any{map[string]any{"text": "no trains today"}}}, "no trains today"},
		{"raw object", map[string]any{"trips": []any{}}, map[string]any{"trips": []any{}}},
		{"empty content", map[string]any{"content": []any{}}, map[string]any{"content": []any{}}},
		{"bytes", []byte(`{"content":[{"text":"{\"ok\":true}"}]}`), map[string]any{"ok": true}},
		{"raw message", json.RawMessage(`[{"id":"x"}]`), []any{map[string]any{"id": "x"}}},
		{"json string", `{"b":2}`, map[string]any{"b": float64(2)}},
		{"text string", "hello", "hello"},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tools.ParseEnvelope(tt.raw))
		})
	}
}

func TestExecute_ResolvesAndUnwraps(t *testing.T) {
	exec := newExecutor(registry.NewDemo())

	res := exec.Execute(context.Background(), domain.ToolGetPlaceEvents, map[string]any{"placeId": "Bern", "eventType": "departures"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, domain.ToolGetPlaceEvents, res.ToolName)
	assert.Equal(t, "8507000", res.Params["placeId"])
	board, ok := res.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Bern", board["station"])
}

func TestExecute_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	caller := ports.ToolCallerFunc(func(_ context.Context, name string, _ map[string]any) (any, error) {
		if calls.Add(1) < 3 {
			return nil, &domain.RemoteError{Status: 503, Message: "busy"}
		}
		return map[string]any{"content": []any{map[string]any{"text": `[]`}}}, nil
	})

	res := newExecutor(caller).Execute(context.Background(), domain.ToolFindTrips, map[string]any{"origin": "A", "destination": "B"})

	assert.True(t, res.Success)
	assert.Equal(t, []any{}, res.Data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExecute_FailureBecomesResult(t *testing.T) {
	caller := ports.ToolCallerFunc(func(context.Context, string, map[string]any) (any, error) {
		return nil, errors.New("invalid station")
	})

	res := newExecutor(caller).Execute(context.Background(), domain.ToolFindTrips, nil)

	assert.False(t, res.Success)
	assert.Equal(t, "invalid station", res.Error)
	assert.NotNil(t, res.Params)
}

func TestExecute_CircuitOpenIsReported(t *testing.T) {
	caller := ports.ToolCallerFunc(func(context.Context, string, map[string]any) (any, error) {
		return nil, &domain.RemoteError{Status: 400, Message: "bad"}
	})
	exec := newExecutor(caller)

	for i := 0; i < 5; i++ {
		exec.Execute(context.Background(), domain.ToolGetWeather, map[string]any{"latitude": 1.0, "longitude": 2.0})
	}
	res := exec.Execute(context.Background(), domain.ToolGetWeather, map[string]any{"latitude": 1.0, "longitude": 2.0})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "circuit breaker open")
	assert.Equal(t, retry.StateOpen, exec.Retry().Status(domain.ToolGetWeather).State)
}

func TestExecute_PerAttemptTimeout(t *testing.T) {
	caller := ports.ToolCallerFunc(func(ctx context.Context, _ string, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := retry.New(retry.Config{MaxAttempts: 2}, retry.WithSleep(noSleep))
	exec := tools.NewExecutor(caller, tools.WithRetry(h), tools.WithCallTimeout(10*time.Millisecond))

	res := exec.Execute(context.Background(), domain.ToolFindTrips, nil)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "after 2 attempts")
}

func TestExecuteAll_KeepsOrderAndIsolatesFailures(t *testing.T) {
	caller := ports.ToolCallerFunc(func(_ context.Context, name string, args map[string]any) (any, error) {
		if name == "slow" {
			time.Sleep(20 * time.Millisecond)
		}
		if name == "broken" {
			return nil, &domain.RemoteError{Status: 404, Message: "not here"}
		}
		return args["n"], nil
	})

	results := newExecutor(caller).ExecuteAll(context.Background(), []domain.ToolCall{
		{Name: "slow", Args: map[string]any{"n": 1.0}},
		{Name: "broken"},
		{Name: "fast", Args: map[string]any{"n": 3.0}},
	})

	require.Len(t, results, 3)
	assert.Equal(t, "slow", results[0].ToolName)
	assert.True(t, results[0].Success)
	assert.Equal(t, 1.0, results[0].Data)
	assert.False(t, results[1].Success)
	assert.Equal(t, "fast", results[2].ToolName)
	assert.Equal(t, 3.0, results[2].Data)
}
