// Package tools invokes the remote travel tools through parameter resolution,
// retry and circuit breaking, and returns uniform results.
package tools

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/metrics"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/resolver"
	"github.com/aretw0/waypoint/pkg/retry"
)

// DefaultCallTimeout bounds a single attempt of a tool call.
const DefaultCallTimeout = 15 * time.Second

// Executor runs named tools.
type Executor struct {
	caller    ports.ToolCaller
	retry     *retry.Handler
	resolvers *resolver.Registry
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures the Executor.
type Option func(*Executor)

// WithRetry sets the retry handler. Breakers are keyed by tool name.
func WithRetry(h *retry.Handler) Option {
	return func(e *Executor) {
		e.retry = h
	}
}

// WithResolvers sets the parameter resolver chain.
func WithResolvers(r *resolver.Registry) Option {
	return func(e *Executor) {
		e.resolvers = r
	}
}

// WithCallTimeout bounds each attempt. Zero disables the per-attempt timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// WithLogger configures a logger for tool events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithMetrics reports tool durations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an Executor over caller with the default retry policy and resolver chain.
func NewExecutor(caller ports.ToolCaller, opts ...Option) *Executor {
	e := &Executor{
		caller:  caller,
		timeout: DefaultCallTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.retry == nil {
		e.retry = retry.New(retry.DefaultConfig(), retry.WithLogger(e.logger), retry.WithMetrics(e.metrics))
	}
	if e.resolvers == nil {
		e.resolvers = resolver.NewDefaultRegistry(resolver.WithLogger(e.logger))
	}
	return e
}

// Retry exposes the handler owning the per-tool breakers.
func (e *Executor) Retry() *retry.Handler {
	return e.retry
}

// Execute resolves params, calls the tool under retry and unwraps its envelope.
// Failures are reported in the result, never as a panic or error return.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]any) domain.ToolResult {
	// 1. Resolve human-readable parameters
	resolved := e.resolvers.Resolve(ctx, name, params, e.call)

	// 2. Call under retry and breaker
	return e.call(ctx, name, resolved)
}

func (e *Executor) call(ctx context.Context, name string, params map[string]any) domain.ToolResult {
	if params == nil {
		params = map[string]any{}
	}
	start := time.Now()

	out := retry.Do(ctx, e.retry, name, func(ctx context.Context) (any, error) {
		if e.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		return e.caller.CallTool(ctx, name, params)
	}, nil)

	elapsed := time.Since(start)
	e.metrics.ToolCall(name, out.Success, elapsed)

	if !out.Success {
		e.logger.Warn("Tool call failed",
			"tool", name,
			"attempts", out.Attempts,
			"duration", elapsed,
			"err", out.Err,
		)
		return domain.ToolResult{ToolName: name, Params: params, Success: false, Error: out.Err.Error()}
	}

	e.logger.Debug("Tool call succeeded", "tool", name, "attempts", out.Attempts, "duration", elapsed)
	return domain.ToolResult{
		ToolName: name,
		Params:   params,
		Success:  true,
		Data:     ParseEnvelope(out.Data),
	}
}

// ExecuteAll runs calls concurrently. Results keep the order of calls and a
// failing call does not affect its siblings.
func (e *Executor) ExecuteAll(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))

	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		go func(i int, c domain.ToolCall) {
			defer wg.Done()
			results[i] = e.Execute(ctx, c.Name, c.Args)
		}(i, c)
	}
	wg.Wait()

	return results
}
