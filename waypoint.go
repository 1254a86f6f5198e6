package waypoint

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	httpadapter "github.com/aretw0/waypoint/pkg/adapters/http"
	"github.com/aretw0/waypoint/pkg/adapters/mcp"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/metrics"
	"github.com/aretw0/waypoint/pkg/orchestrator"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/ratelimit"
	"github.com/aretw0/waypoint/pkg/registry"
	"github.com/aretw0/waypoint/pkg/resolver"
	"github.com/aretw0/waypoint/pkg/retry"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/aretw0/waypoint/pkg/tools"
)

//go:embed VERSION
var rawVersion string

// Version is the release of this build.
var Version = strings.TrimSpace(rawVersion)

// Engine wires the orchestration core to its collaborators.
type Engine struct {
	service  *orchestrator.Service
	sessions *session.Manager
	executor *tools.Executor
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	logger   *slog.Logger
	closers  []func() error

	caller        ports.ToolCaller
	generator     ports.Generator
	promptSource  ports.PromptSource
	locker        ports.TurnLocker
	lockTTL       time.Duration
	decider       *orchestrator.Decider
	retryCfg      retry.Config
	limitCfg      ratelimit.Config
	callTimeout   time.Duration
	streamTimeout time.Duration
	now           func() time.Time
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithToolCaller sets the remote tool transport. The in-process demo tools are used otherwise.
func WithToolCaller(c ports.ToolCaller) Option {
	return func(e *Engine) {
		e.caller = c
	}
}

// WithGenerator sets the language model. Without one, intents come from rules and
// answers from the deterministic formatter.
func WithGenerator(g ports.Generator) Option {
	return func(e *Engine) {
		e.generator = g
	}
}

// WithPrompts overrides the built-in prompt catalogue.
func WithPrompts(src ports.PromptSource) Option {
	return func(e *Engine) {
		e.promptSource = src
	}
}

// WithLocker enables cross-replica turn serialization.
func WithLocker(l ports.TurnLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		e.lockTTL = ttl
	}
}

// WithDecider overrides when a turn is orchestrated.
func WithDecider(d orchestrator.Decider) Option {
	return func(e *Engine) {
		e.decider = &d
	}
}

// WithRetryConfig sets the retry policy for tool calls.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Engine) {
		e.retryCfg = cfg
	}
}

// WithRateLimit sets the HTTP rate limiter buckets.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(e *Engine) {
		e.limitCfg = cfg
	}
}

// WithCallTimeout bounds every tool attempt.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.callTimeout = d
	}
}

// WithStreamTimeout bounds every streamed turn.
func WithStreamTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.streamTimeout = d
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the collector set. New creates one otherwise.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithCloser registers a function run by Close, in reverse order.
func WithCloser(fn func() error) Option {
	return func(e *Engine) {
		e.closers = append(e.closers, fn)
	}
}

// New builds an Engine.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		logger:   logging.NewNop(),
		retryCfg: retry.DefaultConfig(),
		limitCfg: ratelimit.DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New()
	}
	if e.caller == nil {
		e.caller = registry.NewDemo()
	}

	// 1. Sessions
	sessOpts := []session.Option{
		session.WithClock(e.now),
		session.WithLogger(e.logger),
		session.WithMetrics(e.metrics),
	}
	if e.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(e.locker))
		if e.lockTTL > 0 {
			sessOpts = append(sessOpts, session.WithLockTTL(e.lockTTL))
		}
	}
	e.sessions = session.NewManager(sessOpts...)

	// 2. Tools
	handler := retry.New(e.retryCfg,
		retry.WithClock(e.now),
		retry.WithLogger(e.logger),
		retry.WithMetrics(e.metrics),
	)
	execOpts := []tools.Option{
		tools.WithRetry(handler),
		tools.WithResolvers(resolver.NewDefaultRegistry(resolver.WithLogger(e.logger))),
		tools.WithLogger(e.logger),
		tools.WithMetrics(e.metrics),
	}
	if e.callTimeout > 0 {
		execOpts = append(execOpts, tools.WithCallTimeout(e.callTimeout))
	}
	e.executor = tools.NewExecutor(e.caller, execOpts...)

	// 3. Orchestration
	svcOpts := []orchestrator.Option{
		orchestrator.WithClock(e.now),
		orchestrator.WithLogger(e.logger),
		orchestrator.WithMetrics(e.metrics),
	}
	if e.generator != nil {
		svcOpts = append(svcOpts, orchestrator.WithGenerator(e.generator))
	}
	if e.promptSource != nil {
		svcOpts = append(svcOpts, orchestrator.WithPrompts(e.promptSource))
	}
	if e.decider != nil {
		svcOpts = append(svcOpts, orchestrator.WithDecider(*e.decider))
	}
	if e.streamTimeout > 0 {
		svcOpts = append(svcOpts, orchestrator.WithStreamTimeout(e.streamTimeout))
	}
	e.service = orchestrator.NewService(e.sessions, e.executor, svcOpts...)

	// 4. Edge
	e.limiter = ratelimit.New(e.limitCfg,
		ratelimit.WithClock(e.now),
		ratelimit.WithLogger(e.logger),
		ratelimit.WithMetrics(e.metrics),
	)
	return e, nil
}

// Service returns the orchestration service.
func (e *Engine) Service() *orchestrator.Service {
	return e.service
}

// Sessions returns the session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Tools returns the tool executor.
func (e *Engine) Tools() *tools.Executor {
	return e.executor
}

// Limiter returns the HTTP rate limiter.
func (e *Engine) Limiter() *ratelimit.Limiter {
	return e.limiter
}

// Metrics returns the collector set.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Chat runs one non-streaming turn.
func (e *Engine) Chat(ctx context.Context, req domain.ChatRequest) (*orchestrator.Response, error) {
	return e.service.Chat(ctx, orchestrator.RequestFrom(req))
}

// Stream runs one turn and emits its SSE events.
func (e *Engine) Stream(ctx context.Context, req domain.ChatRequest, emit func(domain.StreamEvent) error) error {
	return e.service.Stream(ctx, orchestrator.RequestFrom(req), emit)
}

// HTTPHandler builds the HTTP API, limiter and metrics included.
func (e *Engine) HTTPHandler(opts ...httpadapter.Option) (http.Handler, error) {
	base := []httpadapter.Option{
		httpadapter.WithLimiter(e.limiter),
		httpadapter.WithMetrics(e.metrics),
		httpadapter.WithLogger(e.logger),
		httpadapter.WithVersion(Version),
	}
	return httpadapter.NewHandler(e.service, append(base, opts...)...)
}

// MCPServer exposes the engine as an MCP server.
func (e *Engine) MCPServer() *mcp.Server {
	return mcp.NewServer(e.service, Version, mcp.WithServerLogger(e.logger))
}

// Close releases the registered resources.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
