// Package retry wraps remote calls with exponential backoff and a circuit breaker
// per downstream service.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/metrics"
)

// Outcome is the result of a retried call.
type Outcome[T any] struct {
	Success       bool
	Data          T
	Err           error
	Attempts      int
	TotalDuration time.Duration
}

// Handler owns the breakers of every service it has seen.
type Handler struct {
	cfg        Config
	breakerCfg BreakerConfig
	now        func() time.Time
	rand       func() float64
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu       sync.Mutex
	breakers map[string]*breaker
}

// Option configures the Handler.
type Option func(*Handler)

// WithBreakerConfig overrides DefaultBreakerConfig.
func WithBreakerConfig(cfg BreakerConfig) Option {
	return func(h *Handler) {
		h.breakerCfg = cfg
	}
}

// WithClock overrides time.Now for breaker timing.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// WithRand overrides the jitter source; it must return values in [0,1).
func WithRand(rnd func() float64) Option {
	return func(h *Handler) {
		h.rand = rnd
	}
}

// WithSleep overrides how backoff delays are waited out.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(h *Handler) {
		h.sleep = sleep
	}
}

// WithLogger configures a logger for retry and breaker events.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics reports attempts and breaker states to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// New creates a Handler. Zero fields of cfg take their DefaultConfig values.
func New(cfg Config, opts ...Option) *Handler {
	h := &Handler{
		cfg:        cfg.merge(DefaultConfig()),
		breakerCfg: DefaultBreakerConfig(),
		now:        time.Now,
		rand:       rand.Float64,
		sleep:      sleepContext,
		logger:     logging.NewNop(),
		breakers:   make(map[string]*breaker),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.breakerCfg.FailureThreshold <= 0 {
		h.breakerCfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if h.breakerCfg.ResetTimeout <= 0 {
		h.breakerCfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}
	return h
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (h *Handler) breaker(service string) *breaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.breakers[service]
	if !ok {
		b = newBreaker(h.breakerCfg)
		h.breakers[service] = b
	}
	return b
}

// Do runs fn under the handler's default policy.
func (h *Handler) Do(ctx context.Context, service string, fn func(context.Context) (any, error)) Outcome[any] {
	return Do(ctx, h, service, fn, nil)
}

// Do runs fn for service, retrying transient failures with exponential backoff.
// A nil override uses the handler's policy; zero fields of a non-nil override
// fall back to it.
//
// The breaker counts one failure per call whose attempts are exhausted or that
// hit a permanent error. While open, fn is not invoked and the outcome carries a
// *CircuitOpenError.
func Do[T any](ctx context.Context, h *Handler, service string, fn func(context.Context) (T, error), override *Config) Outcome[T] {
	cfg := h.cfg
	if override != nil {
		cfg = override.merge(h.cfg)
	}

	start := h.now()
	b := h.breaker(service)

	allowed, state := b.allow(start)
	if !allowed {
		h.logger.Debug("Circuit open, failing fast", "service", service)
		return Outcome[T]{Err: &CircuitOpenError{Service: service}, TotalDuration: h.now().Sub(start)}
	}
	if state == StateHalfOpen {
		h.metrics.BreakerState(service, state.gauge())
		h.logger.Info("Circuit half-open, sending trial call", "service", service)
	}

	var (
		lastErr error
		attempt int
	)
	for attempt = 1; attempt <= cfg.MaxAttempts; attempt++ {
		data, err := fn(ctx)
		h.metrics.RetryAttempt(service, err == nil)
		if err == nil {
			if prev := b.status().State; prev != StateClosed {
				h.logger.Info("Circuit closed", "service", service)
			}
			h.metrics.BreakerState(service, b.success().gauge())
			return Outcome[T]{Success: true, Data: data, Attempts: attempt, TotalDuration: h.now().Sub(start)}
		}
		lastErr = err

		// The caller gave up: the service is not at fault.
		if ctx.Err() != nil {
			b.abandon()
			return Outcome[T]{Err: err, Attempts: attempt, TotalDuration: h.now().Sub(start)}
		}

		if !IsRetryable(err) || attempt == cfg.MaxAttempts {
			break
		}

		delay := h.backoff(cfg, attempt)
		h.logger.Debug("Call failed, retrying",
			"service", service,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"backoff", delay,
			"err", err,
		)
		if err := h.sleep(ctx, delay); err != nil {
			b.abandon()
			return Outcome[T]{Err: err, Attempts: attempt, TotalDuration: h.now().Sub(start)}
		}
	}
	next := b.failure(h.now())
	h.metrics.BreakerState(service, next.gauge())
	if next == StateOpen {
		h.logger.Warn("Circuit open", "service", service, "failures", b.status().Failures)
	}

	if attempt > 1 {
		lastErr = fmt.Errorf("%s failed after %d attempts: %w", service, attempt, lastErr)
	}
	return Outcome[T]{Err: lastErr, Attempts: attempt, TotalDuration: h.now().Sub(start)}
}

// backoff computes min(initial * multiplier^(attempt-1), max) plus symmetric jitter.
func (h *Handler) backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	jitter := delay * cfg.JitterFactor * (h.rand() - 0.5)
	return time.Duration(delay + jitter)
}

// Backoff exposes the delay before the attempt following attempt, for inspection.
func (h *Handler) Backoff(attempt int) time.Duration {
	return h.backoff(h.cfg, attempt)
}

// Status returns the breaker snapshot of service. Unknown services are closed.
func (h *Handler) Status(service string) BreakerStatus {
	h.mu.Lock()
	b, ok := h.breakers[service]
	h.mu.Unlock()
	if !ok {
		return BreakerStatus{State: StateClosed}
	}
	return b.status()
}

// Statuses returns a snapshot of every known breaker.
func (h *Handler) Statuses() map[string]BreakerStatus {
	h.mu.Lock()
	names := make([]string, 0, len(h.breakers))
	for name := range h.breakers {
		names = append(names, name)
	}
	h.mu.Unlock()

	out := make(map[string]BreakerStatus, len(names))
	for _, name := range names {
		out[name] = h.Status(name)
	}
	return out
}

// ResetBreaker closes the breaker of service.
func (h *Handler) ResetBreaker(service string) {
	h.mu.Lock()
	delete(h.breakers, service)
	h.mu.Unlock()
	h.metrics.BreakerState(service, metrics.BreakerClosed)
}

// ResetAll forgets every breaker.
func (h *Handler) ResetAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name := range h.breakers {
		h.metrics.BreakerState(name, metrics.BreakerClosed)
	}
	h.breakers = make(map[string]*breaker)
}
