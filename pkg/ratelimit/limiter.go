// Package ratelimit implements token-bucket admission control with a global
// bucket shared by every caller and one bucket per user.
package ratelimit

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/metrics"
)

// Decision is the outcome of Check.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
	// RetryAfter is the number of whole seconds until a token is available. Zero when allowed.
	RetryAfter int
}

// Stats are the process-wide request counters.
type Stats struct {
	TotalRequests     int64
	ThrottledRequests int64
}

// Limiter owns the global bucket and the per-user buckets.
type Limiter struct {
	cfg     Config
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	global *bucket
	users  map[string]*bucket
	stats  Stats
}

// Option configures the Limiter.
type Option func(*Limiter)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithLogger configures a logger for throttling events.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithMetrics reports decisions to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

// New creates a Limiter. Zero fields of cfg take their DefaultConfig values.
func New(cfg Config, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		logger: logging.NewNop(),
		users:  make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.global = l.newGlobal()
	return l
}

func (l *Limiter) newGlobal() *bucket {
	return newBucket(l.cfg.GlobalCapacity, l.cfg.GlobalRefillRate, l.cfg.RefillInterval, l.now())
}

func (l *Limiter) userBucket(userID string, now time.Time) (*bucket, *bucket) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.users[userID]
	if !ok {
		b = newBucket(l.cfg.UserCapacity, l.cfg.UserRefillRate, l.cfg.RefillInterval, now)
		l.users[userID] = b
	}
	l.stats.TotalRequests++
	return l.global, b
}

// Check admits or throttles one request of userID.
// The global bucket is consulted first; a request the user bucket rejects gets its
// global token back.
func (l *Limiter) Check(userID string) Decision {
	now := l.now()
	global, user := l.userBucket(userID, now)

	// 1. Global admission
	if !global.take(now) {
		l.throttled("global", userID)
		return l.deny(global, l.cfg.GlobalCapacity, now)
	}

	// 2. Per-user admission, returning the global token on failure
	if !user.take(now) {
		global.giveBack()
		l.throttled("user", userID)
		return l.deny(user, l.cfg.UserCapacity, now)
	}

	l.metrics.RateLimit("user", true)
	remaining, resetAt := user.snapshot()
	return Decision{
		Allowed:   true,
		Remaining: remaining,
		Limit:     l.cfg.UserCapacity,
		ResetAt:   resetAt,
	}
}

func (l *Limiter) throttled(scope, userID string) {
	l.mu.Lock()
	l.stats.ThrottledRequests++
	l.mu.Unlock()

	l.metrics.RateLimit(scope, false)
	l.logger.Debug("Request throttled", "scope", scope, "user_id", userID)
}

func (l *Limiter) deny(b *bucket, limit int, now time.Time) Decision {
	remaining, resetAt := b.snapshot()
	wait := resetAt.Sub(now)
	retryAfter := int(math.Ceil(wait.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{
		Allowed:    false,
		Remaining:  max(remaining, 0),
		Limit:      limit,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}

// Metrics returns a copy of the request counters.
func (l *Limiter) Metrics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// ResetMetrics zeroes the request counters without touching any bucket.
func (l *Limiter) ResetMetrics() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stats = Stats{}
}

// Clear drops every user bucket and refills the global bucket.
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = make(map[string]*bucket)
	l.global = l.newGlobal()
}

// Prune forgets user buckets that are full again and were not used for idle.
// It returns the number of buckets removed.
func (l *Limiter) Prune(idle time.Duration) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, b := range l.users {
		since, full := b.idleSince(now)
		if full && since >= idle {
			delete(l.users, id)
			removed++
		}
	}
	return removed
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}
