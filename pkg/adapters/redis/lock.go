// Package redis serializes conversation turns across replicas with a Redis lock.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/ports"
)

// DefaultPrefix namespaces lock keys.
const DefaultPrefix = "waypoint:"

const defaultPollInterval = 50 * time.Millisecond

// ErrLockAcquire is returned when Redis refuses the lock request.
var ErrLockAcquire = errors.New("failed to acquire distributed lock")

// releaseScript deletes the key only while it still holds our token.
var releaseScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Locker implements ports.TurnLocker using SET NX PX.
type Locker struct {
	client backend.UniversalClient
	prefix string
	poll   time.Duration
	logger *slog.Logger
}

var _ ports.TurnLocker = (*Locker)(nil)

// Option configures the Locker.
type Option func(*Locker)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(p string) Option {
	return func(l *Locker) {
		l.prefix = p
	}
}

// WithPollInterval sets how often a blocked Lock retries.
func WithPollInterval(d time.Duration) Option {
	return func(l *Locker) {
		if d > 0 {
			l.poll = d
		}
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Locker) {
		l.logger = logger
	}
}

// NewLocker creates a Locker on top of an existing client.
func NewLocker(client backend.UniversalClient, opts ...Option) *Locker {
	l := &Locker{
		client: client,
		prefix: DefaultPrefix,
		poll:   defaultPollInterval,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr string, opts ...Option) (*Locker, error) {
	client := backend.NewClient(&backend.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewLocker(client, opts...), nil
}

// Close closes the underlying client.
func (l *Locker) Close() error {
	return l.client.Close()
}

// Key returns the Redis key guarding session key.
func (l *Locker) Key(key string) string {
	return l.prefix + "lock:" + key
}

// Lock blocks until the lock for key is held or ctx is done.
// The lock expires after ttl if the UnlockFunc is never called.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	lockKey := l.Key(key)
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, err)
		}
		if ok {
			l.logger.Debug("turn lock acquired", "session_id", key, "attempts", attempt)
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
