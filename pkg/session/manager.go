package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/metrics"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed turn lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates session access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused turn locks.
type Manager struct {
	mu       sync.Mutex // guards sessions and every context they hold
	sessions map[string]*domain.ConversationContext

	lockMu sync.Mutex            // Global lock for the map
	locks  map[string]*lockEntry // Map of active locks

	locker  ports.TurnLocker // Optional distributed locker
	lockTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger // Logger for internal events (like deferred errors)
	metrics *metrics.Metrics
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed turn locking.
func WithLocker(locker ports.TurnLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed turn locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithClock overrides time.Now for timestamps and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithMetrics reports cache lookups to m.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// NewManager creates a new Session Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*domain.ConversationContext),
		locks:    make(map[string]*lockEntry),
		lockTTL:  DefaultLockTTL,
		now:      time.Now,
		logger:   logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time {
	return m.now()
}

// Get returns the context of an existing session.
func (m *Manager) Get(sessionID string) (*domain.ConversationContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return c, nil
}

// GetOrCreate returns the session's context, creating it on first use.
// An empty sessionID gets a fresh random id. A non-empty language updates the
// language of an existing session.
func (m *Manager) GetOrCreate(sessionID, language string) *domain.ConversationContext {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.sessions[sessionID]; ok {
		if language != "" {
			c.Language = language
		}
		return c
	}

	c := domain.NewConversationContext(sessionID, language, m.now())
	m.sessions[sessionID] = c
	m.logger.Debug("Session created", "session_id", sessionID)
	return c
}

// Update stores c under its SessionID and stamps LastUpdated.
func (m *Manager) Update(c *domain.ConversationContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.LastUpdated = m.now()
	m.sessions[c.SessionID] = c
}

// Clear removes one session. It reports whether the session existed.
func (m *Manager) Clear(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	return ok
}

// ClearAll removes every session.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*domain.ConversationContext)
}

// List returns the ids of all sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a deep copy of a session's context, safe to read while a turn
// is mutating the original.
func (m *Manager) Snapshot(sessionID string) (*domain.ConversationContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot session: %w", err)
	}
	var out domain.ConversationContext
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to snapshot session: %w", err)
	}
	return &out, nil
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// activeLocks reports the number of live lock entries.
func (m *Manager) activeLocks() int {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	return len(m.locks)
}

// WithTurn executes fn while holding the turn lock of the session.
func (m *Manager) WithTurn(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	// Distributed Locking
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The turn's context may already be canceled; the lock must still go.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
