package retry_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newHandler(t *testing.T) (*retry.Handler, *clock, *sleeper) {
	t.Helper()
	c := &clock{now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	s := &sleeper{}
	h := retry.New(retry.DefaultConfig(),
		retry.WithClock(c.Now),
		retry.WithSleep(s.Sleep),
		retry.WithRand(func() float64 { return 0.5 }),
	)
	return h, c, s
}

func status(code int) error {
	return &domain.RemoteError{Status: code, Message: fmt.Sprintf("upstream returned %d", code)}
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	h, _, s := newHandler(t)
	calls := 0

	out := retry.Do(context.Background(), h, "findTrips", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", status(503)
		}
		return "ok", nil
	}, nil)

	assert.True(t, out.Success)
	assert.Equal(t, "ok", out.Data)
	assert.Equal(t, 3, out.Attempts)
	assert.NoError(t, out.Err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, s.delays)
}

func TestDo_PermanentErrorIsNotRetried(t *testing.T) {
	h, _, s := newHandler(t)
	calls := 0

	out := h.Do(context.Background(), "findTrips", func(context.Context) (any, error) {
		calls++
		return nil, status(400)
	})

	assert.False(t, out.Success)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.delays)

	var remote *domain.RemoteError
	require.ErrorAs(t, out.Err, &remote)
	assert.Equal(t, 400, remote.Status)
}

func TestDo_ExhaustedKeepsLastError(t *testing.T) {
	h, _, _ := newHandler(t)

	out := retry.Do(context.Background(), h, "getWeather", func(context.Context) (int, error) {
		return 0, errors.New("connection reset by peer")
	}, &retry.Config{MaxAttempts: 2})

	assert.Equal(t, 2, out.Attempts)
	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "connection reset by peer")
	assert.Contains(t, out.Err.Error(), "after 2 attempts")
}

func TestDo_CircuitOpensAfterThreshold(t *testing.T) {
	h, _, _ := newHandler(t)
	calls := 0
	fail := func(context.Context) (any, error) {
		calls++
		return nil, status(400)
	}

	for i := 0; i < 5; i++ {
		h.Do(context.Background(), "getPlaceEvents", fail)
	}
	st := h.Status("getPlaceEvents")
	assert.Equal(t, retry.StateOpen, st.State)
	assert.Equal(t, 5, st.Failures)

	out := h.Do(context.Background(), "getPlaceEvents", fail)
	assert.Equal(t, 5, calls, "open circuit must not invoke fn")
	assert.Equal(t, 0, out.Attempts)
	assert.ErrorIs(t, out.Err, domain.ErrCircuitOpen)
	var open *retry.CircuitOpenError
	require.ErrorAs(t, out.Err, &open)
	assert.Equal(t, "getPlaceEvents", open.Service)

	// Other services are isolated.
	assert.Equal(t, retry.StateClosed, h.Status("findTrips").State)
	assert.True(t, h.Do(context.Background(), "findTrips", func(context.Context) (any, error) { return 1, nil }).Success)
}

func TestDo_HalfOpenAllowsSingleTrial(t *testing.T) {
	h, c, _ := newHandler(t)
	fail := func(context.Context) (any, error) { return nil, status(400) }
	for i := 0; i < 5; i++ {
		h.Do(context.Background(), "svc", fail)
	}

	c.Advance(61 * time.Second)

	var nested retry.Outcome[any]
	out := h.Do(context.Background(), "svc", func(ctx context.Context) (any, error) {
		// A second call while the trial is in flight is rejected.
		nested = h.Do(ctx, "svc", func(context.Context) (any, error) { return "nested", nil })
		return "trial", nil
	})

	assert.True(t, out.Success)
	assert.ErrorIs(t, nested.Err, domain.ErrCircuitOpen)
	st := h.Status("svc")
	assert.Equal(t, retry.StateClosed, st.State)
	assert.Equal(t, 0, st.Failures)
}

func TestDo_HalfOpenFailureReopens(t *testing.T) {
	h, c, _ := newHandler(t)
	calls := 0
	fail := func(context.Context) (any, error) {
		calls++
		return nil, status(400)
	}
	for i := 0; i < 5; i++ {
		h.Do(context.Background(), "svc", fail)
	}

	c.Advance(30 * time.Second)
	h.Do(context.Background(), "svc", fail)
	assert.Equal(t, 5, calls, "still open before the reset timeout")

	c.Advance(31 * time.Second)
	h.Do(context.Background(), "svc", fail)
	assert.Equal(t, 6, calls)
	assert.Equal(t, retry.StateOpen, h.Status("svc").State)

	h.Do(context.Background(), "svc", fail)
	assert.Equal(t, 6, calls, "reopened circuit fails fast again")
}

func TestDo_CancellationDoesNotTripBreaker(t *testing.T) {
	h, _, _ := newHandler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 10; i++ {
		out := h.Do(ctx, "svc", func(ctx context.Context) (any, error) { return nil, ctx.Err() })
		assert.ErrorIs(t, out.Err, context.Canceled)
	}
	assert.Equal(t, retry.StateClosed, h.Status("svc").State)
	assert.Equal(t, 0, h.Status("svc").Failures)
}

func TestReset(t *testing.T) {
	h, _, _ := newHandler(t)
	fail := func(context.Context) (any, error) { return nil, status(400) }
	for i := 0; i < 5; i++ {
		h.Do(context.Background(), "a", fail)
		h.Do(context.Background(), "b", fail)
	}
	require.Len(t, h.Statuses(), 2)

	h.ResetBreaker("a")
	assert.Equal(t, retry.StateClosed, h.Status("a").State)
	assert.Equal(t, retry.StateOpen, h.Status("b").State)

	h.ResetAll()
	assert.Empty(t, h.Statuses())
}

func TestBackoff(t *testing.T) {
	h := retry.New(retry.Config{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2, JitterFactor: 0.2},
		retry.WithRand(func() float64 { return 0.5 }))

	assert.Equal(t, time.Second, h.Backoff(1))
	assert.Equal(t, 2*time.Second, h.Backoff(2))
	assert.Equal(t, 8*time.Second, h.Backoff(4))
	assert.Equal(t, 10*time.Second, h.Backoff(5))

	high := retry.New(retry.Config{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2, JitterFactor: 0.2},
		retry.WithRand(func() float64 { return 1 }))
	assert.Equal(t, 1100*time.Millisecond, high.Backoff(1))

	low := retry.New(retry.Config{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2, JitterFactor: 0.2},
		retry.WithRand(func() float64 { return 0 }))
	assert.Equal(t, 900*time.Millisecond, low.Backoff(1))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"code ECONNRESET", &domain.RemoteError{Code: "ECONNRESET", Message: "reset"}, true},
		{"code rate limit", &domain.RemoteError{Code: "RATE_LIMIT_EXCEEDED", Message: "slow down"}, true},
		{"status 429", status(429), true},
		{"status 502", status(502), true},
		{"status 504", status(504), true},
		{"status 400", status(400), false},
		{"status 404 with network word", &domain.RemoteError{Status: 404, Message: "network not found"}, false},
		{"message timeout", errors.New("request Timeout"), true},
		{"message rate limit", errors.New("Rate limit hit"), true},
		{"plain", errors.New("invalid station"), false},
		{"errno", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"net timeout", timeoutErr{}, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "tools.local"}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"circuit open", &retry.CircuitOpenError{Service: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.IsRetryable(tt.err))
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(retry.EnvMaxAttempts, "5")
	t.Setenv(retry.EnvInitialDelay, "250")
	t.Setenv(retry.EnvMaxDelay, "-1")

	cfg := retry.ConfigFromEnv()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.MaxDelay)
}
