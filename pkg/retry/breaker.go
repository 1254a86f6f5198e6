package retry

import (
	"sync"
	"time"

	"github.com/aretw0/waypoint/pkg/metrics"
)

// State of a circuit breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

func (s State) gauge() int {
	switch s {
	case StateOpen:
		return metrics.BreakerOpen
	case StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}

// BreakerStatus is a snapshot of one breaker.
type BreakerStatus struct {
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"lastFailure,omitempty"`
}

type breaker struct {
	mu          sync.Mutex
	cfg         BreakerConfig
	state       State
	failures    int
	lastFailure time.Time
	trial       bool // a half-open trial call is in flight
}

func newBreaker(cfg BreakerConfig) *breaker {
	return &breaker{cfg: cfg, state: StateClosed}
}

// allow reports whether a call may proceed, moving open to half-open once the
// reset timeout has elapsed. Only one trial call is admitted while half-open.
func (b *breaker) allow(now time.Time) (bool, State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if now.Sub(b.lastFailure) < b.cfg.ResetTimeout {
			return false, b.state
		}
		b.state = StateHalfOpen
		b.trial = true
		return true, b.state
	case StateHalfOpen:
		if b.trial {
			return false, b.state
		}
		b.trial = true
		return true, b.state
	default:
		return true, b.state
	}
}

func (b *breaker) success() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.trial = false
	return b.state
}

func (b *breaker) failure(now time.Time) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = now
	b.trial = false
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
	}
	return b.state
}

// abandon releases a trial slot without judging the service, used when the
// caller gave up before the call finished.
func (b *breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}

func (b *breaker) status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{State: b.state, Failures: b.failures, LastFailure: b.lastFailure}
}
