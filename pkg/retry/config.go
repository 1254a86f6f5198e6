package retry

import (
	"os"
	"strconv"
	"time"
)

// Environment variables read by ConfigFromEnv. Delays are in milliseconds.
const (
	EnvMaxAttempts  = "RETRY_MAX_ATTEMPTS"
	EnvInitialDelay = "RETRY_INITIAL_DELAY_MS"
	EnvMaxDelay     = "RETRY_MAX_DELAY_MS"
)

// Config holds the backoff policy of a retried call.
type Config struct {
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the exponential delay before jitter is applied.
	MaxDelay time.Duration
	// Multiplier is applied to the delay on each retry.
	Multiplier float64
	// JitterFactor scales the symmetric jitter: delay * JitterFactor * (rand - 0.5).
	JitterFactor float64
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.1,
	}
}

// ConfigFromEnv overlays DefaultConfig with the RETRY_* environment variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if n, ok := envInt(EnvMaxAttempts); ok {
		cfg.MaxAttempts = n
	}
	if n, ok := envInt(EnvInitialDelay); ok {
		cfg.InitialDelay = time.Duration(n) * time.Millisecond
	}
	if n, ok := envInt(EnvMaxDelay); ok {
		cfg.MaxDelay = time.Duration(n) * time.Millisecond
	}
	return cfg
}

func envInt(key string) (int, bool) {
	val := os.Getenv(key)
	if val == "" {
		return 0, false
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// merge fills the zero fields of c from base.
func (c Config) merge(base Config) Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = base.MaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = base.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = base.MaxDelay
	}
	if c.Multiplier <= 0 {
		c.Multiplier = base.Multiplier
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = base.JitterFactor
	}
	return c
}

// BreakerConfig configures the per-service circuit breakers.
type BreakerConfig struct {
	// FailureThreshold is the number of failed calls that opens the circuit.
	FailureThreshold int
	// ResetTimeout is how long after the last failure a trial call is let through.
	ResetTimeout time.Duration
}

// DefaultBreakerConfig opens after 5 failures and probes after 60s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
	}
}
