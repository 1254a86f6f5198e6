package ratelimit

import (
	"os"
	"strconv"
	"time"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvUserCapacity     = "RATE_LIMIT_USER_CAPACITY"
	EnvUserRefillRate   = "RATE_LIMIT_USER_REFILL_RATE"
	EnvGlobalCapacity   = "RATE_LIMIT_GLOBAL_CAPACITY"
	EnvGlobalRefillRate = "RATE_LIMIT_GLOBAL_REFILL_RATE"
)

// Config sizes the two buckets. Refill rates are tokens per RefillInterval.
type Config struct {
	UserCapacity     int
	UserRefillRate   int
	GlobalCapacity   int
	GlobalRefillRate int
	RefillInterval   time.Duration
}

// DefaultConfig allows 20 requests per user and 200 overall, refilled per minute.
func DefaultConfig() Config {
	return Config{
		UserCapacity:     20,
		UserRefillRate:   10,
		GlobalCapacity:   200,
		GlobalRefillRate: 100,
		RefillInterval:   time.Minute,
	}
}

// ConfigFromEnv overlays DefaultConfig with the RATE_LIMIT_* environment variables.
// Missing or invalid values keep their defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.UserCapacity = envInt(EnvUserCapacity, cfg.UserCapacity)
	cfg.UserRefillRate = envInt(EnvUserRefillRate, cfg.UserRefillRate)
	cfg.GlobalCapacity = envInt(EnvGlobalCapacity, cfg.GlobalCapacity)
	cfg.GlobalRefillRate = envInt(EnvGlobalRefillRate, cfg.GlobalRefillRate)
	return cfg
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.UserCapacity <= 0 {
		c.UserCapacity = d.UserCapacity
	}
	if c.UserRefillRate < 0 {
		c.UserRefillRate = d.UserRefillRate
	}
	if c.GlobalCapacity <= 0 {
		c.GlobalCapacity = d.GlobalCapacity
	}
	if c.GlobalRefillRate < 0 {
		c.GlobalRefillRate = d.GlobalRefillRate
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = d.RefillInterval
	}
	return c
}
