// Package config loads the Waypoint runtime configuration from defaults, an optional
// YAML file and WAYPOINT_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aretw0/waypoint/pkg/orchestrator"
	"github.com/aretw0/waypoint/pkg/ratelimit"
	"github.com/aretw0/waypoint/pkg/retry"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "WAYPOINT"

// Tool transports.
const (
	TransportMCP  = "mcp"
	TransportHTTP = "http"
	TransportDemo = "demo"
)

// Language model providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Config is the full runtime configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	RateLimit     RateLimitConfig     `mapstructure:"ratelimit"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Tools         ToolsConfig         `mapstructure:"tools"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Prompts       PromptsConfig       `mapstructure:"prompts"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	MaxInputSize  int           `mapstructure:"max_input_size"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout"`
}

// RateLimitConfig refill rates are tokens per minute.
type RateLimitConfig struct {
	UserCapacity   int `mapstructure:"user_capacity"`
	UserRefill     int `mapstructure:"user_refill"`
	GlobalCapacity int `mapstructure:"global_capacity"`
	GlobalRefill   int `mapstructure:"global_refill"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

type OrchestrationConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Threshold float64 `mapstructure:"threshold"`
}

type ToolsConfig struct {
	Transport   string        `mapstructure:"transport"`
	URL         string        `mapstructure:"url"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type LLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
	BaseURL  string `mapstructure:"base_url"`
}

type PromptsConfig struct {
	File string `mapstructure:"file"`
}

// RedisConfig enables the distributed turn lock when Addr is set.
type RedisConfig struct {
	Addr    string        `mapstructure:"addr"`
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads path (optional) and the environment. An empty path only uses defaults
// and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindFallbacks(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	rl := ratelimit.DefaultConfig()
	rt := retry.DefaultConfig()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_input_size", 8192)
	v.SetDefault("server.stream_timeout", orchestrator.DefaultStreamTimeout)

	v.SetDefault("ratelimit.user_capacity", rl.UserCapacity)
	v.SetDefault("ratelimit.user_refill", rl.UserRefillRate)
	v.SetDefault("ratelimit.global_capacity", rl.GlobalCapacity)
	v.SetDefault("ratelimit.global_refill", rl.GlobalRefillRate)

	v.SetDefault("retry.max_attempts", rt.MaxAttempts)
	v.SetDefault("retry.initial_delay", rt.InitialDelay)
	v.SetDefault("retry.max_delay", rt.MaxDelay)

	v.SetDefault("orchestration.enabled", true)
	v.SetDefault("orchestration.threshold", orchestrator.DefaultThreshold)

	v.SetDefault("tools.transport", TransportDemo)
	v.SetDefault("tools.url", "")
	v.SetDefault("tools.call_timeout", 15*time.Second)

	v.SetDefault("llm.provider", ProviderNone)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")

	v.SetDefault("prompts.file", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.lock_ttl", 30*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// bindFallbacks lets the unprefixed variables of the deployment environment fill in
// for their WAYPOINT_* counterparts.
func bindFallbacks(v *viper.Viper) error {
	binds := map[string][]string{
		"ratelimit.user_capacity":   {"WAYPOINT_RATELIMIT_USER_CAPACITY", ratelimit.EnvUserCapacity},
		"ratelimit.user_refill":     {"WAYPOINT_RATELIMIT_USER_REFILL", ratelimit.EnvUserRefillRate},
		"ratelimit.global_capacity": {"WAYPOINT_RATELIMIT_GLOBAL_CAPACITY", ratelimit.EnvGlobalCapacity},
		"ratelimit.global_refill":   {"WAYPOINT_RATELIMIT_GLOBAL_REFILL", ratelimit.EnvGlobalRefillRate},
		"retry.max_attempts":        {"WAYPOINT_RETRY_MAX_ATTEMPTS", retry.EnvMaxAttempts},
		"server.port":               {"WAYPOINT_SERVER_PORT", "PORT"},
		"llm.api_key":               {"WAYPOINT_LLM_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	switch c.Tools.Transport {
	case TransportMCP, TransportHTTP:
		if c.Tools.URL == "" {
			return fmt.Errorf("tools.url is required for transport %q", c.Tools.Transport)
		}
	case TransportDemo:
	default:
		return fmt.Errorf("unknown tools.transport %q", c.Tools.Transport)
	}
	switch c.LLM.Provider {
	case ProviderNone:
	case ProviderGemini, ProviderOpenAI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.Orchestration.Threshold < 0 || c.Orchestration.Threshold > 1 {
		return fmt.Errorf("orchestration.threshold must be within [0,1], got %v", c.Orchestration.Threshold)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// RateLimiter returns the limiter configuration.
func (c *Config) RateLimiter() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.UserCapacity = c.RateLimit.UserCapacity
	cfg.UserRefillRate = c.RateLimit.UserRefill
	cfg.GlobalCapacity = c.RateLimit.GlobalCapacity
	cfg.GlobalRefillRate = c.RateLimit.GlobalRefill
	return cfg
}

// RetryPolicy returns the retry configuration.
func (c *Config) RetryPolicy() retry.Config {
	cfg := retry.DefaultConfig()
	if c.Retry.MaxAttempts > 0 {
		cfg.MaxAttempts = c.Retry.MaxAttempts
	}
	if c.Retry.InitialDelay > 0 {
		cfg.InitialDelay = c.Retry.InitialDelay
	}
	if c.Retry.MaxDelay > 0 {
		cfg.MaxDelay = c.Retry.MaxDelay
	}
	return cfg
}

// Decider returns the orchestration decider.
func (c *Config) Decider() orchestrator.Decider {
	return orchestrator.Decider{Enabled: c.Orchestration.Enabled, Threshold: c.Orchestration.Threshold}
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
