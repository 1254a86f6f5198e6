package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/waypoint/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 20, cfg.RateLimit.UserCapacity)
	assert.Equal(t, 10, cfg.RateLimit.UserRefill)
	assert.Equal(t, 200, cfg.RateLimit.GlobalCapacity)
	assert.Equal(t, 100, cfg.RateLimit.GlobalRefill)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
	assert.True(t, cfg.Orchestration.Enabled)
	assert.InDelta(t, 0.7, cfg.Orchestration.Threshold, 1e-9)
	assert.Equal(t, config.TransportDemo, cfg.Tools.Transport)
	assert.Equal(t, config.ProviderNone, cfg.LLM.Provider)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("WAYPOINT_SERVER_PORT", "9090")
	t.Setenv("WAYPOINT_RATELIMIT_USER_CAPACITY", "5")
	t.Setenv("WAYPOINT_RETRY_INITIAL_DELAY", "250ms")
	t.Setenv("WAYPOINT_ORCHESTRATION_ENABLED", "false")
	t.Setenv("WAYPOINT_TOOLS_TRANSPORT", "http")
	t.Setenv("WAYPOINT_TOOLS_URL", "http://tools.local")
	t.Setenv("WAYPOINT_REDIS_ADDR", "localhost:6379")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5, cfg.RateLimiter().UserCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryPolicy().InitialDelay)
	assert.False(t, cfg.Decider().Enabled)
	assert.Equal(t, "http://tools.local", cfg.Tools.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_UnprefixedFallbacks(t *testing.T) {
	t.Setenv("RATE_LIMIT_GLOBAL_CAPACITY", "42")
	t.Setenv("RETRY_MAX_ATTEMPTS", "7")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.RateLimit.GlobalCapacity)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)

	t.Setenv("WAYPOINT_RETRY_MAX_ATTEMPTS", "2")
	cfg, err = config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts, "prefixed variable wins")
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "waypoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
llm:
  provider: gemini
  api_key: secret
  model: gemini-test
orchestration:
  threshold: 0.5
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, config.ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-test", cfg.LLM.Model)
	assert.InDelta(t, 0.5, cfg.Decider().Threshold, 1e-9)

	t.Setenv("WAYPOINT_SERVER_PORT", "7001")
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port, "environment overrides file")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"tools url missing", map[string]string{"WAYPOINT_TOOLS_TRANSPORT": "mcp"}},
		{"unknown transport", map[string]string{"WAYPOINT_TOOLS_TRANSPORT": "grpc"}},
		{"api key missing", map[string]string{"WAYPOINT_LLM_PROVIDER": "openai"}},
		{"unknown provider", map[string]string{"WAYPOINT_LLM_PROVIDER": "llama"}},
		{"threshold range", map[string]string{"WAYPOINT_ORCHESTRATION_THRESHOLD": "1.5"}},
		{"port range", map[string]string{"WAYPOINT_SERVER_PORT": "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("WAYPOINT_LLM_API_KEY", "")
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("OPENAI_API_KEY", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
