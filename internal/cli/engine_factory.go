package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/waypoint"
	"github.com/aretw0/waypoint/internal/config"
	"github.com/aretw0/waypoint/pkg/adapters/gemini"
	"github.com/aretw0/waypoint/pkg/adapters/httptool"
	"github.com/aretw0/waypoint/pkg/adapters/mcp"
	"github.com/aretw0/waypoint/pkg/adapters/openai"
	"github.com/aretw0/waypoint/pkg/adapters/redis"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/prompts"
)

// NewEngine builds an Engine from cfg. Long-lived resources (transport clients,
// redis connection, prompt watcher) are released by Engine.Close.
func NewEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*waypoint.Engine, error) {
	opts := []waypoint.Option{
		waypoint.WithLogger(logger),
		waypoint.WithDecider(cfg.Decider()),
		waypoint.WithRetryConfig(cfg.RetryPolicy()),
		waypoint.WithRateLimit(cfg.RateLimiter()),
		waypoint.WithCallTimeout(cfg.Tools.CallTimeout),
		waypoint.WithStreamTimeout(cfg.Server.StreamTimeout),
	}
	var closers []func() error
	fail := func(err error) (*waypoint.Engine, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	// 1. Tools
	caller, closer, err := newToolCaller(ctx, cfg.Tools, logger)
	if err != nil {
		return fail(err)
	}
	if caller != nil {
		opts = append(opts, waypoint.WithToolCaller(caller))
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	// 2. Language model
	gen, err := newGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		return fail(err)
	}
	if gen != nil {
		opts = append(opts, waypoint.WithGenerator(gen))
	}

	// 3. Prompts
	if cfg.Prompts.File != "" {
		src, err := prompts.NewFileSource(cfg.Prompts.File, prompts.WithLogger(logger))
		if err != nil {
			return fail(fmt.Errorf("error loading prompts: %w", err))
		}
		watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		go func() {
			if err := src.Watch(watchCtx); err != nil {
				logger.Warn("Prompt watcher stopped", "path", cfg.Prompts.File, "err", err)
			}
		}()
		opts = append(opts, waypoint.WithPrompts(src))
		closers = append(closers, func() error {
			cancel()
			return nil
		})
	}

	// 4. Distributed turn lock
	if cfg.Redis.Addr != "" {
		locker, err := redis.Dial(ctx, cfg.Redis.Addr, redis.WithLogger(logger))
		if err != nil {
			return fail(err)
		}
		opts = append(opts, waypoint.WithLocker(locker, cfg.Redis.LockTTL))
		closers = append(closers, locker.Close)
		logger.Info("Distributed turn lock enabled", "addr", cfg.Redis.Addr)
	}

	for _, c := range closers {
		opts = append(opts, waypoint.WithCloser(c))
	}
	eng, err := waypoint.New(opts...)
	if err != nil {
		return fail(fmt.Errorf("error initializing engine: %w", err))
	}
	return eng, nil
}

// newToolCaller returns a nil caller for the in-process demo tools.
func newToolCaller(ctx context.Context, cfg config.ToolsConfig, logger *slog.Logger) (ports.ToolCaller, func() error, error) {
	switch cfg.Transport {
	case config.TransportDemo:
		logger.Info("Using in-process demo tools")
		return nil, nil, nil
	case config.TransportHTTP:
		logger.Info("Using HTTP tool transport", "url", cfg.URL)
		return httptool.New(cfg.URL, httptool.WithLogger(logger)), nil, nil
	case config.TransportMCP:
		kind := MCPKind(cfg.URL)
		caller, err := mcp.Dial(ctx, kind, cfg.URL, nil,
			mcp.WithClientInfo("waypoint", waypoint.Version),
			mcp.WithCallerLogger(logger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("error connecting to tool server: %w", err)
		}
		logger.Info("Using MCP tool transport", "url", cfg.URL, "kind", kind)
		return caller, caller.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown tools transport %q", cfg.Transport)
	}
}

// MCPKind infers the MCP transport from a target: http(s) URLs ending in /sse use SSE,
// other URLs streamable HTTP, anything else is a stdio command line.
func MCPKind(target string) string {
	t := strings.TrimSpace(target)
	if !strings.HasPrefix(t, "http://") && !strings.HasPrefix(t, "https://") {
		return mcp.TransportStdio
	}
	if strings.HasSuffix(strings.TrimRight(t, "/"), "/sse") {
		return mcp.TransportSSE
	}
	return mcp.TransportHTTP
}

func newGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (ports.Generator, error) {
	switch cfg.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderGemini:
		opts := []gemini.Option{gemini.WithLogger(logger)}
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		g, err := gemini.New(ctx, cfg.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Gemini model", "model", g.Model())
		return g, nil
	case config.ProviderOpenAI:
		opts := []openai.Option{openai.WithLogger(logger)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		g, err := openai.New(cfg.APIKey, opts...)
		if err != nil {
			return nil, err
		}
		logger.Info("Using OpenAI model", "model", g.Model())
		return g, nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
