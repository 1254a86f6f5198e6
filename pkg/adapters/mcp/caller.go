// Package mcp connects Waypoint to the Model Context Protocol in both
// directions: Caller invokes the remote travel tools over an MCP client, and
// Server exposes the orchestrator as MCP tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Transports accepted by Dial.
const (
	TransportHTTP  = "http"
	TransportSSE   = "sse"
	TransportStdio = "stdio"
)

// Caller is a ports.ToolCaller backed by an MCP client.
type Caller struct {
	client  *client.Client
	name    string
	version string
	logger  *slog.Logger

	initOnce sync.Once
	initErr  error
}

// CallerOption configures the Caller.
type CallerOption func(*Caller)

// WithClientInfo sets the implementation name and version sent on initialize.
func WithClientInfo(name, version string) CallerOption {
	return func(c *Caller) {
		c.name = name
		c.version = version
	}
}

// WithCallerLogger configures a logger.
func WithCallerLogger(logger *slog.Logger) CallerOption {
	return func(c *Caller) {
		c.logger = logger
	}
}

// NewCaller wraps a started client. The session is initialized on first use.
func NewCaller(c *client.Client, opts ...CallerOption) *Caller {
	caller := &Caller{
		client:  c,
		name:    "waypoint",
		version: "dev",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(caller)
	}
	return caller
}

// Dial creates a client for target over kind and starts its transport.
// For stdio, target is the command line of the tool server.
func Dial(ctx context.Context, kind, target string, headers map[string]string, opts ...CallerOption) (*Caller, error) {
	var (
		c   *client.Client
		err error
	)
	switch kind {
	case TransportHTTP, "":
		var hopts []transport.StreamableHTTPCOption
		if len(headers) > 0 {
			hopts = append(hopts, transport.WithHTTPHeaders(headers))
		}
		c, err = client.NewStreamableHttpClient(target, hopts...)
	case TransportSSE:
		var sopts []transport.ClientOption
		if len(headers) > 0 {
			sopts = append(sopts, transport.WithHeaders(headers))
		}
		c, err = client.NewSSEMCPClient(target, sopts...)
	case TransportStdio:
		fields := strings.Fields(target)
		if len(fields) == 0 {
			return nil, fmt.Errorf("stdio transport needs a command")
		}
		c, err = client.NewStdioMCPClient(fields[0], nil, fields[1:]...)
	default:
		return nil, fmt.Errorf("unsupported MCP transport: %s", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", kind, err)
	}

	if kind != TransportStdio {
		if err := c.Start(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to start %s transport: %w", kind, err)
		}
	}
	return NewCaller(c, opts...), nil
}

func (c *Caller) initialize(ctx context.Context) error {
	c.initOnce.Do(func() {
		req := mcp.InitializeRequest{}
		req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		req.Params.ClientInfo = mcp.Implementation{Name: c.name, Version: c.version}
		req.Params.Capabilities = mcp.ClientCapabilities{}

		resp, err := c.client.Initialize(ctx, req)
		if err != nil {
			c.initErr = fmt.Errorf("failed to initialize: %w", err)
			return
		}
		c.logger.Debug("MCP session initialized", "server", resp.ServerInfo.Name, "protocol", resp.ProtocolVersion)
	})
	return c.initErr
}

// Tools lists the tool names offered by the server.
func (c *Caller) Tools(ctx context.Context) ([]string, error) {
	if err := c.initialize(ctx); err != nil {
		return nil, err
	}
	res, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

// CallTool invokes name and returns the result as a {content:[{text}]}
// envelope. Tool-level errors become a *domain.RemoteError.
func (c *Caller) CallTool(ctx context.Context, name string, params map[string]any) (any, error) {
	if err := c.initialize(ctx); err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = params

	res, err := c.client.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to call tool %s: %w", name, err)
	}

	texts := textsOf(res.Content)
	if res.IsError {
		msg := strings.Join(texts, "\n")
		if msg == "" {
			msg = "tool " + name + " failed"
		}
		return nil, &domain.RemoteError{Message: msg}
	}
	if len(texts) == 0 && res.StructuredContent != nil {
		return res.StructuredContent, nil
	}

	content := make([]any, 0, len(texts))
	for _, t := range texts {
		content = append(content, map[string]any{"type": "text", "text": t})
	}
	return map[string]any{"content": content}, nil
}

// Close closes the underlying client.
func (c *Caller) Close() error {
	return c.client.Close()
}

func textsOf(content []mcp.Content) []string {
	var out []string
	for _, item := range content {
		switch tc := item.(type) {
		case mcp.TextContent:
			out = append(out, tc.Text)
		case *mcp.TextContent:
			out = append(out, tc.Text)
		}
	}
	return out
}
