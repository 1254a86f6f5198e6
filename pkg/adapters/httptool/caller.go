// Package httptool calls the travel tools over plain JSON-over-HTTP.
package httptool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
)

const maxResponseSize = 4 << 20

// Caller posts tool calls to {baseURL}/tools/{name}.
type Caller struct {
	baseURL string
	client  *http.Client
	headers map[string]string
	logger  *slog.Logger
}

// Option configures the Caller.
type Option func(*Caller)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Caller) {
		cl.client = c
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(h map[string]string) Option {
	return func(c *Caller) {
		c.headers = h
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Caller) {
		c.logger = logger
	}
}

// New creates a Caller for baseURL.
func New(baseURL string, opts ...Option) *Caller {
	c := &Caller{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type callBody struct {
	ToolName string         `json:"toolName"`
	Params   map[string]any `json:"params"`
}

// CallTool posts {toolName, params} and returns the decoded response body.
// Non-2xx responses and transport failures become a *domain.RemoteError.
func (c *Caller) CallTool(ctx context.Context, name string, params map[string]any) (any, error) {
	body, err := json.Marshal(callBody{ToolName: name, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode params: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tools/"+url.PathEscape(name), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.RemoteError{Code: Code(err), Message: fmt.Sprintf("tool %s unreachable", name), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &domain.RemoteError{Code: Code(err), Message: fmt.Sprintf("failed to read %s response", name), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Tool returned error status", "tool", name, "status", resp.StatusCode)
		remote := &domain.RemoteError{Status: resp.StatusCode, Message: errorMessage(name, resp.StatusCode, raw)}
		if resp.StatusCode == http.StatusNotFound {
			remote.Err = domain.ErrToolNotFound
		}
		return nil, remote
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw), nil
	}
	return decoded, nil
}

func errorMessage(name string, status int, raw []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return fmt.Sprintf("tool %s failed with status %d", name, status)
}

// Code maps a transport error onto the symbolic code used by the retry
// policy, or "" when none applies.
func Code(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.EPIPE):
		return "EPIPE"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, syscall.ETIMEDOUT):
		return "ETIMEDOUT"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "ETIMEDOUT"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTemporary {
			return "EAI_AGAIN"
		}
		return "ENOTFOUND"
	}
	return ""
}
