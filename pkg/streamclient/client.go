// Package streamclient consumes the chat stream of a Waypoint server and
// assembles the assistant message the way an interactive client shows it.
package streamclient

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
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
)

const (
	DefaultDebounce    = 50 * time.Millisecond
	DefaultToolTimeout = 10 * time.Second
	DefaultTimeout     = 30 * time.Second
)

// User-visible error texts.
const (
	OfflineMessage = "No internet connection. Please check your network and try again."
	TimeoutMessage = "The request took too long. Please try again."
)

// Client talks to the HTTP API of a Waypoint server.
type Client struct {
	baseURL     string
	http        *http.Client
	debounce    time.Duration
	toolTimeout time.Duration
	timeout     time.Duration
	online      func(ctx context.Context) bool
	logger      *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithDebounce configures the chunk batching interval.
func WithDebounce(d time.Duration) Option {
	return func(c *Client) {
		c.debounce = d
	}
}

// WithToolTimeout configures how long a tool call may stay executing.
func WithToolTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.toolTimeout = d
	}
}

// WithTimeout configures the overall stream timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithOnlineCheck configures the connectivity probe run before every request.
func WithOnlineCheck(fn func(ctx context.Context) bool) Option {
	return func(c *Client) {
		c.online = fn
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{},
		debounce:    DefaultDebounce,
		toolTimeout: DefaultToolTimeout,
		timeout:     DefaultTimeout,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasNetwork reports whether the host has an interface that is up and not a
// loopback device.
func HasNetwork(context.Context) bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return true
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}

// IsLoopback reports whether rawURL points at the local host.
func IsLoopback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Send posts req to the stream endpoint and assembles the answer. onUpdate,
// when set, receives a snapshot after every visible change. The returned error
// is the StreamError attached to the message, if any.
func (c *Client) Send(ctx context.Context, req domain.ChatRequest, onUpdate func(Message)) (Message, error) {
	asm := NewAssembler(c.debounce, c.toolTimeout, onUpdate)

	// 1. Offline short-circuit
	if c.online != nil && !c.online(ctx) {
		asm.Fail(&domain.StreamError{Type: domain.StreamErrorNetwork, Message: OfflineMessage, Retryable: true})
		return result(asm)
	}

	// 2. Overall timeout
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	// 3. Request
	body, err := json.Marshal(req)
	if err != nil {
		return Message{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/llm/stream", bytes.NewReader(body))
	if err != nil {
		return Message{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if req.SessionID != "" {
		httpReq.Header.Set("X-Session-Id", req.SessionID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		asm.Fail(c.transportError(ctx, err))
		return result(asm)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		asm.Fail(statusError(resp))
		return result(asm)
	}

	// 4. Frames
	err = ParseFrames(resp.Body, func(ev domain.StreamEvent) error {
		asm.Apply(ev)
		return nil
	})
	if err != nil && !asm.Done() {
		c.logger.Debug("Stream interrupted", "err", err)
		asm.Fail(c.transportError(ctx, err))
	}
	asm.Close()
	return result(asm)
}

func result(asm *Assembler) (Message, error) {
	msg := asm.Message()
	if msg.Error != nil {
		return msg, msg.Error
	}
	return msg, nil
}

func (c *Client) transportError(ctx context.Context, err error) *domain.StreamError {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return &domain.StreamError{Type: domain.StreamErrorTimeout, Message: TimeoutMessage, Retryable: true}
	}
	return &domain.StreamError{Type: domain.StreamErrorNetwork, Message: err.Error(), Retryable: true}
}

// statusError maps a non-200 response to a stream error, keeping the
// server's message when the body carries one.
func statusError(resp *http.Response) *domain.StreamError {
	msg := fmt.Sprintf("server returned %s", resp.Status)
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	return &domain.StreamError{Type: domain.StreamErrorGeneral, Message: msg, Retryable: retryable}
}
