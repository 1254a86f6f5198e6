package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/internal/presentation/tui"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/streamclient"
)

// ChatOptions configures an interactive chat against a running server.
type ChatOptions struct {
	SessionID string
	Language  string
	// Render, when set, renders the final answer (markdown) instead of streaming raw text.
	Render  func(string) (string, error)
	Banner  bool
	Version string
	In      io.Reader
	Out     io.Writer
	Logger  *slog.Logger
}

// Chat is an interactive session over the streaming client.
type Chat struct {
	client  *streamclient.Client
	opts    ChatOptions
	history []domain.HistoryMessage
	last    string
}

// NewChat creates a chat session. A random session id is used when none is given.
func NewChat(client *streamclient.Client, opts ChatOptions) *Chat {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Chat{client: client, opts: opts}
}

// SessionID returns the current session id.
func (c *Chat) SessionID() string {
	return c.opts.SessionID
}

// Run reads lines from In until EOF, /quit or ctx is done.
func (c *Chat) Run(ctx context.Context) error {
	out := c.opts.Out
	if c.opts.Banner {
		tui.PrintBanner(out, c.opts.Version)
	}
	printSystemMessage(out, "Session '%s' active. Type /help for commands.", c.opts.SessionID)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(c.opts.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			readErr <- err
			return
		}
		readErr <- io.EOF
	}()

	for {
		fmt.Fprint(out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		case err := <-readErr:
			fmt.Fprintln(out)
			return err
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.command(line); quit {
				return nil
			}
			if line != "/retry" || c.last == "" {
				continue
			}
			line = c.last
		}
		if _, err := c.Ask(ctx, line); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Chat) command(line string) (quit bool) {
	out := c.opts.Out
	switch strings.Fields(line)[0] {
	case "/quit", "/exit", "/q":
		return true
	case "/reset":
		c.opts.SessionID = uuid.NewString()
		c.history = nil
		printSystemMessage(out, "New session '%s'.", c.opts.SessionID)
	case "/session":
		printSystemMessage(out, "Session '%s', %d messages.", c.opts.SessionID, len(c.history))
	case "/retry":
		if c.last == "" {
			printSystemMessage(out, "Nothing to retry.")
		}
	case "/help":
		printSystemMessage(out, "/reset new session, /session show session, /retry resend, /quit exit")
	default:
		printSystemMessage(out, "Unknown command %s", line)
	}
	return false
}

// Ask sends one message, prints the answer as it streams and records the exchange.
func (c *Chat) Ask(ctx context.Context, message string) (streamclient.Message, error) {
	out := c.opts.Out
	c.last = message
	req := domain.ChatRequest{
		Message:   message,
		History:   c.history,
		SessionID: c.opts.SessionID,
		Context:   domain.ChatContext{Language: c.opts.Language},
	}

	p := &printer{out: out, raw: c.opts.Render == nil}
	msg, err := c.client.Send(ctx, req, p.update)
	p.finish(msg)

	var serr *domain.StreamError
	if errors.As(err, &serr) {
		fmt.Fprintln(out, tui.ErrorLine(serr.Message, serr.Retryable))
		c.opts.Logger.Debug("Turn failed", "session_id", c.opts.SessionID, "err", err)
		return msg, err
	}
	if err != nil {
		fmt.Fprintln(out, tui.ErrorLine(err.Error(), false))
		return msg, err
	}

	if c.opts.Render != nil {
		rendered, rerr := c.opts.Render(msg.Content)
		if rerr != nil {
			rendered = msg.Content
		}
		fmt.Fprint(out, rendered)
	}
	c.history = append(c.history,
		domain.HistoryMessage{Role: "user", Content: message},
		domain.HistoryMessage{Role: "assistant", Content: msg.Content},
	)
	c.last = ""
	return msg, nil
}

// printer turns message snapshots into incremental terminal output.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	raw     bool
	printed int
	tools   map[string]streamclient.ToolStatus
}

func (p *printer) update(m streamclient.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolsLocked(m.StreamingToolCalls)
	if p.raw && len(m.Content) > p.printed {
		fmt.Fprint(p.out, m.Content[p.printed:])
		p.printed = len(m.Content)
	}
}

func (p *printer) toolsLocked(calls []streamclient.ToolCall) {
	if p.tools == nil {
		p.tools = make(map[string]streamclient.ToolStatus)
	}
	for _, call := range calls {
		if p.tools[call.ToolName] == call.Status {
			continue
		}
		p.tools[call.ToolName] = call.Status
		if p.printed > 0 {
			continue
		}
		fmt.Fprintln(p.out, tui.ToolLine(call))
	}
}

func (p *printer) finish(m streamclient.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolsLocked(m.StreamingToolCalls)
	if p.raw {
		if len(m.Content) > p.printed {
			fmt.Fprint(p.out, m.Content[p.printed:])
		}
		if m.Content != "" {
			fmt.Fprintln(p.out)
		}
	}
}
