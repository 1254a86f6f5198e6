// Package openai implements the language model port on top of the OpenAI chat completions API.
// Any OpenAI-compatible endpoint can be targeted with WithBaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/aretw0/waypoint/internal/logging"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gpt-4o-mini"

// ErrMissingAPIKey is returned by New when no API key is provided.
var ErrMissingAPIKey = errors.New("openai: api key is required")

// Generator answers prompts with a chat completion model.
type Generator struct {
	client      openai.Client
	model       string
	system      string
	temperature *float64
	maxTokens   int64
	logger      *slog.Logger
}

type settings struct {
	model       string
	system      string
	temperature *float64
	maxTokens   int64
	requestOpts []option.RequestOption
	logger      *slog.Logger
}

// Option configures the Generator.
type Option func(*settings)

// WithModel selects the model.
func WithModel(name string) Option {
	return func(s *settings) {
		s.model = name
	}
}

// WithSystemPrompt prepends a system message to every request.
func WithSystemPrompt(p string) Option {
	return func(s *settings) {
		s.system = p
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		s.requestOpts = append(s.requestOpts, option.WithBaseURL(u))
	}
}

// WithHTTPClient replaces the transport used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.requestOpts = append(s.requestOpts, option.WithHTTPClient(c))
	}
}

// WithMaxRetries sets how often the SDK retries failed requests.
func WithMaxRetries(n int) Option {
	return func(s *settings) {
		s.requestOpts = append(s.requestOpts, option.WithMaxRetries(n))
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *settings) {
		s.temperature = &t
	}
}

// WithMaxTokens caps the length of answers.
func WithMaxTokens(n int64) Option {
	return func(s *settings) {
		s.maxTokens = n
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// New creates a Generator.
func New(apiKey string, opts ...Option) (*Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	s := settings{model: DefaultModel, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}
	if strings.TrimSpace(s.model) == "" {
		s.model = DefaultModel
	}

	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, s.requestOpts...)
	return &Generator{
		client:      openai.NewClient(reqOpts...),
		model:       s.model,
		system:      s.system,
		temperature: s.temperature,
		maxTokens:   s.maxTokens,
		logger:      s.logger,
	}, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	return g.model
}

func (g *Generator) params(prompt string) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if g.system != "" {
		msgs = append(msgs, openai.SystemMessage(g.system))
	}
	msgs = append(msgs, openai.UserMessage(prompt))

	p := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: msgs,
	}
	if g.temperature != nil {
		p.Temperature = openai.Float(*g.temperature)
	}
	if g.maxTokens > 0 {
		p.MaxCompletionTokens = openai.Int(g.maxTokens)
	}
	return p
}

// GenerateContent returns the content of the first choice.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, g.params(prompt))
	if err != nil {
		g.logger.Debug("openai completion failed", "model", g.model, "err", err)
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream forwards every non-empty content delta to onChunk.
func (g *Generator) GenerateStream(ctx context.Context, prompt string, onChunk func(string) error) error {
	stream := g.client.Chat.Completions.NewStreaming(ctx, g.params(prompt))
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		if err := onChunk(delta); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream failed: %w", err)
	}
	return nil
}
