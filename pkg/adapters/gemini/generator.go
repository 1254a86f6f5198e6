// Package gemini implements the language model port on top of the Google GenAI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/aretw0/waypoint/internal/logging"
)

// DefaultModel is used when no model name is configured.
const DefaultModel = "gemini-2.0-flash"

// ErrMissingAPIKey is returned by New when no API key is provided.
var ErrMissingAPIKey = errors.New("gemini: api key is required")

// Generator answers prompts with a Gemini model.
type Generator struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
	logger *slog.Logger
}

type settings struct {
	model       string
	baseURL     string
	httpClient  *http.Client
	temperature *float32
	maxTokens   int32
	logger      *slog.Logger
}

// Option configures the Generator.
type Option func(*settings)

// WithModel selects the model. Names may carry the "models/" prefix.
func WithModel(name string) Option {
	return func(s *settings) {
		s.model = name
	}
}

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(u string) Option {
	return func(s *settings) {
		s.baseURL = u
	}
}

// WithHTTPClient replaces the transport used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) {
		s.httpClient = c
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(s *settings) {
		s.temperature = &t
	}
}

// WithMaxOutputTokens caps the length of answers.
func WithMaxOutputTokens(n int32) Option {
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

// New creates a Generator using the Gemini API backend.
func New(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	s := settings{model: DefaultModel, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&s)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: s.httpClient,
	}
	if s.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: s.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	var cfg *genai.GenerateContentConfig
	if s.temperature != nil || s.maxTokens > 0 {
		cfg = &genai.GenerateContentConfig{Temperature: s.temperature, MaxOutputTokens: s.maxTokens}
	}

	return &Generator{
		client: client,
		model:  normalizeModel(s.model),
		config: cfg,
		logger: s.logger,
	}, nil
}

// Model returns the configured model name.
func (g *Generator) Model() string {
	return g.model
}

// GenerateContent returns the text of the first candidate.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), g.config)
	if err != nil {
		g.logger.Debug("gemini generate failed", "model", g.model, "err", err)
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini blocked prompt: %s", resp.PromptFeedback.BlockReason)
		}
		return "", nil
	}
	return textOf(resp.Candidates[0].Content), nil
}

// GenerateStream forwards every non-empty text fragment to onChunk.
func (g *Generator) GenerateStream(ctx context.Context, prompt string, onChunk func(string) error) error {
	for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, genai.Text(prompt), g.config) {
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		chunk := textOf(resp.Candidates[0].Content)
		if chunk == "" {
			continue
		}
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	return nil
}

func textOf(content *genai.Content) string {
	if content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func normalizeModel(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "models/")
	if name == "" {
		return DefaultModel
	}
	return name
}
