package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/prompts"
	"github.com/mitchellh/mapstructure"
)

var errNoIntents = errors.New("model returned no intents")

// LLMExtractor classifies messages with a language model.
type LLMExtractor struct {
	gen      ports.Generator
	prompts  ports.PromptSource
	fallback ports.IntentExtractor
	now      func() time.Time
	logger   *slog.Logger
}

// LLMOption configures the LLMExtractor.
type LLMOption func(*LLMExtractor)

// WithPrompts replaces the built-in prompt templates.
func WithPrompts(src ports.PromptSource) LLMOption {
	return func(e *LLMExtractor) {
		e.prompts = src
	}
}

// WithFallback replaces the RuleExtractor used when the model fails.
func WithFallback(fb ports.IntentExtractor) LLMOption {
	return func(e *LLMExtractor) {
		e.fallback = fb
	}
}

// WithLLMClock configures the time source for timestamps and the "today" hint.
func WithLLMClock(now func() time.Time) LLMOption {
	return func(e *LLMExtractor) {
		e.now = now
	}
}

// WithLLMLogger configures a logger.
func WithLLMLogger(logger *slog.Logger) LLMOption {
	return func(e *LLMExtractor) {
		e.logger = logger
	}
}

// NewLLMExtractor creates an extractor backed by gen.
func NewLLMExtractor(gen ports.Generator, opts ...LLMOption) *LLMExtractor {
	e := &LLMExtractor{
		gen:     gen,
		prompts: prompts.Defaults(),
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fallback == nil {
		e.fallback = NewRuleExtractor(WithClock(e.now), WithLogger(e.logger))
	}
	return e
}

// Extract implements ports.IntentExtractor.
func (e *LLMExtractor) Extract(ctx context.Context, message string, c *domain.ConversationContext) ([]domain.Intent, error) {
	intents, err := e.ask(ctx, message, c)
	if err == nil {
		return intents, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	e.logger.Warn("LLM intent extraction failed, using rules", "err", err)
	return e.fallback.Extract(ctx, message, c)
}

func (e *LLMExtractor) ask(ctx context.Context, message string, c *domain.ConversationContext) ([]domain.Intent, error) {
	if e.gen == nil {
		return nil, errors.New("no generator configured")
	}

	lang := "en"
	data := map[string]any{
		"Message": message,
		"Today":   e.now().Format(time.DateOnly),
	}
	if c != nil {
		lang = c.Language
		if c.Location.Origin != nil {
			data["Origin"] = c.Location.Origin.Name
		}
		if c.Location.Destination != nil {
			data["Destination"] = c.Location.Destination.Name
		}
	}

	prompt, err := prompts.Render(e.prompts, prompts.IntentExtraction, lang, data)
	if err != nil {
		return nil, err
	}
	text, err := e.gen.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate intents: %w", err)
	}

	intents, err := ParseIntents(text)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for i := range intents {
		intents[i].Timestamp = now
		if intents[i].ExtractedEntities == nil {
			intents[i].ExtractedEntities = map[string]any{}
		}
		if _, ok := intents[i].ExtractedEntities[domain.EntityMessage]; !ok {
			intents[i].ExtractedEntities[domain.EntityMessage] = message
		}
	}
	return intents, nil
}

// ParseIntents decodes a model answer holding a JSON array of intents (or a
// single object), optionally wrapped in a markdown code fence. Unknown types
// become general_question and confidences are clamped to [0,1].
func ParseIntents(text string) ([]domain.Intent, error) {
	raw, err := jsonPayload(text)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if strings.HasPrefix(raw, "{") {
		var one map[string]any
		if err := json.Unmarshal([]byte(raw), &one); err != nil {
			return nil, fmt.Errorf("failed to parse intents: %w", err)
		}
		items = []map[string]any{one}
	} else if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("failed to parse intents: %w", err)
	}

	out := make([]domain.Intent, 0, len(items))
	for i, item := range items {
		var in domain.Intent
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &in,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(item); err != nil {
			return nil, fmt.Errorf("failed to decode intent %d: %w", i, err)
		}
		if !knownType(in.Type) {
			in.Type = domain.IntentGeneralQuestion
		}
		in.Confidence = min(max(in.Confidence, 0), 1)
		if _, ok := item["priority"]; !ok {
			in.Priority = i
		}
		out = append(out, in)
	}
	if len(out) == 0 {
		return nil, errNoIntents
	}
	return out, nil
}

func jsonPayload(text string) (string, error) {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.IndexAny(s, "[{")
	if start < 0 {
		return "", fmt.Errorf("no JSON found in model answer")
	}
	closer := byte(']')
	if s[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", fmt.Errorf("unterminated JSON in model answer")
	}
	return s[start : end+1], nil
}

func knownType(t domain.IntentType) bool {
	switch t {
	case domain.IntentTripPlanning, domain.IntentStationSearch, domain.IntentWeatherCheck,
		domain.IntentTrainFormation, domain.IntentEcoComparison, domain.IntentGeneralQuestion:
		return true
	}
	return false
}
