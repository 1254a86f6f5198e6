package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/compile"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/prompts"
)

// SynthesisOptions selects the synthesis prompt.
type SynthesisOptions struct {
	Message  string
	Language string
	Voice    bool
}

// Synthesizer produces the natural-language answer for plan results.
type Synthesizer struct {
	gen     ports.Generator
	prompts ports.PromptSource
	logger  *slog.Logger
}

// NewSynthesizer creates a Synthesizer. gen may be nil, in which case a
// template answer is produced.
func NewSynthesizer(gen ports.Generator, src ports.PromptSource, logger *slog.Logger) *Synthesizer {
	if src == nil {
		src = prompts.Defaults()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Synthesizer{gen: gen, prompts: src, logger: logger}
}

// Prompt renders the synthesis prompt.
func (s *Synthesizer) Prompt(formatted string, summary compile.Summary, opts SynthesisOptions) (string, error) {
	name := prompts.Synthesis
	if opts.Voice {
		name = prompts.SynthesisVoice
	}
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	return prompts.Render(s.prompts, name, lang, map[string]any{
		"Message":   opts.Message,
		"Language":  lang,
		"Formatted": formatted,
		"Summary":   compile.SummaryJSON(summary),
		"Failures":  len(summary.Failures) > 0,
	})
}

// Synthesize returns the answer text. When the model is missing or fails the
// template answer is returned instead.
func (s *Synthesizer) Synthesize(ctx context.Context, formatted string, summary compile.Summary, opts SynthesisOptions) (string, error) {
	var text string
	err := s.SynthesizeStream(ctx, formatted, summary, opts, func(chunk string) error {
		text += chunk
		return nil
	})
	return text, err
}

// SynthesizeStream is Synthesize delivering the answer in chunks.
// Errors returned by onChunk abort and are returned.
func (s *Synthesizer) SynthesizeStream(ctx context.Context, formatted string, summary compile.Summary, opts SynthesisOptions, onChunk func(string) error) error {
	if s.gen == nil {
		return onChunk(Fallback(summary))
	}
	prompt, err := s.Prompt(formatted, summary, opts)
	if err != nil {
		return err
	}

	sent := false
	wrapped := func(chunk string) error {
		sent = true
		return onChunk(chunk)
	}
	err = generate(ctx, s.gen, prompt, wrapped)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Warn("Synthesis failed, using template answer", "err", err)
	if sent {
		return nil
	}
	return onChunk(Fallback(summary))
}

// generate streams from gen when it supports streaming; otherwise the whole
// answer is delivered as one chunk.
func generate(ctx context.Context, gen ports.Generator, prompt string, onChunk func(string) error) error {
	if sg, ok := gen.(ports.StreamingGenerator); ok {
		return sg.GenerateStream(ctx, prompt, onChunk)
	}
	text, err := gen.GenerateContent(ctx, prompt)
	if err != nil {
		return err
	}
	return onChunk(text)
}

// Fallback is the template answer built from a summary alone.
func Fallback(summary compile.Summary) string {
	var parts []string
	if n := len(summary.Trips); n > 0 {
		t := summary.Trips[0]
		parts = append(parts, fmt.Sprintf("I found %d connection(s) from %s to %s.", n, t.Origin, t.Destination))
	}
	if len(summary.Eco) > 0 {
		parts = append(parts, fmt.Sprintf("Taking the train saves about %.1f kg of CO2.", summary.Eco[0].SavingsKg))
	}
	for _, w := range summary.Weather {
		if w.Condition != "" {
			parts = append(parts, fmt.Sprintf("The weather in %s: %s.", w.Location, w.Condition))
		}
		if w.Snow != nil && w.Snow.SnowDepthCm != nil {
			parts = append(parts, fmt.Sprintf("There is %.0f cm of snow.", *w.Snow.SnowDepthCm))
		}
	}
	if n := len(summary.Events); n > 0 {
		parts = append(parts, fmt.Sprintf("Here are the next %d trains.", n))
	}
	if len(summary.Formation) > 0 {
		parts = append(parts, "Here is the train formation.")
	}
	if len(parts) == 0 && len(summary.Stations) > 0 {
		parts = append(parts, fmt.Sprintf("I found %s.", summary.Stations[0].Name))
	}
	if len(summary.Failures) > 0 {
		parts = append(parts, "Some information is currently unavailable.")
	}
	if len(parts) == 0 {
		return "I couldn't find anything for that request."
	}
	return strings.Join(parts, " ")
}
