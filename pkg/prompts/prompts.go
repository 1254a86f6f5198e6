// Package prompts provides the prompt templates used for intent extraction,
// response synthesis and plain chat.
//
// Templates are keyed by name and language. A lookup for a language without a
// dedicated template falls back to the "default" variant.
package prompts

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/aretw0/waypoint/pkg/ports"
)

// Template names.
const (
	Synthesis        = "synthesis"
	SynthesisVoice   = "synthesis_voice"
	IntentExtraction = "intent_extraction"
	PlainChat        = "plain_chat"
)

// DefaultLang is the variant used when no language-specific template exists.
const DefaultLang = "default"

// Set maps template name to language to template text.
type Set map[string]map[string]string

// Lookup returns the template for name in lang, falling back to DefaultLang.
func (s Set) Lookup(name, lang string) (string, bool) {
	variants, ok := s[name]
	if !ok {
		return "", false
	}
	if t, ok := variants[lang]; ok && t != "" {
		return t, true
	}
	t, ok := variants[DefaultLang]
	return t, ok && t != ""
}

// Prompt implements ports.PromptSource.
func (s Set) Prompt(name, lang string) (string, bool) {
	return s.Lookup(name, lang)
}

// Render looks up name in src and executes it with data.
func Render(src ports.PromptSource, name, lang string, data any) (string, error) {
	text, ok := src.Prompt(name, lang)
	if !ok {
		return "", fmt.Errorf("prompt %q not found", name)
	}
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt %q: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %q: %w", name, err)
	}
	return buf.String(), nil
}

// Defaults returns the built-in templates.
func Defaults() Set {
	return Set{
		Synthesis: {
			DefaultLang: `You are a travel assistant for public transport. The user asked:
"{{.Message}}"

Tool results are already shown to the user as visual cards:
{{.Formatted}}

Machine-readable summary:
{{.Summary}}

Reply in {{.Language}} with one or two short sentences acknowledging what was found.
Do not repeat times, platforms or prices that the cards already show.{{if .Failures}}
Mention briefly that some information could not be retrieved.{{end}}`,
			"de": `Du bist ein Reiseassistent für den öffentlichen Verkehr. Die Frage lautete:
"{{.Message}}"

Die Ergebnisse werden bereits als Karten angezeigt:
{{.Formatted}}

Zusammenfassung:
{{.Summary}}

Antworte auf Deutsch in ein bis zwei kurzen Sätzen. Wiederhole keine Zeiten oder Gleise.{{if .Failures}}
Erwähne kurz, dass einige Informationen nicht abgerufen werden konnten.{{end}}`,
		},
		SynthesisVoice: {
			DefaultLang: `You are a travel assistant whose answer will be read aloud. The user asked:
"{{.Message}}"

Results:
{{.Formatted}}

Summary:
{{.Summary}}

Reply in {{.Language}} as a short spoken digest: name the best option first, say
departure and arrival times in words a listener can follow, and avoid lists, symbols
and abbreviations.{{if .Failures}} Say that some information is unavailable.{{end}}`,
		},
		IntentExtraction: {
			DefaultLang: `Classify the travel request below into one or more intents.
Allowed types: trip_planning, station_search, weather_check, train_formation,
eco_comparison, general_question.

Known context:
{{- if .Origin}}
- origin: {{.Origin}}{{end}}
{{- if .Destination}}
- destination: {{.Destination}}{{end}}
- today: {{.Today}}

Message: "{{.Message}}"

Answer with a JSON array only. Each element:
{"type": "...", "confidence": 0.0-1.0, "priority": 0, "extractedEntities": {
  "origin": "", "destination": "", "date": "", "time": "", "isArrivalTime": false,
  "location": "", "station": "", "eventType": "departures", "reference": ""}}
Omit entities you cannot find. Use "USER_LOCATION" when the user means their current position.`,
		},
		PlainChat: {
			DefaultLang: `You are a friendly travel assistant for public transport. Answer in {{.Language}}.
{{range .History}}
{{.Role}}: {{.Content}}{{end}}
user: {{.Message}}
assistant:`,
		},
	}
}
