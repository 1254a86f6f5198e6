// Package intent turns a free-text message into classified intents.
//
// RuleExtractor is a deterministic, regex-driven classifier. LLMExtractor asks a
// language model and falls back to the rules when the model is unavailable or
// answers with something that does not parse.
package intent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
)

// Confidence assigned when nothing specific matched.
const FallbackConfidence = 0.3

// extractFunc pulls entities from a clause. original keeps the user's casing;
// lower is the same clause lowercased.
type extractFunc func(original, lower string) map[string]any

type pattern struct {
	kind       domain.IntentType
	regex      *regexp.Regexp
	confidence float64
	extract    extractFunc
}

// RuleExtractor classifies clauses with an ordered list of patterns; the first
// matching pattern decides a clause's intent.
type RuleExtractor struct {
	patterns []pattern
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures the RuleExtractor.
type Option func(*RuleExtractor)

// WithClock configures the time source for intent timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *RuleExtractor) {
		e.now = now
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *RuleExtractor) {
		e.logger = logger
	}
}

// NewRuleExtractor creates an extractor with the built-in travel patterns.
func NewRuleExtractor(opts ...Option) *RuleExtractor {
	e := &RuleExtractor{
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registerPatterns()
	return e
}

var (
	reClauseSplit = regexp.MustCompile(`(?i)\s+and\s+(?:also|then)\s+|\s*;\s*|\?\s+(?:(?:and|also)\s+)?`)

	reFromTo = regexp.MustCompile(`(?i)\bfrom\s+(.+?)\s+to\s+(.+?)(?:\s+(?:on|at|by|for|tomorrow|today|tonight|next|this|in|around|before|after|arriving|departing|leaving|with)\b|\s*[,?!]|\s*\.\s*$|$)`)
	reToFrom = regexp.MustCompile(`(?i)\bto\s+(.+?)\s+from\s+(.+?)(?:\s+(?:on|at|by|for|tomorrow|today|tonight|next|this|in|around|before|after|arriving|departing|leaving|with)\b|\s*[,?!]|\s*\.\s*$|$)`)
	reToOnly = regexp.MustCompile(`\b(?i:to|get to|go to|travel to)\s+(\p{Lu}[\p{L}.'\-]*(?:\s+\p{Lu}[\p{L}.'\-]*)*)`)

	// A capitalised place name following a preposition.
	rePlaceAfter = regexp.MustCompile(`\b(?:in|at|for|near|from|of)\s+(\p{Lu}[\p{L}.'\-]*(?:\s+\p{Lu}[\p{L}.'\-]*)*)`)

	reDate = regexp.MustCompile(`(?i)\b(day after tomorrow|today|tomorrow|tonight|next week|(?:next\s+|on\s+)?(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)|in\s+\d+\s+(?:days?|weeks?)|\d{4}-\d{2}-\d{2}|\d{1,2}[./]\d{1,2}(?:[./]\d{2,4})?)\b`)
	reTime = regexp.MustCompile(`(?i)\b(?:at|around|by|before|after|for)\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)|\d{1,2}[:h]\d{2}|\d{1,2}|noon|midnight)\b|\b(\d{1,2}:\d{2}|\d{1,2}\s*(?:am|pm))\b|\b(this morning|this afternoon|this evening|tonight|noon|midnight)\b`)

	reArrival  = regexp.MustCompile(`(?i)\b(arrive|arriving|arrival|be there by|get there by|reach .+ by)\b`)
	reLeadVerb = regexp.MustCompile(`(?i)^(?:arrive|be|get|go|travel|come)\s+(?:at|in|to|into)\s+`)
	reHere     = regexp.MustCompile(`(?i)^(here|my location|my current location|current location|where i am|my position)$`)
	reTrainNo  = regexp.MustCompile(`\b((?:IC|IR|ICE|EC|EN|RE|RJX?|TGV|S)\s?\d{1,5})\b`)
	reOrdinals = regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|last|\d+(?:st|nd|rd|th)|#\d+|option \d+|that one|this one)\b`)

	reWheelchair = regexp.MustCompile(`(?i)\b(wheelchair|step[- ]free|barrier[- ]free|accessible)\b`)
	reBike       = regexp.MustCompile(`(?i)\b(bike|bicycle|my cycle)\b`)
	reEcoStyle   = regexp.MustCompile(`(?i)\b(greenest|eco[- ]friendly|sustainable|lowest co2|least co2)\b`)
	reFastest    = regexp.MustCompile(`(?i)\b(fastest|quickest)\b`)
	reCheapest   = regexp.MustCompile(`(?i)\b(cheapest|least expensive|budget)\b`)
)

func (e *RuleExtractor) registerPatterns() {
	// Train formation: which coach, sector or composition.
	e.patterns = append(e.patterns, pattern{
		kind:       domain.IntentTrainFormation,
		regex:      regexp.MustCompile(`(?i)\b(formation|composition|wagons?|coaches|carriages?|sectors?|which car|dining car|where (?:do|should) i (?:board|sit|stand))\b`),
		confidence: 0.85,
		extract: func(original, lower string) map[string]any {
			ents := map[string]any{}
			if m := reTrainNo.FindStringSubmatch(original); m != nil {
				ents[domain.EntityTripID] = strings.ReplaceAll(m[1], " ", "")
			}
			if m := reOrdinals.FindString(lower); m != "" {
				ents[domain.EntityReference] = m
			}
			return ents
		},
	})

	// CO2 / eco comparison of a previously shown trip.
	e.patterns = append(e.patterns, pattern{
		kind:       domain.IntentEcoComparison,
		regex:      regexp.MustCompile(`(?i)\b(co2|carbon|emissions?|footprint|environmental impact|compared? (?:to|with) (?:driving|the car|flying))\b`),
		confidence: 0.8,
		extract: func(original, lower string) map[string]any {
			ents := tripEntities(original, lower)
			if m := reOrdinals.FindString(lower); m != "" {
				ents[domain.EntityReference] = m
			}
			return ents
		},
	})

	// Weather and snow.
	e.patterns = append(e.patterns, pattern{
		kind:       domain.IntentWeatherCheck,
		regex:      regexp.MustCompile(`(?i)\b(weather|forecast|rain(?:ing|y)?|snow(?:ing|fall)?|sunny|temperature|ski(?:ing)?|slopes?|powder)\b`),
		confidence: 0.85,
		extract: func(original, lower string) map[string]any {
			ents := map[string]any{}
			if loc := placeAfter(original); loc != "" {
				ents[domain.EntityLocation] = loc
			}
			if m := reDate.FindString(lower); m != "" {
				ents[domain.EntityDate] = m
			}
			return ents
		},
	})

	// Explicit "from X to Y" always means a trip.
	e.patterns = append(e.patterns, pattern{
		kind:       domain.IntentTripPlanning,
		regex:      regexp.MustCompile(`(?i)\bfrom\s+\S.*\s+to\s+\S|\bto\s+\S.*\s+from\s+\S`),
		confidence: 0.9,
		extract:    tripEntities,
	})

	// Departure and arrival boards.
	e.patterns = append(e.patterns, pattern{
		kind:       domain.IntentStationSearch,
		regex:      regexp.MustCompile(`(?i)\b(departures?|arrivals?|departure board|arrival board|timetable|next trains? (?:at|from|leaving)|leaving (?:from )?\p{L}+ station|station board)\b`),
		confidence: 0.8,
		extract: func(original, lower string) map[string]any {
			ents := map[string]any{domain.EntityEventType: "departures"}
			if strings.Contains(lower, "arriv") {
				ents[domain.EntityEventType] = "arrivals"
			}
			if st := placeAfter(original); st != "" {
				ents[domain.EntityStation] = st
			}
			if m := reDate.FindString(lower); m != "" {
				ents[domain.EntityDate] = m
			}
			if t := timeOf(lower); t != "" {
				ents[domain.EntityTime] = t
			}
			return ents
		},
	})

	// Trips without an explicit origin.
	e.patterns = append(e.patterns, pattern{
		kind:       domain.IntentTripPlanning,
		regex:      regexp.MustCompile(`(?i)\b(trains?|trips?|travel|journey|connections?|route|get to|go to|ride to)\b`),
		confidence: 0.75,
		extract:    tripEntities,
	})
}

// Extract implements ports.IntentExtractor. It never fails; messages without a
// recognisable goal yield a single general_question intent.
func (e *RuleExtractor) Extract(_ context.Context, message string, _ *domain.ConversationContext) ([]domain.Intent, error) {
	now := e.now()
	message = strings.TrimSpace(message)
	prefs := preferencesOf(message)

	var intents []domain.Intent
	for _, clause := range splitClauses(message) {
		in, ok := e.classify(clause)
		if !ok {
			continue
		}
		if prefs != nil {
			in.ExtractedEntities[domain.EntityPreferences] = prefs
		}
		in.Timestamp = now
		in.Priority = len(intents)
		intents = append(intents, in)
	}

	if len(intents) == 0 {
		ents := map[string]any{domain.EntityMessage: message}
		if prefs != nil {
			ents[domain.EntityPreferences] = prefs
		}
		intents = append(intents, domain.Intent{
			Type:              domain.IntentGeneralQuestion,
			Confidence:        FallbackConfidence,
			ExtractedEntities: ents,
			Timestamp:         now,
		})
	}

	e.logger.Debug("Intents extracted", "count", len(intents), "first", intents[0].Type)
	return intents, nil
}

func (e *RuleExtractor) classify(clause string) (domain.Intent, bool) {
	lower := strings.ToLower(clause)
	for _, p := range e.patterns {
		if !p.regex.MatchString(clause) {
			continue
		}
		ents := p.extract(clause, lower)
		if ents == nil {
			ents = map[string]any{}
		}
		ents[domain.EntityMessage] = clause
		return domain.Intent{
			Type:              p.kind,
			Confidence:        p.confidence,
			ExtractedEntities: ents,
		}, true
	}
	return domain.Intent{}, false
}

func splitClauses(message string) []string {
	parts := reClauseSplit.Split(message, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func tripEntities(original, lower string) map[string]any {
	ents := map[string]any{}

	if m := reFromTo.FindStringSubmatch(original); m != nil {
		ents[domain.EntityOrigin] = place(m[1])
		ents[domain.EntityDestination] = place(m[2])
	} else if m := reToFrom.FindStringSubmatch(original); m != nil {
		ents[domain.EntityDestination] = place(m[1])
		ents[domain.EntityOrigin] = place(m[2])
	} else if m := reToOnly.FindStringSubmatch(original); m != nil {
		ents[domain.EntityDestination] = place(m[1])
	}

	if m := reDate.FindString(lower); m != "" {
		ents[domain.EntityDate] = m
	}
	if t := timeOf(lower); t != "" {
		ents[domain.EntityTime] = t
	}
	if reArrival.MatchString(lower) {
		ents[domain.EntityIsArrivalTime] = true
	}
	return ents
}

func timeOf(lower string) string {
	m := reTime.FindStringSubmatch(lower)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return strings.TrimSpace(g)
		}
	}
	return ""
}

func placeAfter(original string) string {
	m := rePlaceAfter.FindStringSubmatch(original)
	if m == nil {
		return ""
	}
	return place(m[1])
}

// place normalises a captured place name and maps "here" to the user location sentinel.
func place(s string) string {
	s = strings.TrimSpace(reLeadVerb.ReplaceAllString(strings.TrimSpace(s), ""))
	s = strings.TrimRight(s, ",?!")
	if strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "St.") {
		s = strings.TrimSuffix(s, ".")
	}
	if reHere.MatchString(s) {
		return domain.UserLocationSentinel
	}
	return s
}

// preferencesOf detects travel preferences stated in passing. The result uses
// the mapstructure keys of domain.Preferences.
func preferencesOf(message string) map[string]any {
	prefs := map[string]any{}
	switch {
	case reEcoStyle.MatchString(message):
		prefs["travelStyle"] = string(domain.StyleEco)
	case reFastest.MatchString(message):
		prefs["travelStyle"] = string(domain.StyleFastest)
	case reCheapest.MatchString(message):
		prefs["travelStyle"] = string(domain.StyleCheapest)
	}
	if reWheelchair.MatchString(message) {
		prefs["accessibility"] = map[string]any{"wheelchair": true, "stepFree": true}
	}
	if reBike.MatchString(message) {
		prefs["transport"] = map[string]any{"bike": true}
	}
	if len(prefs) == 0 {
		return nil
	}
	return prefs
}
