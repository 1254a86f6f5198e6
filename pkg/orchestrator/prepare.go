package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/intent"
	"github.com/aretw0/waypoint/pkg/ports"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/aretw0/waypoint/pkg/timeparse"
)

// Prepared is the session context and intents of a turn.
type Prepared struct {
	Context *domain.ConversationContext
	Intents []domain.Intent
}

// ContextPreparer loads the session and extracts the intents of a message.
type ContextPreparer struct {
	sessions  *session.Manager
	extractor ports.IntentExtractor
	parser    *timeparse.Parser
	logger    *slog.Logger
}

// NewContextPreparer creates a ContextPreparer.
func NewContextPreparer(sessions *session.Manager, extractor ports.IntentExtractor, parser *timeparse.Parser, logger *slog.Logger) *ContextPreparer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if parser == nil {
		parser = timeparse.New()
	}
	return &ContextPreparer{sessions: sessions, extractor: extractor, parser: parser, logger: logger}
}

// Prepare runs the preparation steps of a turn and persists the updated context.
func (p *ContextPreparer) Prepare(ctx context.Context, req Request) (*Prepared, error) {
	// 1. Load or create the session
	c := p.sessions.GetOrCreate(req.SessionID, req.Language)
	log := p.logger.With("session_id", c.SessionID)

	// 2. Extract intents
	intents, err := p.extractor.Extract(ctx, req.Message, c)
	if err != nil {
		return nil, fmt.Errorf("failed to extract intents: %w", err)
	}
	if len(intents) == 0 {
		intents = []domain.Intent{{
			Type:              domain.IntentGeneralQuestion,
			Confidence:        intent.FallbackConfidence,
			ExtractedEntities: map[string]any{domain.EntityMessage: req.Message},
			Timestamp:         p.sessions.Now(),
		}}
	}

	// 3. Merge explicit structure
	structure := req.Structure
	if structure == nil {
		structure = intent.ParseStructure(req.Message)
	}
	if structure != nil {
		extra := structure.Entities()
		for i := range intents {
			if intents[i].ExtractedEntities == nil {
				intents[i].ExtractedEntities = map[string]any{}
			}
			for k, v := range extra {
				intents[i].ExtractedEntities[k] = v
			}
		}
	}

	// 4. Replace the user location placeholder
	if req.NearestStation != "" {
		for i := range intents {
			for _, key := range []string{domain.EntityOrigin, domain.EntityDestination} {
				if intents[i].Entity(key) == domain.UserLocationSentinel {
					intents[i].ExtractedEntities[key] = req.NearestStation
				}
			}
		}
	}

	// 5. Update anchors and history
	for _, in := range domain.SortByPriority(intents) {
		p.anchor(c, in, log)
		p.sessions.PushIntent(c, in)
	}

	// 6. Persist
	p.sessions.Update(c)

	log.Debug("Turn prepared", "intents", len(intents), "first", intents[0].Type)
	return &Prepared{Context: c, Intents: intents}, nil
}

func (p *ContextPreparer) anchor(c *domain.ConversationContext, in domain.Intent, log *slog.Logger) {
	origin := in.Entity(domain.EntityOrigin)
	if origin == domain.UserLocationSentinel {
		origin = ""
	}
	destination := in.Entity(domain.EntityDestination)
	if destination == domain.UserLocationSentinel {
		destination = ""
	}
	if origin != "" || destination != "" {
		p.sessions.UpdateLocation(c, origin, destination)
	}

	date, clock := in.Entity(domain.EntityDate), in.Entity(domain.EntityTime)
	if date != "" || clock != "" {
		if parsed, err := p.parser.ParseDatetime(date, clock); err == nil {
			arriveBy, _ := in.ExtractedEntities[domain.EntityIsArrivalTime].(bool)
			dep := parsed.DepartureTime
			p.sessions.UpdateTime(c, &dep, arriveBy)
		}
	}

	if raw, ok := in.ExtractedEntities[domain.EntityPreferences]; ok {
		prefs, err := intent.DecodePreferences(raw)
		if err != nil {
			log.Warn("Ignoring invalid preferences", "err", err)
			return
		}
		p.sessions.MergePreferences(c, prefs)
	}
}

// nonEmpty reports whether the message has text.
func nonEmpty(s string) bool {
	return strings.TrimSpace(s) != ""
}
