// Package plan turns intents into small DAGs of tool calls and executes them in
// dependency waves.
package plan

import (
	"log/slog"
	"regexp"
	"time"

	"github.com/aretw0/waypoint/internal/logging"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/aretw0/waypoint/pkg/timeparse"
	"github.com/google/uuid"
)

// Plan names.
const (
	NameTrip           = "trip"
	NameEcoTrip        = "eco-trip"
	NameAccessibleTrip = "accessible-trip"
	NameStationEvents  = "station-events"
	NameFormation      = "train-formation"
	NameWeather        = "weather"
	NameEcoComparison  = "eco-comparison"
)

var reSnow = regexp.MustCompile(`(?i)\b(snow\w*|ski\w*|slopes?|pistes?|powder|lifts?)\b`)

// Sessions is the part of the session manager the factory reads.
type Sessions interface {
	LatestResult(c *domain.ConversationContext, tool string) (any, bool)
	ResolveReference(c *domain.ConversationContext, text string) (*domain.MentionedEntity, bool)
}

// Factory builds execution plans.
type Factory struct {
	sessions Sessions
	parser   *timeparse.Parser
	newID    func() string
	logger   *slog.Logger
}

// Option configures the Factory.
type Option func(*Factory)

// WithTimeParser configures how date and time entities are normalised.
func WithTimeParser(p *timeparse.Parser) Option {
	return func(f *Factory) {
		f.parser = p
	}
}

// WithIDs configures the plan id generator.
func WithIDs(newID func() string) Option {
	return func(f *Factory) {
		f.newID = newID
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = logger
	}
}

// NewFactory creates a Factory. sessions may be nil, in which case follow-up
// plans that depend on earlier results (formation, eco comparison of a shown trip)
// are not built.
func NewFactory(sessions Sessions, opts ...Option) *Factory {
	f := &Factory{
		sessions: sessions,
		parser:   timeparse.New(),
		newID:    uuid.NewString,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the plan for in, or nil when the intent needs no tools.
//
// Selection, first match wins:
//  1. eco travel style or a bike: eco trip plan
//  2. station search: station events plan
//  3. wheelchair: accessible trip plan
//  4. by intent type: trip, formation, weather, eco comparison
//
// The preference rules only apply to intents that name a route.
func (f *Factory) Create(in domain.Intent, c *domain.ConversationContext) *domain.ExecutionPlan {
	ents, err := decodeEntities(in)
	if err != nil {
		f.logger.Warn("Invalid intent entities", "intent", in.Type, "err", err)
		return nil
	}

	var prefs domain.Preferences
	if c != nil {
		prefs = c.Preferences
	}

	switch {
	case ents.hasRoute() && (prefs.TravelStyle == domain.StyleEco || prefs.Bike()):
		return f.tripPlan(NameEcoTrip, ents, c)
	case in.Type == domain.IntentStationSearch:
		return f.stationPlan(ents, c)
	case ents.hasRoute() && prefs.Wheelchair():
		return f.tripPlan(NameAccessibleTrip, ents, c)
	}

	switch in.Type {
	case domain.IntentTripPlanning:
		return f.tripPlan(NameTrip, ents, c)
	case domain.IntentTrainFormation:
		return f.formationPlan(ents, c)
	case domain.IntentWeatherCheck:
		return f.weatherPlan(ents, c)
	case domain.IntentEcoComparison:
		return f.ecoComparisonPlan(ents, c)
	}
	return nil
}

func (f *Factory) plan(name, description string, steps ...domain.ExecutionStep) *domain.ExecutionPlan {
	return &domain.ExecutionPlan{
		ID:          name + "-" + f.newID(),
		Name:        name,
		Description: description,
		Steps:       steps,
	}
}

// when normalises the date and time entities. Unparseable values are passed
// through for the tool to judge.
func (f *Factory) when(ents entities) (date, clock string) {
	if ents.Date == "" && ents.Time == "" {
		return "", ""
	}
	p, err := f.parser.ParseDatetime(ents.Date, ents.Time)
	if err != nil {
		f.logger.Debug("Could not normalise date/time", "date", ents.Date, "time", ents.Time, "err", err)
		return ents.Date, ents.Time
	}
	return p.Date, p.Time()
}

func (f *Factory) tripPlan(name string, ents entities, c *domain.ConversationContext) *domain.ExecutionPlan {
	origin, destination := ents.route(c)
	if origin == "" || destination == "" {
		return nil
	}
	date, clock := f.when(ents)
	return f.plan(name, "Trips from "+origin+" to "+destination,
		tripStep(origin, destination, date, clock, ents.IsArrivalTime),
		ecoStep(),
	)
}

func (f *Factory) stationPlan(ents entities, c *domain.ConversationContext) *domain.ExecutionPlan {
	station := ents.Station
	if station == "" {
		station = ents.Location
	}
	if station == "" && c != nil && c.Location.Origin != nil {
		station = c.Location.Origin.Name
	}
	if station == "" {
		return nil
	}

	eventType := ents.EventType
	if eventType == "" {
		eventType = "departures"
	}
	var dateTime string
	if ents.Date != "" || ents.Time != "" {
		if p, err := f.parser.ParseDatetime(ents.Date, ents.Time); err == nil {
			dateTime = p.DepartureTime.Format(time.RFC3339)
		}
	}
	return f.plan(NameStationEvents, "Board of "+station, stationSteps(station, eventType, dateTime)...)
}

func (f *Factory) weatherPlan(ents entities, c *domain.ConversationContext) *domain.ExecutionPlan {
	loc := ents.Location
	if loc == "" && c != nil {
		switch {
		case c.Location.Destination != nil:
			loc = c.Location.Destination.Name
		case c.Location.Origin != nil:
			loc = c.Location.Origin.Name
		}
	}
	if loc == "" {
		return nil
	}

	steps := []domain.ExecutionStep{{
		ID:       StepWeather,
		ToolName: domain.ToolGetWeather,
		Params:   domain.StaticParams{"location": loc},
	}}
	if reSnow.MatchString(ents.Message) {
		steps = append(steps, domain.ExecutionStep{
			ID:       StepSnow,
			ToolName: domain.ToolGetSnowConditions,
			Params:   domain.StaticParams{"location": loc},
			Optional: true,
		})
	}
	return f.plan(NameWeather, "Weather in "+loc, steps...)
}

func (f *Factory) formationPlan(ents entities, c *domain.ConversationContext) *domain.ExecutionPlan {
	journeyID := ents.TripID
	if journeyID == "" {
		journeyID = f.recoverJourney(ents, c)
	}
	if journeyID == "" {
		return nil
	}
	return f.plan(NameFormation, "Formation of "+journeyID, domain.ExecutionStep{
		ID:       StepFormation,
		ToolName: domain.ToolGetTrainFormation,
		Params:   domain.StaticParams{"journeyId": journeyID},
	})
}

// recoverJourney picks a journey from the most recent board or trip results,
// by ordinal reference, defaulting to the first entry.
func (f *Factory) recoverJourney(ents entities, c *domain.ConversationContext) string {
	if f.sessions == nil || c == nil {
		return ""
	}

	var list []map[string]any
	var newest time.Time
	for _, tool := range []string{domain.ToolGetPlaceEvents, domain.ToolFindTrips} {
		data, ok := f.sessions.LatestResult(c, tool)
		if !ok {
			continue
		}
		cached := c.RecentToolResults[tool].CachedAt
		if list != nil && !cached.After(newest) {
			continue
		}
		if got := items(data, "events", "departures", "arrivals", "trips", "connections"); len(got) > 0 {
			list, newest = got, cached
		}
	}
	if len(list) == 0 {
		return ""
	}

	idx := 0
	ref := ents.Reference
	if ref == "" {
		ref = ents.Message
	}
	if pos, ok := session.ParseOrdinal(ref); ok {
		switch {
		case pos == -1:
			idx = len(list) - 1
		case pos <= len(list):
			idx = pos - 1
		}
	}
	return str(list[idx], "journeyId", "id")
}

func (f *Factory) ecoComparisonPlan(ents entities, c *domain.ConversationContext) *domain.ExecutionPlan {
	if f.sessions != nil && c != nil {
		ref := ents.Reference
		if ref == "" {
			ref = "the first one"
		}
		if e, ok := f.sessions.ResolveReference(c, ref); ok && e.Type == domain.EntityTrip {
			if m, ok := e.Data.(map[string]any); ok {
				if id := str(m, "id"); id != "" {
					return f.plan(NameEcoComparison, "CO2 comparison of "+e.Name, domain.ExecutionStep{
						ID:       StepEcoComparison,
						ToolName: domain.ToolGetEcoComparison,
						Params:   domain.StaticParams{"tripId": id},
					})
				}
			}
		}
	}
	if ents.hasRoute() {
		return f.tripPlan(NameEcoTrip, ents, c)
	}
	return nil
}
