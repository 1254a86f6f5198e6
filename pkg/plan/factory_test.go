package plan_test

import (
	"testing"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/plan"
	"github.com/aretw0/waypoint/pkg/session"
	"github.com/aretw0/waypoint/pkg/timeparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func newFactory(t *testing.T) (*plan.Factory, *session.Manager, *domain.ConversationContext) {
	t.Helper()
	m := session.NewManager(session.WithClock(clock))
	f := plan.NewFactory(m,
		plan.WithTimeParser(timeparse.New(timeparse.WithClock(clock))),
		plan.WithIDs(func() string { return "id" }),
	)
	return f, m, m.GetOrCreate("s1", "en")
}

func intentOf(kind domain.IntentType, ents map[string]any) domain.Intent {
	return domain.Intent{Type: kind, Confidence: 0.9, ExtractedEntities: ents}
}

func stepIDs(p *domain.ExecutionPlan) []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

func TestFactory_TripPlan(t *testing.T) {
	f, _, c := newFactory(t)

	p := f.Create(intentOf(domain.IntentTripPlanning, map[string]any{
		"origin": "Zurich", "destination": "Bern", "date": "tomorrow", "time": "9am",
	}), c)
	require.NotNil(t, p)
	assert.Equal(t, plan.NameTrip, p.Name)
	assert.Equal(t, "trip-id", p.ID)
	assert.Equal(t, []string{plan.StepFindTrips, plan.StepEcoComparison}, stepIDs(p))

	params := p.Steps[0].Params.Resolve(nil)
	assert.Equal(t, "Zurich", params["origin"])
	assert.Equal(t, "2024-01-16", params["date"])
	assert.Equal(t, "09:00", params["time"])
	assert.Equal(t, false, params["isArrivalTime"])

	eco := p.Steps[1]
	assert.Equal(t, []string{plan.StepFindTrips}, eco.DependsOn)
	assert.True(t, eco.Optional)
	assert.False(t, eco.Condition(domain.StepResults{}))
	assert.False(t, eco.Condition(domain.StepResults{plan.StepFindTrips: {Success: true, Data: []any{}}}))
	assert.False(t, eco.Condition(domain.StepResults{plan.StepFindTrips: {Success: false, Data: []any{map[string]any{"id": "t1"}}}}))

	ok := domain.StepResults{plan.StepFindTrips: {Success: true, Data: []any{map[string]any{"id": "t1"}}}}
	assert.True(t, eco.Condition(ok))
	assert.Equal(t, map[string]any{"tripId": "t1"}, eco.Params.Resolve(ok))
}

func TestFactory_TripUsesConversationAnchors(t *testing.T) {
	f, m, c := newFactory(t)
	m.UpdateLocation(c, "Basel", "")

	p := f.Create(intentOf(domain.IntentTripPlanning, map[string]any{"destination": "Luzern"}), c)
	require.NotNil(t, p)
	assert.Equal(t, "Basel", p.Steps[0].Params.Resolve(nil)["origin"])

	assert.Nil(t, f.Create(intentOf(domain.IntentTripPlanning, map[string]any{}), domain.NewConversationContext("x", "en", fixedNow)),
		"a trip needs both endpoints")
}

func TestFactory_PreferencePolicy(t *testing.T) {
	f, m, c := newFactory(t)
	route := map[string]any{"origin": "Zurich", "destination": "Bern"}

	m.MergePreferences(c, domain.Preferences{Accessibility: &domain.AccessibilityPreferences{Wheelchair: true}})
	assert.Equal(t, plan.NameAccessibleTrip, f.Create(intentOf(domain.IntentTripPlanning, route), c).Name)

	m.MergePreferences(c, domain.Preferences{Transport: &domain.TransportPreferences{Bike: true}})
	assert.Equal(t, plan.NameEcoTrip, f.Create(intentOf(domain.IntentTripPlanning, route), c).Name, "eco/bike wins over wheelchair")

	st := f.Create(intentOf(domain.IntentStationSearch, map[string]any{"station": "Bern"}), c)
	require.NotNil(t, st)
	assert.Equal(t, plan.NameStationEvents, st.Name, "preferences only reroute intents with a route")
}

func TestFactory_StationPlan(t *testing.T) {
	f, _, c := newFactory(t)

	p := f.Create(intentOf(domain.IntentStationSearch, map[string]any{"station": "Zürich HB", "eventType": "arrivals"}), c)
	require.NotNil(t, p)
	assert.Equal(t, []string{plan.StepFindStation, plan.StepStationEvents}, stepIDs(p))
	assert.Equal(t, map[string]any{"query": "Zürich HB", "limit": 1}, p.Steps[0].Params.Resolve(nil))

	events := p.Steps[1]
	assert.Equal(t, []string{plan.StepFindStation}, events.DependsOn)
	assert.Nil(t, events.Condition)

	got := events.Params.Resolve(domain.StepResults{
		plan.StepFindStation: {Success: true, Data: []any{map[string]any{"id": "8503000"}}},
	})
	assert.Equal(t, "8503000", got["placeId"])
	assert.Equal(t, "arrivals", got["eventType"])
	assert.Equal(t, plan.DefaultEventLimit, got["limit"])

	got = events.Params.Resolve(domain.StepResults{plan.StepFindStation: {Success: false}})
	assert.Equal(t, "Zürich HB", got["placeId"], "falls back to the name for the resolver")
}

func TestFactory_WeatherPlan(t *testing.T) {
	f, _, c := newFactory(t)

	p := f.Create(intentOf(domain.IntentWeatherCheck, map[string]any{
		"location": "St. Moritz", "message": "What's the weather in St. Moritz?",
	}), c)
	require.NotNil(t, p)
	assert.Equal(t, []string{plan.StepWeather}, stepIDs(p))

	p = f.Create(intentOf(domain.IntentWeatherCheck, map[string]any{
		"location": "Davos", "message": "How is the snow in Davos?",
	}), c)
	require.NotNil(t, p)
	assert.Equal(t, []string{plan.StepWeather, plan.StepSnow}, stepIDs(p))
	assert.True(t, p.Steps[1].Optional)
}

func TestFactory_FormationRecoversFromResults(t *testing.T) {
	f, m, c := newFactory(t)

	assert.Nil(t, f.Create(intentOf(domain.IntentTrainFormation, map[string]any{}), c), "nothing to recover yet")

	require.NoError(t, m.CacheToolResult(c, domain.ToolFindTrips, map[string]any{"origin": "A"}, []any{
		map[string]any{"id": "trip-1"},
		map[string]any{"id": "trip-2"},
		map[string]any{"id": "trip-3"},
	}))

	cases := map[string]string{
		"":         "trip-1",
		"second":   "trip-2",
		"#3":       "trip-3",
		"the last": "trip-3",
		"option 9": "trip-1",
	}
	for ref, want := range cases {
		p := f.Create(intentOf(domain.IntentTrainFormation, map[string]any{"reference": ref}), c)
		require.NotNil(t, p, ref)
		assert.Equal(t, want, p.Steps[0].Params.Resolve(nil)["journeyId"], ref)
	}

	p := f.Create(intentOf(domain.IntentTrainFormation, map[string]any{"tripId": "IC712"}), c)
	require.NotNil(t, p)
	assert.Equal(t, "IC712", p.Steps[0].Params.Resolve(nil)["journeyId"])
}

func TestFactory_EcoComparisonOfMentionedTrip(t *testing.T) {
	f, m, c := newFactory(t)
	m.RecordMentions(c, domain.ToolFindTrips, []any{map[string]any{"id": "t1"}, map[string]any{"id": "t2"}})

	p := f.Create(intentOf(domain.IntentEcoComparison, map[string]any{"reference": "second"}), c)
	require.NotNil(t, p)
	require.Len(t, p.Steps, 1)
	assert.Equal(t, map[string]any{"tripId": "t2"}, p.Steps[0].Params.Resolve(nil))
}

func TestFactory_GeneralQuestionHasNoPlan(t *testing.T) {
	f, _, c := newFactory(t)
	assert.Nil(t, f.Create(intentOf(domain.IntentGeneralQuestion, map[string]any{"message": "hi"}), c))
}
