package intent_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/aretw0/waypoint/pkg/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func rules() *intent.RuleExtractor {
	return intent.NewRuleExtractor(intent.WithClock(func() time.Time { return fixedNow }))
}

func extractOne(t *testing.T, msg string) domain.Intent {
	t.Helper()
	got, err := rules().Extract(context.Background(), msg, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	return got[0]
}

func TestRuleExtractor_Trip(t *testing.T) {
	in := extractOne(t, "Find trains from Zurich to Bern tomorrow at 9am")

	assert.Equal(t, domain.IntentTripPlanning, in.Type)
	assert.GreaterOrEqual(t, in.Confidence, 0.7)
	assert.Equal(t, "Zurich", in.Entity(domain.EntityOrigin))
	assert.Equal(t, "Bern", in.Entity(domain.EntityDestination))
	assert.Equal(t, "tomorrow", in.Entity(domain.EntityDate))
	assert.Equal(t, "9am", in.Entity(domain.EntityTime))
	assert.Equal(t, fixedNow, in.Timestamp)
}

func TestRuleExtractor_TripVariants(t *testing.T) {
	in := extractOne(t, "I need to arrive at Geneva from Basel by 18:30")
	assert.Equal(t, domain.IntentTripPlanning, in.Type)
	assert.Equal(t, true, in.ExtractedEntities[domain.EntityIsArrivalTime])
	assert.Equal(t, "Geneva", in.Entity(domain.EntityDestination))
	assert.Equal(t, "Basel", in.Entity(domain.EntityOrigin))

	in = extractOne(t, "train from here to Luzern")
	assert.Equal(t, domain.UserLocationSentinel, in.Entity(domain.EntityOrigin))
	assert.Equal(t, "Luzern", in.Entity(domain.EntityDestination))

	in = extractOne(t, "How do I get to St. Moritz?")
	assert.Equal(t, domain.IntentTripPlanning, in.Type)
	assert.Equal(t, "St. Moritz", in.Entity(domain.EntityDestination))
}

func TestRuleExtractor_Weather(t *testing.T) {
	in := extractOne(t, "What's the weather in St. Moritz?")
	assert.Equal(t, domain.IntentWeatherCheck, in.Type)
	assert.Equal(t, "St. Moritz", in.Entity(domain.EntityLocation))
}

func TestRuleExtractor_Station(t *testing.T) {
	in := extractOne(t, "Show me the arrivals at Zürich HB")
	assert.Equal(t, domain.IntentStationSearch, in.Type)
	assert.Equal(t, "Zürich HB", in.Entity(domain.EntityStation))
	assert.Equal(t, "arrivals", in.Entity(domain.EntityEventType))
}

func TestRuleExtractor_Formation(t *testing.T) {
	in := extractOne(t, "What is the formation of the second one?")
	assert.Equal(t, domain.IntentTrainFormation, in.Type)
	assert.Equal(t, "second", in.Entity(domain.EntityReference))

	in = extractOne(t, "Which sector is the dining car of IC 712?")
	assert.Equal(t, "IC712", in.Entity(domain.EntityTripID))
}

func TestRuleExtractor_MultiIntentKeepsOrder(t *testing.T) {
	got, err := rules().Extract(context.Background(),
		"Find trains from Zurich to Davos tomorrow and also what's the snow forecast in Davos", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, domain.IntentTripPlanning, got[0].Type)
	assert.Equal(t, 0, got[0].Priority)
	assert.Equal(t, domain.IntentWeatherCheck, got[1].Type)
	assert.Equal(t, 1, got[1].Priority)
	assert.Equal(t, "Davos", got[1].Entity(domain.EntityLocation))
}

func TestRuleExtractor_Fallback(t *testing.T) {
	in := extractOne(t, "Tell me a joke")
	assert.Equal(t, domain.IntentGeneralQuestion, in.Type)
	assert.Equal(t, intent.FallbackConfidence, in.Confidence)
	assert.Equal(t, "Tell me a joke", in.Entity(domain.EntityMessage))
}

func TestRuleExtractor_Preferences(t *testing.T) {
	in := extractOne(t, "wheelchair accessible trains from Bern to Basel")
	prefs, err := intent.DecodePreferences(in.ExtractedEntities[domain.EntityPreferences])
	require.NoError(t, err)
	assert.True(t, prefs.Wheelchair())

	in = extractOne(t, "the greenest way from Bern to Thun with my bike")
	prefs, err = intent.DecodePreferences(in.ExtractedEntities[domain.EntityPreferences])
	require.NoError(t, err)
	assert.Equal(t, domain.StyleEco, prefs.TravelStyle)
	assert.True(t, prefs.Bike())
}

type generatorMock struct {
	mock.Mock
}

func (m *generatorMock) GenerateContent(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func TestLLMExtractor_ParsesFencedJSON(t *testing.T) {
	gen := new(generatorMock)
	gen.On("GenerateContent", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Zurich to Bern")
	})).Return("```json\n[{\"type\":\"trip_planning\",\"confidence\":\"0.92\",\"extractedEntities\":{\"origin\":\"Zurich\",\"destination\":\"Bern\"}}]\n```", nil)

	e := intent.NewLLMExtractor(gen, intent.WithLLMClock(func() time.Time { return fixedNow }))
	c := domain.NewConversationContext("s1", "en", fixedNow)

	got, err := e.Extract(context.Background(), "trains Zurich to Bern", c)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.IntentTripPlanning, got[0].Type)
	assert.InDelta(t, 0.92, got[0].Confidence, 1e-9)
	assert.Equal(t, "Bern", got[0].Entity(domain.EntityDestination))
	assert.Equal(t, fixedNow, got[0].Timestamp)
	gen.AssertExpectations(t)
}

func TestLLMExtractor_FallsBackToRules(t *testing.T) {
	gen := new(generatorMock)
	gen.On("GenerateContent", mock.Anything, mock.Anything).Return("", errors.New("quota exceeded")).Once()
	gen.On("GenerateContent", mock.Anything, mock.Anything).Return("I am not sure.", nil).Once()

	e := intent.NewLLMExtractor(gen)

	for range 2 {
		got, err := e.Extract(context.Background(), "What's the weather in Bern?", nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, domain.IntentWeatherCheck, got[0].Type)
	}
	gen.AssertExpectations(t)
}

func TestParseIntents(t *testing.T) {
	got, err := intent.ParseIntents(`{"type":"teleport","confidence":7}`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.IntentGeneralQuestion, got[0].Type)
	assert.Equal(t, 1.0, got[0].Confidence)

	got, err = intent.ParseIntents(`Here: [{"type":"weather_check","confidence":0.8,"priority":2},{"type":"trip_planning","confidence":0.9}]`)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Priority)
	assert.Equal(t, 1, got[1].Priority, "position is the default priority")

	_, err = intent.ParseIntents("[]")
	assert.Error(t, err)

	_, err = intent.ParseIntents("nothing here")
	assert.Error(t, err)
}

func TestParseStructure(t *testing.T) {
	msg := `Plan my day

## Preferences
- Travel style: eco
- Wheelchair: yes
- Max transfers: 1

1. Trains from Zurich to Bern at 9am
2. Weather in Bern`

	s := intent.ParseStructure(msg)
	require.NotNil(t, s)
	assert.Equal(t, "eco", s.Preferences["travel style"])
	assert.Equal(t, []string{"Trains from Zurich to Bern at 9am", "Weather in Bern"}, s.SubQueries)

	p := s.Profile()
	assert.Equal(t, domain.StyleEco, p.TravelStyle)
	assert.True(t, p.Wheelchair())
	require.NotNil(t, p.Transport)
	require.NotNil(t, p.Transport.MaxTransfers)
	assert.Equal(t, 1, *p.Transport.MaxTransfers)

	ents := s.Entities()
	decoded, err := intent.DecodePreferences(ents[domain.EntityPreferences])
	require.NoError(t, err)
	assert.Equal(t, p.TravelStyle, decoded.TravelStyle)
	assert.True(t, decoded.Wheelchair())

	assert.Nil(t, intent.ParseStructure("just a plain question"))
}
