package domain

import (
	"sort"
	"time"
)

// IntentType classifies a user goal.
type IntentType string

const (
	IntentTripPlanning    IntentType = "trip_planning"
	IntentStationSearch   IntentType = "station_search"
	IntentWeatherCheck    IntentType = "weather_check"
	IntentTrainFormation  IntentType = "train_formation"
	IntentEcoComparison   IntentType = "eco_comparison"
	IntentGeneralQuestion IntentType = "general_question"
)

// Entity keys commonly found in Intent.ExtractedEntities.
const (
	EntityOrigin        = "origin"
	EntityDestination   = "destination"
	EntityDate          = "date"
	EntityTime          = "time"
	EntityIsArrivalTime = "isArrivalTime"
	EntityLocation      = "location"
	EntityStation       = "station"
	EntityEventType     = "eventType"
	EntityTripID        = "tripId"
	EntityReference     = "reference"
	EntityPreferences   = "preferences"
	EntitySubQueries    = "subQueries"
	EntityMessage       = "message"
)

// Intent is a classified user goal extracted from one message.
type Intent struct {
	Type              IntentType     `json:"type" mapstructure:"type"`
	Confidence        float64        `json:"confidence" mapstructure:"confidence"`
	ExtractedEntities map[string]any `json:"extractedEntities" mapstructure:"extractedEntities"`
	Timestamp         time.Time      `json:"timestamp" mapstructure:"-"`
	Priority          int            `json:"priority,omitempty" mapstructure:"priority"`
}

// Entity returns the string entity stored under key, or "".
func (i Intent) Entity(key string) string {
	if i.ExtractedEntities == nil {
		return ""
	}
	s, _ := i.ExtractedEntities[key].(string)
	return s
}

// SortByPriority orders intents by ascending Priority, keeping extraction order for ties.
func SortByPriority(intents []Intent) []Intent {
	out := make([]Intent, len(intents))
	copy(out, intents)
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Priority < out[b].Priority
	})
	return out
}
