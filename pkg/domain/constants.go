package domain

import "time"

// Tool names understood by the orchestration core.
const (
	ToolFindTrips            = "findTrips"
	ToolGetEcoComparison     = "getEcoComparison"
	ToolGetWeather           = "getWeather"
	ToolGetSnowConditions    = "getSnowConditions"
	ToolFindStopPlacesByName = "findStopPlacesByName"
	ToolGetPlaceEvents       = "getPlaceEvents"
	ToolGetTrainFormation    = "getTrainFormation"
	ToolFindPlaces           = "findPlaces"
)

// UserLocationSentinel is the placeholder an intent uses for "where I am right now".
const UserLocationSentinel = "USER_LOCATION"

const (
	// MaxIntentHistory bounds ConversationContext.IntentHistory.
	MaxIntentHistory = 10

	// MaxMentionedEntities bounds MentionedPlaces and MentionedTrips.
	MaxMentionedEntities = 5
)

// Cache lifetimes per result kind.
const (
	TTLTrips    = 5 * time.Minute
	TTLWeather  = 30 * time.Minute
	TTLStations = 60 * time.Minute
	TTLDefault  = 5 * time.Minute
)

// CacheTTL returns how long a result of the given tool stays valid in the session cache.
func CacheTTL(toolName string) time.Duration {
	switch toolName {
	case ToolFindTrips, ToolGetEcoComparison:
		return TTLTrips
	case ToolGetWeather, ToolGetSnowConditions:
		return TTLWeather
	case ToolFindStopPlacesByName, ToolFindPlaces:
		return TTLStations
	default:
		return TTLDefault
	}
}
