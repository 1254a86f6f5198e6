package domain

import (
	"slices"
	"time"
)

// TravelStyle is the user's overall optimisation preference.
type TravelStyle string

const (
	StyleFastest     TravelStyle = "fastest"
	StyleCheapest    TravelStyle = "cheapest"
	StyleEco         TravelStyle = "eco"
	StyleComfortable TravelStyle = "comfortable"
	StyleBalanced    TravelStyle = "balanced"
)

// ParseTravelStyle maps free text onto a TravelStyle. Unknown values yield StyleBalanced and false.
func ParseTravelStyle(s string) (TravelStyle, bool) {
	switch TravelStyle(s) {
	case StyleFastest, StyleCheapest, StyleEco, StyleComfortable, StyleBalanced:
		return TravelStyle(s), true
	}
	return StyleBalanced, false
}

// AccessibilityPreferences captures mobility needs.
type AccessibilityPreferences struct {
	Wheelchair bool `json:"wheelchair,omitempty" mapstructure:"wheelchair"`
	StepFree   bool `json:"stepFree,omitempty" mapstructure:"stepFree"`
	Assistance bool `json:"assistance,omitempty" mapstructure:"assistance"`
}

// TransportPreferences captures mode and comfort sub-preferences.
type TransportPreferences struct {
	Modes        []string `json:"modes,omitempty" mapstructure:"modes"`
	AvoidModes   []string `json:"avoidModes,omitempty" mapstructure:"avoidModes"`
	Bike         bool     `json:"bike,omitempty" mapstructure:"bike"`
	MaxTransfers *int     `json:"maxTransfers,omitempty" mapstructure:"maxTransfers"`
	Class        string   `json:"class,omitempty" mapstructure:"class"`
}

// Preferences is the merged, long-lived travel profile of a session.
type Preferences struct {
	TravelStyle   TravelStyle               `json:"travelStyle" mapstructure:"travelStyle"`
	Accessibility *AccessibilityPreferences `json:"accessibility,omitempty" mapstructure:"accessibility"`
	Transport     *TransportPreferences     `json:"transport,omitempty" mapstructure:"transport"`
}

// Merge folds src into p. Zero values in src never overwrite existing settings.
func (p *Preferences) Merge(src Preferences) {
	if src.TravelStyle != "" {
		p.TravelStyle = src.TravelStyle
	}
	if src.Accessibility != nil {
		if p.Accessibility == nil {
			p.Accessibility = &AccessibilityPreferences{}
		}
		p.Accessibility.Wheelchair = p.Accessibility.Wheelchair || src.Accessibility.Wheelchair
		p.Accessibility.StepFree = p.Accessibility.StepFree || src.Accessibility.StepFree
		p.Accessibility.Assistance = p.Accessibility.Assistance || src.Accessibility.Assistance
	}
	if src.Transport != nil {
		if p.Transport == nil {
			p.Transport = &TransportPreferences{}
		}
		if len(src.Transport.Modes) > 0 {
			p.Transport.Modes = slices.Clone(src.Transport.Modes)
		}
		if len(src.Transport.AvoidModes) > 0 {
			p.Transport.AvoidModes = slices.Clone(src.Transport.AvoidModes)
		}
		p.Transport.Bike = p.Transport.Bike || src.Transport.Bike
		if src.Transport.MaxTransfers != nil {
			v := *src.Transport.MaxTransfers
			p.Transport.MaxTransfers = &v
		}
		if src.Transport.Class != "" {
			p.Transport.Class = src.Transport.Class
		}
	}
}

// Wheelchair reports whether the profile requires wheelchair-accessible connections.
func (p Preferences) Wheelchair() bool {
	return p.Accessibility != nil && p.Accessibility.Wheelchair
}

// Bike reports whether the user travels with a bike.
func (p Preferences) Bike() bool {
	return p.Transport != nil && p.Transport.Bike
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
}

// Place is a named location, optionally resolved to coordinates or a stop id.
type Place struct {
	Name        string       `json:"name" mapstructure:"name"`
	Coordinates *Coordinates `json:"coordinates,omitempty" mapstructure:"coordinates"`
	StopID      string       `json:"stopId,omitempty" mapstructure:"stopId"`
}

// Location holds the origin/destination anchors of the conversation.
type Location struct {
	Origin      *Place `json:"origin,omitempty"`
	Destination *Place `json:"destination,omitempty"`
}

// TimeAnchor holds the temporal anchors of the conversation.
type TimeAnchor struct {
	Departure *time.Time    `json:"departure,omitempty"`
	Arrival   *time.Time    `json:"arrival,omitempty"`
	ArriveBy  bool          `json:"arriveBy,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// CachedToolResult is a tool result kept in a session for reuse within its TTL.
// Params is the JSON encoding of the call parameters; ParamsHash indexes it.
type CachedToolResult struct {
	ToolName   string    `json:"toolName"`
	Params     string    `json:"params"`
	ParamsHash uint64    `json:"paramsHash"`
	Data       any       `json:"data"`
	CachedAt   time.Time `json:"cachedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Entity kinds recorded for reference resolution.
const (
	EntityTrip  = "trip"
	EntityPlace = "place"
)

// MentionedEntity is something shown to the user that a later turn may refer back to.
// ReferenceIndex is 1-based.
type MentionedEntity struct {
	Type           string    `json:"type"`
	Name           string    `json:"name"`
	Data           any       `json:"data,omitempty"`
	MentionedAt    time.Time `json:"mentionedAt"`
	ReferenceIndex int       `json:"referenceIndex"`
}

// ConversationContext is the per-session conversational state.
// It is owned by the session manager and mutated in place by the turn processing it.
type ConversationContext struct {
	SessionID   string    `json:"sessionId"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"createdAt"`
	LastUpdated time.Time `json:"lastUpdated"`

	Preferences Preferences `json:"preferences"`
	Location    Location    `json:"location"`
	Time        TimeAnchor  `json:"time"`

	CurrentIntent *Intent  `json:"currentIntent,omitempty"`
	IntentHistory []Intent `json:"intentHistory"`

	// RecentToolResults holds the latest result of each tool.
	RecentToolResults map[string]CachedToolResult `json:"recentToolResults"`

	MentionedPlaces []MentionedEntity `json:"mentionedPlaces"`
	MentionedTrips  []MentionedEntity `json:"mentionedTrips"`
}

// NewConversationContext creates an empty context with default preferences.
func NewConversationContext(sessionID, language string, now time.Time) *ConversationContext {
	if language == "" {
		language = "en"
	}
	return &ConversationContext{
		SessionID:         sessionID,
		Language:          language,
		CreatedAt:         now,
		LastUpdated:       now,
		Preferences:       Preferences{TravelStyle: StyleBalanced},
		IntentHistory:     []Intent{},
		RecentToolResults: make(map[string]CachedToolResult),
		MentionedPlaces:   []MentionedEntity{},
		MentionedTrips:    []MentionedEntity{},
	}
}
