package plan

import (
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// entities is the typed view of domain.Intent.ExtractedEntities.
type entities struct {
	Origin        string `mapstructure:"origin"`
	Destination   string `mapstructure:"destination"`
	Date          string `mapstructure:"date"`
	Time          string `mapstructure:"time"`
	IsArrivalTime bool   `mapstructure:"isArrivalTime"`
	Location      string `mapstructure:"location"`
	Station       string `mapstructure:"station"`
	EventType     string `mapstructure:"eventType"`
	TripID        string `mapstructure:"tripId"`
	Reference     string `mapstructure:"reference"`
	Message       string `mapstructure:"message"`
}

func decodeEntities(in domain.Intent) (entities, error) {
	var e entities
	if len(in.ExtractedEntities) == 0 {
		return e, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &e,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return e, err
	}
	return e, dec.Decode(in.ExtractedEntities)
}

// route fills missing endpoints from the conversation anchors.
func (e entities) route(c *domain.ConversationContext) (origin, destination string) {
	origin, destination = e.Origin, e.Destination
	if c == nil {
		return origin, destination
	}
	if origin == "" && c.Location.Origin != nil {
		origin = c.Location.Origin.Name
	}
	if destination == "" && c.Location.Destination != nil {
		destination = c.Location.Destination.Name
	}
	return origin, destination
}

// hasRoute reports whether the intent itself names where to travel.
func (e entities) hasRoute() bool {
	return e.Origin != "" || e.Destination != ""
}
