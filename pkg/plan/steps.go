package plan

import (
	"fmt"

	"github.com/aretw0/waypoint/pkg/domain"
)

// Step ids.
const (
	StepFindTrips     = "find_trips"
	StepEcoComparison = "eco_comparison"
	StepFindStation   = "find_station"
	StepStationEvents = "station_events"
	StepWeather       = "weather"
	StepSnow          = "snow_conditions"
	StepFormation     = "train_formation"
)

// DefaultEventLimit is the number of board entries requested per station.
const DefaultEventLimit = 10

// items returns the list payload of a step result, unwrapping common wrapper keys.
func items(data any, keys ...string) []map[string]any {
	switch v := data.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, it := range v {
			if m, ok := it.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return v
	case map[string]any:
		for _, k := range keys {
			if nested, ok := v[k]; ok {
				return items(nested)
			}
		}
	}
	return nil
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}

// firstTripID returns the id of the first trip of a findTrips step.
func firstTripID(r domain.StepResult) string {
	trips := items(r.Data, "trips", "connections", "results")
	if len(trips) == 0 {
		return ""
	}
	return str(trips[0], "id")
}

// hasFirstTripID is the condition of the eco comparison step.
func hasFirstTripID(prior domain.StepResults) bool {
	r, ok := prior[StepFindTrips]
	return ok && r.Success && firstTripID(r) != ""
}

// tripStep builds the findTrips step.
func tripStep(origin, destination, date, clock string, arriveBy bool) domain.ExecutionStep {
	params := domain.StaticParams{
		"origin":        origin,
		"destination":   destination,
		"date":          date,
		"time":          clock,
		"isArrivalTime": arriveBy,
	}
	return domain.ExecutionStep{
		ID:       StepFindTrips,
		ToolName: domain.ToolFindTrips,
		Params:   params,
	}
}

// ecoStep compares the first trip found by the findTrips step.
func ecoStep() domain.ExecutionStep {
	return domain.ExecutionStep{
		ID:       StepEcoComparison,
		ToolName: domain.ToolGetEcoComparison,
		Params: domain.ParamsFunc(func(prior domain.StepResults) map[string]any {
			return map[string]any{"tripId": firstTripID(prior[StepFindTrips])}
		}),
		DependsOn: []string{StepFindTrips},
		Optional:  true,
		Condition: hasFirstTripID,
	}
}

// stationSteps looks the station up, then reads its board.
func stationSteps(station, eventType, dateTime string) []domain.ExecutionStep {
	lookup := domain.ExecutionStep{
		ID:       StepFindStation,
		ToolName: domain.ToolFindStopPlacesByName,
		Params:   domain.StaticParams{"query": station, "limit": 1},
	}
	events := domain.ExecutionStep{
		ID:       StepStationEvents,
		ToolName: domain.ToolGetPlaceEvents,
		Params: domain.ParamsFunc(func(prior domain.StepResults) map[string]any {
			placeID := station
			if r, ok := prior[StepFindStation]; ok && r.Success {
				if places := items(r.Data, "places", "stopPlaces", "results"); len(places) > 0 {
					if id := str(places[0], "id", "stopPlaceId"); id != "" {
						placeID = id
					}
				}
			}
			params := map[string]any{
				"placeId":   placeID,
				"eventType": eventType,
				"limit":     DefaultEventLimit,
			}
			if dateTime != "" {
				params["dateTime"] = dateTime
			}
			return params
		}),
		DependsOn: []string{StepFindStation},
	}
	return []domain.ExecutionStep{lookup, events}
}
