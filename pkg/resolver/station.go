package resolver

import (
	"context"
	"regexp"

	"github.com/aretw0/waypoint/pkg/domain"
)

var stationCode = regexp.MustCompile(`^\d{7,8}$`)

// StationResolver replaces station names with their canonical 7-8 digit code
// using a findStopPlacesByName lookup.
type StationResolver struct {
	// fields maps a tool to the parameter holding its station reference.
	fields map[string]string
}

// NewStationResolver handles getPlaceEvents.placeId and getTrainFormation.stopPlaceId.
func NewStationResolver() *StationResolver {
	return &StationResolver{
		fields: map[string]string{
			domain.ToolGetPlaceEvents:    "placeId",
			domain.ToolGetTrainFormation: "stopPlaceId",
		},
	}
}

func (s *StationResolver) Name() string { return "station" }

func (s *StationResolver) CanResolve(tool string, params map[string]any) bool {
	field, ok := s.fields[tool]
	if !ok {
		return false
	}
	ref, ok := params[field].(string)
	return ok && ref != "" && !stationCode.MatchString(ref)
}

func (s *StationResolver) Resolve(ctx context.Context, tool string, params map[string]any, exec ExecuteFunc) map[string]any {
	field := s.fields[tool]
	name, _ := params[field].(string)

	res := exec(ctx, domain.ToolFindStopPlacesByName, map[string]any{"query": name, "limit": 1})
	if !res.Success {
		return params
	}
	p, ok := firstPlace(res.Data)
	if !ok || p.ID == "" {
		return params
	}

	out := clone(params)
	out[field] = p.ID
	return out
}
