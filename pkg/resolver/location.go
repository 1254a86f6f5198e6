package resolver

import (
	"context"

	"github.com/aretw0/waypoint/pkg/domain"
)

// LocationResolver injects latitude/longitude into weather lookups that only
// name a place, using a findPlaces lookup.
type LocationResolver struct {
	tools map[string]bool
}

// NewLocationResolver handles getWeather and getSnowConditions.
func NewLocationResolver() *LocationResolver {
	return &LocationResolver{
		tools: map[string]bool{
			domain.ToolGetWeather:        true,
			domain.ToolGetSnowConditions: true,
		},
	}
}

func (l *LocationResolver) Name() string { return "location" }

func (l *LocationResolver) CanResolve(tool string, params map[string]any) bool {
	if !l.tools[tool] {
		return false
	}
	_, hasLat := params["latitude"]
	_, hasLon := params["longitude"]
	if hasLat && hasLon {
		return false
	}
	return locationName(params) != ""
}

func locationName(params map[string]any) string {
	for _, key := range []string{"location", "locationName"} {
		if s, ok := params[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (l *LocationResolver) Resolve(ctx context.Context, tool string, params map[string]any, exec ExecuteFunc) map[string]any {
	res := exec(ctx, domain.ToolFindPlaces, map[string]any{"query": locationName(params), "limit": 1})
	if !res.Success {
		return params
	}
	p, ok := firstPlace(res.Data)
	if !ok {
		return params
	}
	lat, lon, ok := p.latLon()
	if !ok {
		return params
	}

	out := clone(params)
	out["latitude"] = lat
	out["longitude"] = lon
	return out
}
