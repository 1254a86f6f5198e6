package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
)

type demoStation struct {
	ID   string
	Name string
	Lat  float64
	Lon  float64
}

var demoStations = []demoStation{
	{"8503000", "Zürich HB", 47.3782, 8.5402},
	{"8507000", "Bern", 46.9490, 7.4391},
	{"8505000", "Luzern", 47.0502, 8.3102},
	{"8500010", "Basel SBB", 47.5474, 7.5896},
	{"8501008", "Genève", 46.2102, 6.1424},
	{"8509253", "St. Moritz", 46.4983, 9.8459},
	{"8505300", "Interlaken Ost", 46.6905, 7.8690},
}

func findStation(query string) (demoStation, bool) {
	q := fold(query)
	if q == "" {
		return demoStation{}, false
	}
	for _, s := range demoStations {
		if s.ID == query || strings.Contains(fold(s.Name), q) || strings.Contains(q, fold(s.Name)) {
			return s, true
		}
	}
	return demoStation{}, false
}

func fold(s string) string {
	r := strings.NewReplacer("ü", "u", "ö", "o", "ä", "a", "è", "e", "é", "e", ".", "")
	return strings.TrimSpace(r.Replace(strings.ToLower(s)))
}

// mcpText wraps v the way MCP tool servers do.
func mcpText(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return map[string]any{"content": []any{map[string]any{"type": "text", "text": string(b)}}}, nil
}

func arg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// RegisterDemoTools installs deterministic stand-ins for the eight travel tools.
// Results are MCP-wrapped so they exercise the same envelope parsing as the real backend.
func RegisterDemoTools(r *Registry) {
	r.Register(domain.ToolFindStopPlacesByName, func(_ context.Context, args map[string]any) (any, error) {
		s, ok := findStation(arg(args, "query"))
		if !ok {
			return mcpText([]any{})
		}
		return mcpText([]any{map[string]any{"id": s.ID, "name": s.Name, "centroid": []float64{s.Lon, s.Lat}}})
	})

	r.Register(domain.ToolFindPlaces, func(_ context.Context, args map[string]any) (any, error) {
		s, ok := findStation(arg(args, "query"))
		if !ok {
			return mcpText([]any{})
		}
		return mcpText([]any{map[string]any{"id": s.ID, "name": s.Name, "type": "city", "centroid": []float64{s.Lon, s.Lat}}})
	})

	r.Register(domain.ToolFindTrips, func(_ context.Context, args map[string]any) (any, error) {
		from, to := arg(args, "origin"), arg(args, "destination")
		if from == "" || to == "" {
			return nil, &domain.RemoteError{Status: 400, Message: "origin and destination are required"}
		}
		date, clock := arg(args, "date"), arg(args, "time")
		if date == "" {
			date = time.Now().Format("2006-01-02")
		}
		if clock == "" {
			clock = "09:00"
		}
		dep, err := time.Parse("2006-01-02 15:04", date+" "+clock)
		if err != nil {
			return nil, &domain.RemoteError{Status: 400, Message: fmt.Sprintf("invalid date/time %q %q", date, clock)}
		}
		origin, destination := from, to
		if s, ok := findStation(from); ok {
			origin = s.Name
		}
		if s, ok := findStation(to); ok {
			destination = s.Name
		}
		trips := make([]any, 0, 3)
		for i := 0; i < 3; i++ {
			d := dep.Add(time.Duration(i*30) * time.Minute)
			a := d.Add(56 * time.Minute)
			trips = append(trips, map[string]any{
				"id":          fmt.Sprintf("trip-%s-%d", d.Format("20060102T1504"), i+1),
				"origin":      origin,
				"destination": destination,
				"departure":   d.Format(time.RFC3339),
				"arrival":     a.Format(time.RFC3339),
				"duration":    "PT56M",
				"transfers":   i % 2,
				"trainNumber": fmt.Sprintf("IC %d", 700+i*2),
			})
		}
		return mcpText(trips)
	})

	r.Register(domain.ToolGetEcoComparison, func(_ context.Context, args map[string]any) (any, error) {
		id := arg(args, "tripId")
		if id == "" {
			return nil, &domain.RemoteError{Status: 400, Message: "tripId is required"}
		}
		return mcpText(map[string]any{
			"tripId":      id,
			"trainCo2Kg":  0.6,
			"carCo2Kg":    19.4,
			"planeCo2Kg":  0,
			"savingsKg":   18.8,
			"savingsRate": 0.97,
		})
	})

	r.Register(domain.ToolGetWeather, func(_ context.Context, args map[string]any) (any, error) {
		lat, okLat := args["latitude"].(float64)
		lon, okLon := args["longitude"].(float64)
		if !okLat || !okLon {
			return nil, &domain.RemoteError{Status: 400, Message: "latitude and longitude are required"}
		}
		return mcpText(map[string]any{
			"location":    arg(args, "location"),
			"latitude":    lat,
			"longitude":   lon,
			"temperature": 3.5,
			"condition":   "light snow",
			"windKph":     12,
		})
	})

	r.Register(domain.ToolGetSnowConditions, func(_ context.Context, args map[string]any) (any, error) {
		if _, ok := args["latitude"].(float64); !ok {
			return nil, &domain.RemoteError{Status: 400, Message: "latitude is required"}
		}
		return mcpText(map[string]any{
			"location":     arg(args, "location"),
			"snowDepthCm":  85,
			"freshSnowCm":  12,
			"liftsOpen":    21,
			"slopesOpenKm": 140,
		})
	})

	r.Register(domain.ToolGetPlaceEvents, func(_ context.Context, args map[string]any) (any, error) {
		id := arg(args, "placeId")
		s, ok := findStation(id)
		if !ok || s.ID != id {
			return nil, &domain.RemoteError{Status: 404, Message: fmt.Sprintf("unknown stop place %q", id)}
		}
		kind := arg(args, "eventType")
		if kind == "" {
			kind = "departures"
		}
		events := make([]any, 0, 4)
		for i, dest := range []string{"Bern", "Luzern", "Basel SBB", "Genève"} {
			events = append(events, map[string]any{
				"id":          fmt.Sprintf("%s-%d", s.ID, i+1),
				"time":        fmt.Sprintf("10:%02d", i*12),
				"destination": dest,
				"platform":    fmt.Sprint(3 + i),
				"trainNumber": fmt.Sprintf("IR %d", 15+i*10),
			})
		}
		return mcpText(map[string]any{"station": s.Name, "eventType": kind, "events": events})
	})

	r.Register(domain.ToolGetTrainFormation, func(_ context.Context, args map[string]any) (any, error) {
		id := arg(args, "journeyId")
		if id == "" {
			return nil, &domain.RemoteError{Status: 400, Message: "journeyId is required"}
		}
		return mcpText(map[string]any{
			"journeyId": id,
			"sectors":   []string{"A", "B", "C", "D"},
			"coaches": []any{
				map[string]any{"number": 1, "class": "1", "sector": "A"},
				map[string]any{"number": 2, "class": "2", "sector": "B", "bike": true},
				map[string]any{"number": 3, "class": "2", "sector": "C", "restaurant": true},
				map[string]any{"number": 4, "class": "2", "sector": "D", "wheelchair": true},
			},
		})
	})
}

// NewDemo returns a registry preloaded with the demo tools.
func NewDemo() *Registry {
	r := NewRegistry()
	RegisterDemoTools(r)
	return r
}
