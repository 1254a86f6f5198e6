package resolver

import (
	"github.com/mitchellh/mapstructure"
)

// place is the subset of a stop-place or place lookup result the resolvers read.
type place struct {
	ID          string    `mapstructure:"id"`
	Name        string    `mapstructure:"name"`
	Centroid    []float64 `mapstructure:"centroid"`
	Latitude    *float64  `mapstructure:"latitude"`
	Longitude   *float64  `mapstructure:"longitude"`
	Coordinates any       `mapstructure:"coordinates"`
	Geometry    any       `mapstructure:"geometry"`
}

var listKeys = []string{"places", "stopPlaces", "results", "features", "items", "data"}

// firstPlace extracts the first entry of a lookup payload: a bare array, an
// object wrapping one under a well-known key, or a single object.
func firstPlace(data any) (*place, bool) {
	item, ok := firstItem(data)
	if !ok {
		return nil, false
	}
	var p place
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, false
	}
	if err := dec.Decode(item); err != nil {
		return nil, false
	}
	return &p, true
}

func firstItem(data any) (map[string]any, bool) {
	switch v := data.(type) {
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		m, ok := v[0].(map[string]any)
		return m, ok
	case []map[string]any:
		if len(v) == 0 {
			return nil, false
		}
		return v[0], true
	case map[string]any:
		for _, key := range listKeys {
			if nested, ok := v[key]; ok {
				return firstItem(nested)
			}
		}
		return v, true
	default:
		return nil, false
	}
}

// latLon finds coordinates in the known shapes: a GeoJSON centroid or geometry
// [lon, lat], top-level latitude/longitude, or a nested coordinates object.
func (p *place) latLon() (lat, lon float64, ok bool) {
	if len(p.Centroid) >= 2 {
		return p.Centroid[1], p.Centroid[0], true
	}
	if p.Latitude != nil && p.Longitude != nil {
		return *p.Latitude, *p.Longitude, true
	}
	if lat, lon, ok := fromAny(p.Coordinates); ok {
		return lat, lon, true
	}
	if g, isMap := p.Geometry.(map[string]any); isMap {
		return fromAny(g["coordinates"])
	}
	return 0, 0, false
}

func fromAny(v any) (lat, lon float64, ok bool) {
	switch c := v.(type) {
	case []any:
		if len(c) < 2 {
			return 0, 0, false
		}
		lon, ok1 := number(c[0])
		lat, ok2 := number(c[1])
		return lat, lon, ok1 && ok2
	case []float64:
		if len(c) < 2 {
			return 0, 0, false
		}
		return c[1], c[0], true
	case map[string]any:
		lat, ok1 := number(c["latitude"])
		lon, ok2 := number(c["longitude"])
		return lat, lon, ok1 && ok2
	}
	return 0, 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
