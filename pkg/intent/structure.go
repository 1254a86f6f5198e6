package intent

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Structure is the explicit markdown structure of a message: a preferences
// section of "- key: value" bullets and a numbered list of sub-queries.
type Structure struct {
	Preferences map[string]string
	SubQueries  []string
}

var (
	reHeading  = regexp.MustCompile(`^\s*(?:#{1,6}\s+(.+?)|\*\*(.+?)\*\*:?|(.+?):)\s*$`)
	reKeyValue = regexp.MustCompile(`^\s*[-*+]\s+([^:]+?)\s*:\s*(.+?)\s*$`)
	reNumbered = regexp.MustCompile(`^\s*\d+[.)]\s+(.+?)\s*$`)
)

// ParseStructure extracts the markdown structure of message, or nil when it has none.
func ParseStructure(message string) *Structure {
	s := &Structure{Preferences: map[string]string{}}
	inPrefs := false

	for _, line := range strings.Split(message, "\n") {
		if m := reNumbered.FindStringSubmatch(line); m != nil {
			s.SubQueries = append(s.SubQueries, m[1])
			continue
		}
		if m := reKeyValue.FindStringSubmatch(line); m != nil {
			if inPrefs {
				s.Preferences[strings.ToLower(m[1])] = m[2]
			}
			continue
		}
		if m := reHeading.FindStringSubmatch(line); m != nil {
			title := m[1] + m[2] + m[3]
			inPrefs = strings.Contains(strings.ToLower(title), "preference")
		}
	}

	if len(s.Preferences) == 0 && len(s.SubQueries) == 0 {
		return nil
	}
	return s
}

// Entities returns the structure in intent entity form.
func (s *Structure) Entities() map[string]any {
	ents := map[string]any{}
	if p := s.Profile(); p != (domain.Preferences{}) {
		ents[domain.EntityPreferences] = PreferencesEntity(p)
	}
	if len(s.SubQueries) > 0 {
		ents[domain.EntitySubQueries] = append([]string(nil), s.SubQueries...)
	}
	return ents
}

// Profile interprets the preference bullets.
func (s *Structure) Profile() domain.Preferences {
	var p domain.Preferences
	for key, value := range s.Preferences {
		v := strings.ToLower(strings.TrimSpace(value))
		switch key {
		case "style", "travel style", "travelstyle", "priority":
			if style, ok := domain.ParseTravelStyle(v); ok {
				p.TravelStyle = style
			}
		case "wheelchair", "accessibility", "step-free", "step free":
			if truthy(v) {
				p.Accessibility = &domain.AccessibilityPreferences{Wheelchair: key != "step-free" && key != "step free", StepFree: true}
			}
		case "bike", "bicycle":
			if truthy(v) {
				if p.Transport == nil {
					p.Transport = &domain.TransportPreferences{}
				}
				p.Transport.Bike = true
			}
		case "max transfers", "transfers":
			if n, err := strconv.Atoi(v); err == nil {
				if p.Transport == nil {
					p.Transport = &domain.TransportPreferences{}
				}
				p.Transport.MaxTransfers = &n
			}
		case "class":
			if p.Transport == nil {
				p.Transport = &domain.TransportPreferences{}
			}
			p.Transport.Class = v
		}
	}
	return p
}

func truthy(v string) bool {
	switch v {
	case "yes", "y", "true", "1", "required", "needed", "on":
		return true
	}
	return false
}

// PreferencesEntity encodes p with the mapstructure keys DecodePreferences reads.
func PreferencesEntity(p domain.Preferences) map[string]any {
	out := map[string]any{}
	if p.TravelStyle != "" {
		out["travelStyle"] = string(p.TravelStyle)
	}
	if a := p.Accessibility; a != nil {
		out["accessibility"] = map[string]any{
			"wheelchair": a.Wheelchair,
			"stepFree":   a.StepFree,
			"assistance": a.Assistance,
		}
	}
	if t := p.Transport; t != nil {
		tr := map[string]any{"bike": t.Bike}
		if len(t.Modes) > 0 {
			tr["modes"] = t.Modes
		}
		if len(t.AvoidModes) > 0 {
			tr["avoidModes"] = t.AvoidModes
		}
		if t.MaxTransfers != nil {
			tr["maxTransfers"] = *t.MaxTransfers
		}
		if t.Class != "" {
			tr["class"] = t.Class
		}
		out["transport"] = tr
	}
	return out
}

// DecodePreferences reads a preferences entity as produced by the extractors
// or by a model answer.
func DecodePreferences(v any) (domain.Preferences, error) {
	var p domain.Preferences
	switch t := v.(type) {
	case nil:
		return p, nil
	case domain.Preferences:
		return t, nil
	case *domain.Preferences:
		return *t, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &p,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return p, err
	}
	if err := dec.Decode(v); err != nil {
		return p, err
	}
	if p.TravelStyle != "" {
		if style, ok := domain.ParseTravelStyle(string(p.TravelStyle)); ok {
			p.TravelStyle = style
		} else {
			p.TravelStyle = ""
		}
	}
	return p, nil
}
