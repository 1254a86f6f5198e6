// Package compile turns plan execution results into a machine-readable Summary
// and a markdown digest the language model can read.
//
// Each tool has a Renderer registered by name; unknown tools use a generic one.
package compile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

// Section is the rendering of one tool result.
type Section struct {
	Title string
	Lines []string
	// Apply adds the typed data of the result to a Summary.
	Apply func(*Summary)
}

// Renderer renders the data of one successful tool call.
type Renderer func(data any) Section

// Compiler holds the renderer registry.
type Compiler struct {
	mu        sync.RWMutex
	renderers map[string]Renderer
}

// NewCompiler creates a Compiler with renderers for the built-in tools.
func NewCompiler() *Compiler {
	c := &Compiler{renderers: make(map[string]Renderer)}
	c.Register(domain.ToolFindTrips, renderTrips)
	c.Register(domain.ToolGetEcoComparison, renderEco)
	c.Register(domain.ToolGetWeather, renderWeather)
	c.Register(domain.ToolGetSnowConditions, renderSnow)
	c.Register(domain.ToolFindStopPlacesByName, renderStations("Stations"))
	c.Register(domain.ToolFindPlaces, renderStations("Places"))
	c.Register(domain.ToolGetPlaceEvents, renderEvents)
	c.Register(domain.ToolGetTrainFormation, renderFormation)
	return c
}

// Register sets the renderer of tool, replacing any previous one.
func (c *Compiler) Register(tool string, r Renderer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renderers[tool] = r
}

func (c *Compiler) renderer(tool string) Renderer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.renderers[tool]; ok {
		return r
	}
	return renderGeneric(tool)
}

// Compile builds the Summary of res. Skipped steps are ignored.
func (c *Compiler) Compile(res *domain.PlanExecutionResult) Summary {
	s := Summary{Tools: []string{}}
	if res == nil {
		return s
	}
	seen := map[string]bool{}
	for _, r := range res.Ordered() {
		if r.Skipped {
			continue
		}
		if !r.Success {
			s.Failures = append(s.Failures, Failure{StepID: r.StepID, Tool: r.ToolName, Error: r.Error})
			continue
		}
		if !seen[r.ToolName] {
			seen[r.ToolName] = true
			s.Tools = append(s.Tools, r.ToolName)
		}
		if sec := c.renderer(r.ToolName)(r.Data); sec.Apply != nil {
			sec.Apply(&s)
		}
	}
	mergeSnow(&s)
	return s
}

// Format renders res as markdown sections, one per successful step, followed
// by the steps that failed.
func (c *Compiler) Format(res *domain.PlanExecutionResult) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	var failed []string
	for _, r := range res.Ordered() {
		if r.Skipped {
			continue
		}
		if !r.Success {
			failed = append(failed, fmt.Sprintf("- %s: %s", r.ToolName, r.Error))
			continue
		}
		sec := c.renderer(r.ToolName)(r.Data)
		fmt.Fprintf(&b, "### %s\n", sec.Title)
		if len(sec.Lines) == 0 {
			b.WriteString("- no results\n")
		}
		for _, l := range sec.Lines {
			b.WriteString("- " + l + "\n")
		}
		b.WriteString("\n")
	}
	if len(failed) > 0 {
		b.WriteString("### Unavailable\n")
		b.WriteString(strings.Join(failed, "\n"))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// SummaryJSON returns the Summary as indented JSON for prompts.
func SummaryJSON(s Summary) string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decode(in, out any) bool {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return false
	}
	return dec.Decode(in) == nil
}

func list(data any, keys ...string) []any {
	switch v := data.(type) {
	case []any:
		return v
	case map[string]any:
		for _, k := range keys {
			if nested, ok := v[k].([]any); ok {
				return nested
			}
		}
	}
	return nil
}

func clock(ts string) string {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.Format("15:04")
	}
	return ts
}

func renderTrips(data any) Section {
	var trips []Trip
	for _, item := range list(data, "trips", "connections", "results") {
		var t Trip
		if decode(item, &t) {
			trips = append(trips, t)
		}
	}
	sec := Section{Title: "Trips", Apply: func(s *Summary) { s.Trips = append(s.Trips, trips...) }}
	for _, t := range trips {
		line := fmt.Sprintf("%s → %s, %s-%s, %d transfer(s)", t.Origin, t.Destination, clock(t.Departure), clock(t.Arrival), t.Transfers)
		if t.TrainNumber != "" {
			line += ", " + t.TrainNumber
		}
		sec.Lines = append(sec.Lines, line)
	}
	return sec
}

func renderEco(data any) Section {
	var e Eco
	if !decode(data, &e) {
		return renderGeneric(domain.ToolGetEcoComparison)(data)
	}
	return Section{
		Title: "CO2 comparison",
		Lines: []string{fmt.Sprintf("train %.1f kg vs car %.1f kg, saves %.1f kg (%.0f%%)", e.TrainCo2Kg, e.CarCo2Kg, e.SavingsKg, e.SavingsRate*100)},
		Apply: func(s *Summary) { s.Eco = append(s.Eco, e) },
	}
}

func renderWeather(data any) Section {
	var w Weather
	if !decode(data, &w) {
		return renderGeneric(domain.ToolGetWeather)(data)
	}
	var parts []string
	if w.Condition != "" {
		parts = append(parts, w.Condition)
	}
	if w.Temperature != nil {
		parts = append(parts, fmt.Sprintf("%.1f°C", *w.Temperature))
	}
	if w.WindKph != nil {
		parts = append(parts, fmt.Sprintf("wind %.0f km/h", *w.WindKph))
	}
	title := "Weather"
	if w.Location != "" {
		title += " in " + w.Location
	}
	return Section{
		Title: title,
		Lines: []string{strings.Join(parts, ", ")},
		Apply: func(s *Summary) { s.Weather = append(s.Weather, w) },
	}
}

func renderSnow(data any) Section {
	var sn Snow
	if !decode(data, &sn) {
		return renderGeneric(domain.ToolGetSnowConditions)(data)
	}
	var parts []string
	if sn.SnowDepthCm != nil {
		parts = append(parts, fmt.Sprintf("%.0f cm snow", *sn.SnowDepthCm))
	}
	if sn.FreshSnowCm != nil {
		parts = append(parts, fmt.Sprintf("%.0f cm fresh", *sn.FreshSnowCm))
	}
	if sn.LiftsOpen != nil {
		parts = append(parts, fmt.Sprintf("%d lifts open", *sn.LiftsOpen))
	}
	if sn.SlopesOpenKm != nil {
		parts = append(parts, fmt.Sprintf("%.0f km slopes", *sn.SlopesOpenKm))
	}
	return Section{
		Title: "Snow conditions",
		Lines: []string{strings.Join(parts, ", ")},
		Apply: func(s *Summary) {
			s.Weather = append(s.Weather, Weather{Location: sn.Location, Snow: &sn})
		},
	}
}

// mergeSnow folds snow-only entries into the weather entry of the same location.
func mergeSnow(s *Summary) {
	if len(s.Weather) < 2 {
		return
	}
	out := s.Weather[:0]
	for _, w := range s.Weather {
		if w.Snow != nil && w.Condition == "" && w.Temperature == nil {
			merged := false
			for i := range out {
				if out[i].Snow == nil && (out[i].Location == w.Location || w.Location == "" || out[i].Location == "") {
					out[i].Snow = w.Snow
					merged = true
					break
				}
			}
			if merged {
				continue
			}
		}
		out = append(out, w)
	}
	s.Weather = out
}

func renderStations(title string) Renderer {
	return func(data any) Section {
		var stations []Station
		for _, item := range list(data, "places", "stopPlaces", "results", "features") {
			var st Station
			if decode(item, &st) {
				stations = append(stations, st)
			}
		}
		sec := Section{Title: title, Apply: func(s *Summary) { s.Stations = append(s.Stations, stations...) }}
		for _, st := range stations {
			sec.Lines = append(sec.Lines, fmt.Sprintf("%s (%s)", st.Name, st.ID))
		}
		return sec
	}
}

func renderEvents(data any) Section {
	title := "Departures"
	if m, ok := data.(map[string]any); ok {
		if kind, _ := m["eventType"].(string); kind == "arrivals" {
			title = "Arrivals"
		}
		if station, _ := m["station"].(string); station != "" {
			title += " at " + station
		}
	}
	var events []Event
	for _, item := range list(data, "events", "departures", "arrivals") {
		var e Event
		if decode(item, &e) {
			events = append(events, e)
		}
	}
	sec := Section{Title: title, Apply: func(s *Summary) { s.Events = append(s.Events, events...) }}
	for _, e := range events {
		other := e.Destination
		if other == "" {
			other = e.Origin
		}
		line := fmt.Sprintf("%s %s %s", e.Time, e.TrainNumber, other)
		if e.Platform != "" {
			line += ", platform " + e.Platform
		}
		sec.Lines = append(sec.Lines, strings.Join(strings.Fields(line), " "))
	}
	return sec
}

func renderFormation(data any) Section {
	var f Formation
	if !decode(data, &f) {
		return renderGeneric(domain.ToolGetTrainFormation)(data)
	}
	sec := Section{Title: "Formation of " + f.JourneyID, Apply: func(s *Summary) { s.Formation = append(s.Formation, f) }}
	for _, c := range f.Coaches {
		var extras []string
		if c.Bike {
			extras = append(extras, "bikes")
		}
		if c.Wheelchair {
			extras = append(extras, "wheelchair")
		}
		if c.Restaurant {
			extras = append(extras, "restaurant")
		}
		line := fmt.Sprintf("coach %d, class %s, sector %s", c.Number, c.Class, c.Sector)
		if len(extras) > 0 {
			line += " (" + strings.Join(extras, ", ") + ")"
		}
		sec.Lines = append(sec.Lines, line)
	}
	return sec
}

const genericLimit = 300

func renderGeneric(tool string) Renderer {
	return func(data any) Section {
		var line string
		switch v := data.(type) {
		case string:
			line = v
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			line = "fields: " + strings.Join(keys, ", ")
		default:
			b, _ := json.Marshal(v)
			line = string(b)
		}
		if len(line) > genericLimit {
			line = line[:genericLimit] + "…"
		}
		return Section{Title: tool, Lines: []string{line}}
	}
}
