package compile_test

import (
	"testing"

	"github.com/aretw0/waypoint/pkg/compile"
	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(steps ...domain.StepResult) *domain.PlanExecutionResult {
	res := &domain.PlanExecutionResult{PlanID: "p", Steps: domain.StepResults{}}
	for _, s := range steps {
		res.Steps[s.StepID] = s
		res.Order = append(res.Order, s.StepID)
	}
	return res
}

func tripsResult() *domain.PlanExecutionResult {
	return result(
		domain.StepResult{StepID: "find_trips", ToolName: domain.ToolFindTrips, Success: true, Data: []any{
			map[string]any{
				"id": "t1", "origin": "Zürich HB", "destination": "Bern",
				"departure": "2024-01-16T09:02:00+01:00", "arrival": "2024-01-16T09:58:00+01:00",
				"transfers": float64(0), "trainNumber": "IC 1",
			},
		}},
		domain.StepResult{StepID: "eco_comparison", ToolName: domain.ToolGetEcoComparison, Success: true, Data: map[string]any{
			"tripId": "t1", "trainCo2Kg": 0.6, "carCo2Kg": 19.4, "savingsKg": 18.8, "savingsRate": 0.97,
		}},
		domain.StepResult{StepID: "skipped", ToolName: "whatever", Skipped: true},
		domain.StepResult{StepID: "weather", ToolName: domain.ToolGetWeather, Success: false, Error: "timeout"},
	)
}

func TestCompile(t *testing.T) {
	s := compile.NewCompiler().Compile(tripsResult())

	assert.Equal(t, []string{domain.ToolFindTrips, domain.ToolGetEcoComparison}, s.Tools)
	require.Len(t, s.Trips, 1)
	assert.Equal(t, "t1", s.Trips[0].ID)
	assert.Equal(t, "IC 1", s.Trips[0].TrainNumber)
	require.Len(t, s.Eco, 1)
	assert.InDelta(t, 18.8, s.Eco[0].SavingsKg, 1e-9)
	require.Len(t, s.Failures, 1)
	assert.Equal(t, compile.Failure{StepID: "weather", Tool: domain.ToolGetWeather, Error: "timeout"}, s.Failures[0])
	assert.False(t, s.Empty())
}

func TestFormat(t *testing.T) {
	out := compile.NewCompiler().Format(tripsResult())

	assert.Contains(t, out, "### Trips\n- Zürich HB → Bern, 09:02-09:58, 0 transfer(s), IC 1")
	assert.Contains(t, out, "### CO2 comparison")
	assert.Contains(t, out, "### Unavailable\n- getWeather: timeout")
	assert.NotContains(t, out, "whatever")
}

func TestCompile_WeatherAndSnowMerge(t *testing.T) {
	res := result(
		domain.StepResult{StepID: "weather", ToolName: domain.ToolGetWeather, Success: true, Data: map[string]any{
			"location": "St. Moritz", "temperature": 3.5, "condition": "light snow",
		}},
		domain.StepResult{StepID: "snow", ToolName: domain.ToolGetSnowConditions, Success: true, Data: map[string]any{
			"location": "St. Moritz", "snowDepthCm": float64(85), "liftsOpen": float64(21),
		}},
	)
	c := compile.NewCompiler()
	s := c.Compile(res)

	require.Len(t, s.Weather, 1)
	require.NotNil(t, s.Weather[0].Snow)
	assert.Equal(t, 21, *s.Weather[0].Snow.LiftsOpen)
	assert.InDelta(t, 3.5, *s.Weather[0].Temperature, 1e-9)

	out := c.Format(res)
	assert.Contains(t, out, "### Weather in St. Moritz\n- light snow, 3.5°C")
	assert.Contains(t, out, "85 cm snow")
}

func TestCompile_BoardAndFormation(t *testing.T) {
	res := result(
		domain.StepResult{StepID: "board", ToolName: domain.ToolGetPlaceEvents, Success: true, Data: map[string]any{
			"station": "Bern", "eventType": "arrivals",
			"events": []any{map[string]any{"time": "10:00", "origin": "Thun", "platform": float64(4), "trainNumber": "IR 15"}},
		}},
		domain.StepResult{StepID: "formation", ToolName: domain.ToolGetTrainFormation, Success: true, Data: map[string]any{
			"journeyId": "j1",
			"coaches":   []any{map[string]any{"number": float64(2), "class": "2", "sector": "B", "bike": true}},
		}},
	)
	c := compile.NewCompiler()

	s := c.Compile(res)
	require.Len(t, s.Events, 1)
	assert.Equal(t, "4", s.Events[0].Platform)
	require.Len(t, s.Formation, 1)
	assert.True(t, s.Formation[0].Coaches[0].Bike)

	out := c.Format(res)
	assert.Contains(t, out, "### Arrivals at Bern\n- 10:00 IR 15 Thun, platform 4")
	assert.Contains(t, out, "coach 2, class 2, sector B (bikes)")
}

func TestRegisterOverridesAndGenericFallback(t *testing.T) {
	c := compile.NewCompiler()
	res := result(domain.StepResult{StepID: "x", ToolName: "customTool", Success: true, Data: map[string]any{"b": 1, "a": 2}})

	assert.Contains(t, c.Format(res), "### customTool\n- fields: a, b")

	c.Register("customTool", func(any) compile.Section {
		return compile.Section{Title: "Custom", Lines: []string{"rendered"}}
	})
	assert.Contains(t, c.Format(res), "### Custom\n- rendered")
	assert.Equal(t, []string{"customTool"}, c.Compile(res).Tools)
}

func TestCompile_Nil(t *testing.T) {
	c := compile.NewCompiler()
	assert.True(t, c.Compile(nil).Empty())
	assert.Empty(t, c.Format(nil))
	assert.Contains(t, compile.SummaryJSON(compile.Summary{Tools: []string{"a"}}), `"tools"`)
}
