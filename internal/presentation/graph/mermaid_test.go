package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/waypoint/internal/presentation/graph"
	"github.com/aretw0/waypoint/pkg/domain"
)

func tripPlan() *domain.ExecutionPlan {
	return &domain.ExecutionPlan{
		ID:   "trip-1",
		Name: "Trip planning",
		Steps: []domain.ExecutionStep{
			{ID: "find_trips", ToolName: domain.ToolFindTrips},
			{
				ID:        "eco",
				ToolName:  domain.ToolGetEcoComparison,
				DependsOn: []string{"find_trips"},
				Optional:  true,
				Condition: func(domain.StepResults) bool { return true },
			},
		},
	}
}

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		plans    []*domain.ExecutionPlan
		overlay  *graph.Overlay
		contains []string
		excludes []string
	}{
		{
			name:  "Step shapes",
			plans: []*domain.ExecutionPlan{tripPlan()},
			contains: []string{
				"find_trips([\"find_trips <br/> findTrips\"])",
				"eco{{\"eco <br/> getEcoComparison <br/> (optional)\"}}",
			},
			excludes: []string{"subgraph"},
		},
		{
			name:     "Optional dependency is dotted",
			plans:    []*domain.ExecutionPlan{tripPlan()},
			contains: []string{"find_trips -.-> eco"},
		},
		{
			name: "Several plans become subgraphs",
			plans: []*domain.ExecutionPlan{
				tripPlan(),
				{ID: "weather-2", Name: "Weather \"now\"", Steps: []domain.ExecutionStep{
					{ID: "getWeather#1", ToolName: domain.ToolGetWeather},
				}},
			},
			contains: []string{
				"subgraph trip_1[\"Trip planning\"]",
				"subgraph weather_2[\"Weather 'now'\"]",
				"getWeather_1([\"getWeather#1 <br/> getWeather\"])",
				"    end\n",
			},
		},
		{
			name:  "Overlay",
			plans: []*domain.ExecutionPlan{tripPlan()},
			overlay: &graph.Overlay{Steps: domain.StepResults{
				"find_trips": {StepID: "find_trips", Success: true},
				"eco":        {StepID: "eco", Skipped: true},
			}},
			contains: []string{
				"classDef ok",
				"class find_trips ok;",
				"class eco skipped;",
			},
		},
		{
			name:  "Failed overlay",
			plans: []*domain.ExecutionPlan{tripPlan()},
			overlay: &graph.Overlay{Steps: domain.StepResults{
				"find_trips": {StepID: "find_trips", Error: "boom"},
			}},
			contains: []string{"class find_trips failed;"},
			excludes: []string{"class eco"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := graph.GenerateMermaid(tt.plans, tt.overlay)
			assert.True(t, strings.HasPrefix(out, "graph TD\n"))
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, not := range tt.excludes {
				assert.NotContains(t, out, not)
			}
		})
	}
}
