package orchestrator

import (
	"strings"
	"testing"

	"github.com/aretw0/waypoint/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestSplitChunks(t *testing.T) {
	assert.Nil(t, splitChunks("", 10))
	assert.Equal(t, []string{"short"}, splitChunks("short", 10))

	text := "The next train leaves Zürich HB at 09:02 and arrives in Bern at 09:58."
	parts := splitChunks(text, 20)
	assert.Greater(t, len(parts), 1)
	assert.Equal(t, text, strings.Join(parts, ""))
	for _, p := range parts[:len(parts)-1] {
		assert.True(t, strings.HasSuffix(p, " "), p)
	}

	long := strings.Repeat("x", 30) + " tail"
	assert.Equal(t, long, strings.Join(splitChunks(long, 10), ""))
}

func TestCombine_SuffixesDuplicateSteps(t *testing.T) {
	a := &domain.PlanExecutionResult{
		PlanID:    "trip-1",
		Success:   true,
		Steps:     domain.StepResults{"find_trips": {StepID: "find_trips", Success: true}},
		Order:     []string{"find_trips"},
		ToolCalls: []domain.ToolResult{{ToolName: domain.ToolFindTrips, Success: true}},
	}
	b := &domain.PlanExecutionResult{
		PlanID:  "trip-2",
		Success: false,
		Steps:   domain.StepResults{"find_trips": {StepID: "find_trips"}},
		Order:   []string{"find_trips"},
	}

	out := combine([]*domain.PlanExecutionResult{a, b})

	assert.Equal(t, "trip-1+trip-2", out.PlanID)
	assert.False(t, out.Success)
	assert.Equal(t, []string{"find_trips", "find_trips#2"}, out.Order)
	assert.Equal(t, "find_trips#2", out.Steps["find_trips#2"].StepID)
	assert.Len(t, out.ToolCalls, 1)
}

func TestDecider(t *testing.T) {
	d := NewDecider()
	trip := domain.Intent{Type: domain.IntentTripPlanning, Confidence: 0.9}
	general := domain.Intent{Type: domain.IntentGeneralQuestion, Confidence: 0.3}

	tests := []struct {
		name    string
		message string
		intents []domain.Intent
		want    bool
	}{
		{"keyword and confidence", "find trains to Bern", []domain.Intent{trip}, true},
		{"low confidence", "find trains to Bern", []domain.Intent{general}, false},
		{"no keyword", "hello there", []domain.Intent{trip}, false},
		{"several intents", "hello", []domain.Intent{general, general}, true},
		{"no intents", "find trains", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.RequiresOrchestration(tt.message, tt.intents))
		})
	}

	d.Enabled = false
	assert.False(t, d.RequiresOrchestration("find trains to Bern", []domain.Intent{trip}))
}
