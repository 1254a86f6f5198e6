package orchestrator

import (
	"regexp"

	"github.com/aretw0/waypoint/pkg/domain"
)

// DefaultThreshold is the minimum confidence of a single intent for orchestration.
const DefaultThreshold = 0.7

var reOrchestrate = regexp.MustCompile(`(?i)\b(plan\w*|schedul\w*|route\w*|recommend\w*|compar\w*|find|search\w*|show|look(?:ing)? up|connections?|trains?|trips?|journey\w*|travel\w*|get to|go to|weather|forecast|snow\w*|ski\w*|departures?|arrivals?|board|platform|formation|coach(?:es)?|wagons?|sectors?|co2|emissions?|stations?)\b`)

// Decider decides whether a message needs tool orchestration.
type Decider struct {
	Enabled   bool
	Threshold float64
}

// NewDecider returns an enabled Decider with the default threshold.
func NewDecider() Decider {
	return Decider{Enabled: true, Threshold: DefaultThreshold}
}

// RequiresOrchestration reports whether tools should run for the turn.
// Several intents always do; a single one needs a travel keyword and enough confidence.
func (d Decider) RequiresOrchestration(message string, intents []domain.Intent) bool {
	if !d.Enabled || len(intents) == 0 {
		return false
	}
	if len(intents) > 1 {
		return true
	}
	return reOrchestrate.MatchString(message) && intents[0].Confidence >= d.Threshold
}
