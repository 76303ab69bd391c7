package breakdown

import (
	"fmt"

	"github.com/unstuck-app/unstuck/internal/task"
)

// fallbackMinutes holds the open/work/review durations per energy tier
// for the deterministic fallback sequence.
var fallbackMinutes = map[task.EnergyLevel][3]int{
	task.EnergyLow:    {2, 7, 3},
	task.EnergyMedium: {2, 12, 3},
	task.EnergyHigh:   {2, 25, 4},
}

// FallbackSteps synthesizes a deterministic 3-step sequence for a task
// whose decomposition could not be generated. The user is never blocked
// by an upstream failure: they always get an initiate step, a core-work
// step, and a review step sized to their energy tier.
func FallbackSteps(title string, energy task.EnergyLevel) []GeneratedStep {
	if !energy.Valid() {
		energy = task.EnergyMedium
	}
	m := fallbackMinutes[energy]

	return []GeneratedStep{
		{
			Description:      fmt.Sprintf("Open or set up what you need for %q", title),
			EstimatedMinutes: m[0],
			StepOrder:        1,
		},
		{
			Description:      fmt.Sprintf("Work on %q for a focused stretch", title),
			EstimatedMinutes: m[1],
			StepOrder:        2,
		},
		{
			Description:      "Review what you did and mark your progress",
			EstimatedMinutes: m[2],
			StepOrder:        3,
		},
	}
}
