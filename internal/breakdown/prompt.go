// Package breakdown turns a task into small timed micro-steps: it builds
// the decomposition prompt, normalizes untrusted model output, and
// synthesizes deterministic fallback steps when that output is unusable.
package breakdown

import (
	"fmt"
	"strings"

	"github.com/unstuck-app/unstuck/internal/task"
)

// workBands maps each energy tier to the minute range allowed for true
// work steps. Setup and review bands are fixed across tiers.
var workBands = map[task.EnergyLevel]string{
	task.EnergyLow:    "5-10",
	task.EnergyMedium: "10-15",
	task.EnergyHigh:   "20-30",
}

const decompositionPromptTemplate = `You are an ADHD productivity assistant. Break the task below into small, concrete micro-steps that feel easy to start.

Task: %q
Energy level: %s
%s
Return ONLY a JSON array with this exact structure (no markdown fencing, no other text):
[
  {
    "description": "step description here",
    "estimated_minutes": 10,
    "step_order": 1
  }
]

Duration rules:
- Setup or admin actions (gathering materials, opening a document): 1-5 minutes
- True work steps: %s minutes at this energy level
- Review or wrap-up steps (checking results, marking progress): 2-5 minutes

Step rules:
- The FIRST step must be the easiest possible action, so starting takes almost no activation energy
- Generate as many steps as the task genuinely needs, not a fixed count
- Every description starts with a concrete verb and names a specific, checkable action
- Reject vague phrasing: "Put dishes in sink" not "Deal with kitchen"`

// BuildPrompt renders the decomposition prompt for a task title, energy
// level, and optional free-text context. Pure string templating: the
// same inputs always produce the same prompt.
func BuildPrompt(title string, energy task.EnergyLevel, description string) string {
	if !energy.Valid() {
		energy = task.EnergyMedium
	}

	context := ""
	if strings.TrimSpace(description) != "" {
		context = fmt.Sprintf("Context: %s\n", strings.TrimSpace(description))
	}

	return fmt.Sprintf(decompositionPromptTemplate, title, energy, context, workBands[energy])
}
