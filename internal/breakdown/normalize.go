package breakdown

import (
	"encoding/json"
	"strings"
)

// GeneratedStep is the normalizer's intermediate representation of a
// step. It is mapped 1:1 into micro_steps rows by the caller.
type GeneratedStep struct {
	Description      string `json:"description"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	StepOrder        int    `json:"step_order"`
}

// Outcome classifies a model response before any field access.
type Outcome int

const (
	// OutcomeValid means the response parsed to a non-empty array of
	// well-formed steps.
	OutcomeValid Outcome = iota
	// OutcomeEmpty means the response parsed but contained no usable
	// steps.
	OutcomeEmpty
	// OutcomeMalformed means the response was not a JSON array at all.
	OutcomeMalformed
)

// StripFences removes Markdown code-fence markers and surrounding
// whitespace from a model response. Both "```json" and bare "```" forms
// are handled, anywhere in the text.
func StripFences(raw string) string {
	cleaned := strings.ReplaceAll(raw, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned)
}

// Normalize converts an arbitrary text blob into an ordered list of
// steps. It never returns an error: unusable input is reported through
// the outcome so the caller can pick its own degradation path.
//
// Surviving steps are renumbered sequentially from 1 in array order.
// Models return tied, gapped, or absent step_order values, and the
// stored step set requires a contiguous, collision-free sequence.
// A missing or non-positive duration is clamped to one minute; only
// steps with an empty description are dropped.
func Normalize(raw string) ([]GeneratedStep, Outcome) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, OutcomeEmpty
	}

	var parsed []GeneratedStep
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, OutcomeMalformed
	}
	if len(parsed) == 0 {
		return nil, OutcomeEmpty
	}

	steps := make([]GeneratedStep, 0, len(parsed))
	for _, st := range parsed {
		if strings.TrimSpace(st.Description) == "" {
			continue
		}
		if st.EstimatedMinutes <= 0 {
			st.EstimatedMinutes = 1
		}
		st.StepOrder = len(steps) + 1
		steps = append(steps, st)
	}
	if len(steps) == 0 {
		return nil, OutcomeEmpty
	}

	return steps, OutcomeValid
}
