package prioritize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/unstuck-app/unstuck/internal/breakdown"
	"github.com/unstuck-app/unstuck/internal/task"
)

// Ranked is one entry of the model's priority response, aligned by index
// with the input task list.
type Ranked struct {
	Title          string        `json:"title"`
	Priority       task.Priority `json:"priority"`
	SuggestedOrder int           `json:"suggested_order"`
}

// Parse converts the raw model response into a ranked list. Unlike
// decomposition there is no safe default ordering, so unusable output
// is an error the caller surfaces to the client.
func Parse(raw string) ([]Ranked, error) {
	cleaned := breakdown.StripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("model returned an empty response")
	}

	var ranked []Ranked
	if err := json.Unmarshal([]byte(cleaned), &ranked); err != nil {
		return nil, fmt.Errorf("model response is not a JSON array of priorities: %w", err)
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("model returned no priorities")
	}

	for i := range ranked {
		ranked[i].Priority = task.Priority(strings.ToLower(string(ranked[i].Priority)))
		if !ranked[i].Priority.Valid() {
			ranked[i].Priority = task.PriorityMedium
		}
		if ranked[i].SuggestedOrder <= 0 {
			ranked[i].SuggestedOrder = i + 1
		}
	}
	return ranked, nil
}

// At returns the priority for the input task at index i, defaulting to
// medium when the model's response is shorter than the input list.
func At(ranked []Ranked, i int) task.Priority {
	if i < 0 || i >= len(ranked) {
		return task.PriorityMedium
	}
	return ranked[i].Priority
}
