// Package prioritize builds the task-ranking prompt and parses the
// model's index-aligned priority response.
package prioritize

import (
	"encoding/json"
	"fmt"
	"time"
)

// Summary is the per-task digest sent to the model. Index order in the
// prompt must match the input task order because the response is
// consumed positionally.
type Summary struct {
	Title string `json:"title"`
	// Deadline is nil when the task has none; such tasks rank lowest.
	Deadline *time.Time `json:"deadline"`
	// EstimatedTotalMinutes sums the task's step durations, nil when the
	// task has no steps attached.
	EstimatedTotalMinutes *int `json:"estimated_total_minutes"`
}

const rankingPromptTemplate = `You are an ADHD productivity assistant. Rank the tasks below by priority.

Tasks (in order):
%s

Ranking rules:
- Rank by deadline proximity first; tasks with no deadline rank lowest
- Break ties by shorter estimated effort
- Prefer surfacing one quick win early in the suggested order, so the user gets momentum

Return ONLY a JSON array, no markdown fencing, no other text. The array must have exactly one entry per input task, in the SAME order as the input:
[
  {
    "title": "task title here",
    "priority": "high",
    "suggested_order": 1
  }
]

Priority must be "high", "medium", or "low".`

// BuildPrompt renders the prioritization prompt from task summaries.
// Pure string templating, deterministic given identical inputs.
func BuildPrompt(summaries []Summary) string {
	// Marshal cannot fail for this shape; fall back to an empty list if
	// it somehow does.
	encoded, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		encoded = []byte("[]")
	}
	return fmt.Sprintf(rankingPromptTemplate, encoded)
}
