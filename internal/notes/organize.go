// Package notes organizes free-text "brain dump" notes into a clean
// structured form via the generative pipeline.
package notes

import (
	"encoding/json"
	"fmt"

	"github.com/unstuck-app/unstuck/internal/breakdown"
)

// Organized is the structured form of a brain-dump note.
type Organized struct {
	Summary     string   `json:"summary"`
	ActionItems []string `json:"action_items"`
	KeyPoints   []string `json:"key_points"`
	Tags        []string `json:"tags"`
}

const organizePromptTemplate = `You are an ADHD productivity assistant. Organize the following brain dump note into a clean structured format.

Note: %q

Rules:
- Return ONLY a valid JSON object, no markdown fencing, no extra text
- Keep language simple and concise

Format:
{
  "summary": "one sentence summary",
  "action_items": ["action 1", "action 2"],
  "key_points": ["point 1", "point 2"],
  "tags": ["tag1", "tag2"]
}`

// BuildPrompt renders the note-organizer prompt. Pure string templating.
func BuildPrompt(note string) string {
	return fmt.Sprintf(organizePromptTemplate, note)
}

// Parse converts the raw model response into an organized note. There is
// no useful local fallback for an unstructured note, so unusable output
// is an error.
func Parse(raw string) (Organized, error) {
	cleaned := breakdown.StripFences(raw)
	if cleaned == "" {
		return Organized{}, fmt.Errorf("model returned an empty response")
	}

	var org Organized
	if err := json.Unmarshal([]byte(cleaned), &org); err != nil {
		return Organized{}, fmt.Errorf("model response is not a JSON note object: %w", err)
	}
	if org.Summary == "" && len(org.ActionItems) == 0 && len(org.KeyPoints) == 0 {
		return Organized{}, fmt.Errorf("model returned an empty note")
	}
	return org, nil
}
