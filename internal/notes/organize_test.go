package notes

import (
	"strings"
	"testing"
)

func TestBuildPrompt_ContainsNoteAndFormat(t *testing.T) {
	prompt := BuildPrompt("need to call dentist, buy milk, project due soon")

	if !strings.Contains(prompt, "call dentist") {
		t.Error("prompt missing the note text")
	}
	for _, want := range []string{"action_items", "key_points", "tags", "JSON object"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestParse_Valid(t *testing.T) {
	raw := "```json\n" + `{
		"summary": "Errands and a deadline",
		"action_items": ["Call dentist", "Buy milk"],
		"key_points": ["Project due soon"],
		"tags": ["errands"]
	}` + "\n```"

	org, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if org.Summary != "Errands and a deadline" {
		t.Errorf("summary = %q", org.Summary)
	}
	if len(org.ActionItems) != 2 {
		t.Errorf("expected 2 action items, got %d", len(org.ActionItems))
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse("not json"); err == nil {
		t.Error("expected an error for non-JSON input")
	}
	if _, err := Parse("{}"); err == nil {
		t.Error("expected an error for an empty note object")
	}
	if _, err := Parse(""); err == nil {
		t.Error("expected an error for an empty response")
	}
}
