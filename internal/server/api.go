package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/unstuck-app/unstuck/internal/auth"
	"github.com/unstuck-app/unstuck/internal/breakdown"
	"github.com/unstuck-app/unstuck/internal/genai"
	"github.com/unstuck-app/unstuck/internal/notes"
	"github.com/unstuck-app/unstuck/internal/prioritize"
	"github.com/unstuck-app/unstuck/internal/task"
)

const errNotConfigured = "generative service is not configured"

type decomposeRequest struct {
	TaskID          string `json:"taskId"`
	EnergyLevel     string `json:"energyLevel"`
	TaskDescription string `json:"taskDescription"`
}

// Decompose handles POST /tasks/decompose. The operation is idempotent:
// once a task has steps, repeated calls return them unchanged.
func (s *Server) Decompose(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var in decomposeRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if strings.TrimSpace(in.TaskID) == "" {
		writeErr(w, http.StatusBadRequest, "taskId is required")
		return
	}

	t, err := s.tasks.Get(user.ID, in.TaskID)
	if errors.Is(err, task.ErrNotFound) {
		writeErr(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	if len(t.MicroSteps) > 0 {
		writeJSON(w, http.StatusOK, t.MicroSteps)
		return
	}

	// Explicit argument wins, then the task's stored level, then medium.
	energy := task.EnergyLevel(strings.ToLower(in.EnergyLevel))
	if !energy.Valid() {
		energy = t.EnergyLevel
	}
	if !energy.Valid() {
		energy = task.EnergyMedium
	}

	gen := s.gen.Client()
	if gen == nil {
		writeErr(w, http.StatusInternalServerError, errNotConfigured)
		return
	}

	prompt := breakdown.BuildPrompt(t.Title, energy, in.TaskDescription)

	ctx, cancel := context.WithTimeout(r.Context(), s.genTimeout)
	defer cancel()

	generated := s.generateSteps(ctx, gen, prompt, t.Title, energy)

	rows := make([]task.MicroStep, len(generated))
	for i, g := range generated {
		rows[i] = task.MicroStep{
			Description:      g.Description,
			EstimatedMinutes: g.EstimatedMinutes,
			StepOrder:        g.StepOrder,
		}
	}

	steps, inserted, err := s.tasks.InsertStepsIfEmpty(t.ID, rows)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !inserted {
		// Lost the first-insert race; the other request's steps win.
		writeJSON(w, http.StatusOK, steps)
		return
	}
	writeJSON(w, http.StatusCreated, steps)
}

// generateSteps runs the model and normalizes its output. The user is
// never blocked by an upstream failure: any call error, malformed
// response, or empty result degrades to the deterministic fallback.
func (s *Server) generateSteps(ctx context.Context, gen genai.Generator, prompt, title string, energy task.EnergyLevel) []breakdown.GeneratedStep {
	raw, err := gen.GenerateContent(ctx, prompt)
	if err != nil {
		s.logger.Printf(`{"level":"warn","msg":"decompose_generation_failed","error":%q}`, err.Error())
		return breakdown.FallbackSteps(title, energy)
	}

	steps, outcome := breakdown.Normalize(raw)
	if outcome != breakdown.OutcomeValid {
		s.logger.Printf(`{"level":"warn","msg":"decompose_response_unusable","outcome":%d}`, outcome)
		return breakdown.FallbackSteps(title, energy)
	}
	return steps
}

type prioritizeTask struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Deadline   *time.Time `json:"deadline"`
	MicroSteps []struct {
		EstimatedMinutes int `json:"estimated_minutes"`
	} `json:"micro_steps"`
}

type prioritizeRequest struct {
	Tasks []prioritizeTask `json:"tasks"`
}

// updateResult records one task's outcome in the priority fan-out.
// Partial success is possible and is reported per task, not collapsed
// into one boolean.
type updateResult struct {
	ID      string `json:"id"`
	Updated bool   `json:"updated"`
	Error   string `json:"error,omitempty"`
}

// Prioritize handles POST /tasks/prioritize. Updates are issued
// concurrently and are not transactional: updates that succeed stay
// applied even when others fail.
func (s *Server) Prioritize(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var in prioritizeRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if len(in.Tasks) == 0 {
		writeErr(w, http.StatusBadRequest, "tasks array is required")
		return
	}

	gen := s.gen.Client()
	if gen == nil {
		writeErr(w, http.StatusInternalServerError, errNotConfigured)
		return
	}

	// Index order is preserved: the response is consumed positionally.
	summaries := make([]prioritize.Summary, len(in.Tasks))
	for i, t := range in.Tasks {
		var total *int
		if len(t.MicroSteps) > 0 {
			sum := 0
			for _, st := range t.MicroSteps {
				sum += st.EstimatedMinutes
			}
			total = &sum
		}
		summaries[i] = prioritize.Summary{
			Title:                 t.Title,
			Deadline:              t.Deadline,
			EstimatedTotalMinutes: total,
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.genTimeout)
	defer cancel()

	raw, err := gen.GenerateContent(ctx, prioritize.BuildPrompt(summaries))
	if err != nil {
		// No safe default ordering exists without the model's ranking.
		writeErr(w, http.StatusInternalServerError, "failed to generate priorities: "+err.Error())
		return
	}

	ranked, err := prioritize.Parse(raw)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to prioritize tasks: "+err.Error())
		return
	}
	// The response is consumed positionally; entries past the input
	// list have no task to apply to and are not echoed back.
	if len(ranked) > len(in.Tasks) {
		ranked = ranked[:len(in.Tasks)]
	}

	results := make([]updateResult, len(in.Tasks))
	var wg sync.WaitGroup
	for i, t := range in.Tasks {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			res := updateResult{ID: id}
			if err := s.tasks.UpdatePriority(user.ID, id, prioritize.At(ranked, i)); err != nil {
				res.Error = err.Error()
			} else {
				res.Updated = true
			}
			results[i] = res
		}(i, t.ID)
	}
	wg.Wait()

	failed := false
	for _, res := range results {
		if !res.Updated {
			failed = true
			break
		}
	}

	body := map[string]any{
		"success":    !failed,
		"priorities": ranked,
		"updates":    results,
	}
	if failed {
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// OrganizeNote handles POST /notes/organize: structure a brain-dump
// note into summary, action items, key points, and tags.
func (s *Server) OrganizeNote(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if strings.TrimSpace(in.Note) == "" {
		writeErr(w, http.StatusBadRequest, "note is required")
		return
	}

	gen := s.gen.Client()
	if gen == nil {
		writeErr(w, http.StatusInternalServerError, errNotConfigured)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.genTimeout)
	defer cancel()

	raw, err := gen.GenerateContent(ctx, notes.BuildPrompt(in.Note))
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to organize note: "+err.Error())
		return
	}

	organized, err := notes.Parse(raw)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to organize note: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, organized)
}
