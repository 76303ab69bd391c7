package task

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/unstuck-app/unstuck/internal/auth"
)

// Handler serves the task and subtask CRUD routes. The decomposition
// and prioritization pipeline endpoints live in the server package.
type Handler struct {
	store *Store
}

// NewHandler creates a Handler over the given store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func decodeJSON(r *http.Request, out any) error {
	return json.NewDecoder(r.Body).Decode(out)
}

func isConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}

type taskCreateBody struct {
	Title       string  `json:"title"`
	Priority    *string `json:"priority"`
	EnergyLevel *string `json:"energy_level"`
	Deadline    *string `json:"deadline"`
}

// List handles GET /tasks: all of the caller's tasks with nested steps.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	tasks, err := h.store.List(user.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// Create handles POST /tasks.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())

	var in taskCreateBody
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeErr(w, http.StatusBadRequest, "title is required")
		return
	}

	t := Task{Title: strings.TrimSpace(in.Title)}
	if in.Priority != nil {
		p := Priority(strings.ToLower(*in.Priority))
		if !p.Valid() {
			writeErr(w, http.StatusBadRequest, "priority must be high, medium, or low")
			return
		}
		t.Priority = p
	}
	if in.EnergyLevel != nil {
		e := EnergyLevel(strings.ToLower(*in.EnergyLevel))
		if !e.Valid() {
			writeErr(w, http.StatusBadRequest, "energy_level must be low, medium, or high")
			return
		}
		t.EnergyLevel = e
	}
	if in.Deadline != nil && strings.TrimSpace(*in.Deadline) != "" {
		d, err := time.Parse(time.RFC3339, strings.TrimSpace(*in.Deadline))
		if err != nil {
			writeErr(w, http.StatusBadRequest, "deadline must be an RFC 3339 timestamp")
			return
		}
		t.Deadline = &d
	}

	created, err := h.store.Create(user.ID, t)
	if err != nil {
		if isConstraintErr(err) {
			writeErr(w, http.StatusConflict, err.Error())
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	created.MicroSteps = []MicroStep{}
	writeJSON(w, http.StatusCreated, created)
}

// Get handles GET /tasks/{id}: one task with nested steps.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	t, err := h.store.Get(user.ID, id)
	if errors.Is(err, ErrNotFound) {
		writeErr(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type taskPatchBody struct {
	Title       *string `json:"title"`
	Priority    *string `json:"priority"`
	EnergyLevel *string `json:"energy_level"`
	Deadline    *string `json:"deadline"`
	IsComplete  *bool   `json:"is_complete"`
}

// Update handles PATCH /tasks/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	var in taskPatchBody
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "bad json")
		return
	}

	var p Patch
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			writeErr(w, http.StatusBadRequest, "title must not be empty")
			return
		}
		p.Title = &title
	}
	if in.Priority != nil {
		prio := Priority(strings.ToLower(*in.Priority))
		if !prio.Valid() {
			writeErr(w, http.StatusBadRequest, "priority must be high, medium, or low")
			return
		}
		p.Priority = &prio
	}
	if in.EnergyLevel != nil {
		energy := EnergyLevel(strings.ToLower(*in.EnergyLevel))
		if !energy.Valid() {
			writeErr(w, http.StatusBadRequest, "energy_level must be low, medium, or high")
			return
		}
		p.EnergyLevel = &energy
	}
	if in.Deadline != nil {
		// A blank deadline clears it, matching the UI's empty field.
		if strings.TrimSpace(*in.Deadline) == "" {
			p.ClearDeadline = true
		} else {
			d, err := time.Parse(time.RFC3339, strings.TrimSpace(*in.Deadline))
			if err != nil {
				writeErr(w, http.StatusBadRequest, "deadline must be an RFC 3339 timestamp")
				return
			}
			p.Deadline = &d
		}
	}
	p.IsComplete = in.IsComplete

	if p.Empty() {
		writeErr(w, http.StatusBadRequest, "no valid fields to update")
		return
	}

	t, err := h.store.Update(user.ID, id, p)
	if errors.Is(err, ErrNotFound) {
		writeErr(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// Delete handles DELETE /tasks/{id}. Steps cascade with the task.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	err := h.store.Delete(user.ID, id)
	if errors.Is(err, ErrNotFound) {
		writeErr(w, http.StatusNotFound, "Task not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// stepForUser loads a step and authorizes it against the caller:
// 404 when it does not exist, 403 when it belongs to someone else.
func (h *Handler) stepForUser(w http.ResponseWriter, r *http.Request) (MicroStep, bool) {
	user, _ := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	st, ownerID, err := h.store.GetStep(id)
	if errors.Is(err, ErrNotFound) {
		writeErr(w, http.StatusNotFound, "Subtask not found")
		return MicroStep{}, false
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return MicroStep{}, false
	}
	if ownerID != user.ID {
		writeErr(w, http.StatusForbidden, "forbidden")
		return MicroStep{}, false
	}
	return st, true
}

// UpdateStep handles PATCH /subtasks/{id}: the focus timer's completion
// toggle.
func (h *Handler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	st, ok := h.stepForUser(w, r)
	if !ok {
		return
	}

	var in struct {
		IsComplete *bool `json:"is_complete"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeErr(w, http.StatusBadRequest, "is_complete boolean is required")
		return
	}
	if in.IsComplete == nil {
		writeErr(w, http.StatusBadRequest, "is_complete boolean is required")
		return
	}

	updated, err := h.store.SetStepComplete(st.ID, *in.IsComplete)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteStep handles DELETE /subtasks/{id}: the user skipping a step.
func (h *Handler) DeleteStep(w http.ResponseWriter, r *http.Request) {
	st, ok := h.stepForUser(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteStep(st.ID); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
