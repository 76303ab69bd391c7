// Package task defines the task and micro-step domain model and its
// SQLite-backed store. Every read and write is scoped to the owning user.
package task

import "time"

// Priority represents the urgency tier assigned to a task.
type Priority string

const (
	// PriorityHigh indicates the task should be surfaced first.
	PriorityHigh Priority = "high"
	// PriorityMedium is the default tier for new and unranked tasks.
	PriorityMedium Priority = "medium"
	// PriorityLow indicates the task can wait.
	PriorityLow Priority = "low"
)

// Valid returns true if the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// EnergyLevel is the self-reported capacity tier used to scale step
// durations during decomposition.
type EnergyLevel string

const (
	// EnergyLow scales work steps down to 5-10 minutes.
	EnergyLow EnergyLevel = "low"
	// EnergyMedium scales work steps to 10-15 minutes.
	EnergyMedium EnergyLevel = "medium"
	// EnergyHigh scales work steps up to 20-30 minutes.
	EnergyHigh EnergyLevel = "high"
)

// Valid returns true if the energy level is a known value.
func (e EnergyLevel) Valid() bool {
	switch e {
	case EnergyLow, EnergyMedium, EnergyHigh:
		return true
	default:
		return false
	}
}

// Task is a user-owned unit of work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// UserID is the owning user. All access is filtered by it.
	UserID string `json:"user_id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Priority is the current urgency tier.
	Priority Priority `json:"priority"`
	// EnergyLevel is the capacity tier the task was created with.
	EnergyLevel EnergyLevel `json:"energy_level"`
	// Deadline is the optional due time, nil when the task has none.
	Deadline *time.Time `json:"deadline"`
	// IsComplete marks the task as done.
	IsComplete bool `json:"is_complete"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`

	// MicroSteps holds the task's steps ordered by step_order. Populated
	// by reads that request nesting; omitted otherwise.
	MicroSteps []MicroStep `json:"micro_steps"`
}

// MicroStep is a small, timed, ordered sub-action of a task. Steps are
// created in bulk by decomposition, never individually by the user.
type MicroStep struct {
	ID string `json:"id"`
	// TaskID is the owning task. A step belongs to exactly one task and
	// is removed when the task is deleted.
	TaskID string `json:"task_id"`
	// Description is imperative, verb-first text naming a checkable action.
	Description string `json:"description"`
	// EstimatedMinutes is the expected duration, always positive.
	EstimatedMinutes int `json:"estimated_minutes"`
	// StepOrder defines the work sequence within the task, starting at 1.
	StepOrder int `json:"step_order"`
	// IsComplete is toggled by the focus-timer view.
	IsComplete bool      `json:"is_complete"`
	CreatedAt  time.Time `json:"created_at"`
}

// Patch holds the mutable task fields for a partial update. Nil fields
// are left unchanged.
type Patch struct {
	Title       *string      `json:"title"`
	Priority    *Priority    `json:"priority"`
	EnergyLevel *EnergyLevel `json:"energy_level"`
	Deadline    *time.Time   `json:"deadline"`
	// ClearDeadline removes the deadline when true. A blank deadline in
	// the request body maps here.
	ClearDeadline bool  `json:"-"`
	IsComplete    *bool `json:"is_complete"`
}

// Empty returns true if the patch would change nothing.
func (p Patch) Empty() bool {
	return p.Title == nil && p.Priority == nil && p.EnergyLevel == nil &&
		p.Deadline == nil && !p.ClearDeadline && p.IsComplete == nil
}
