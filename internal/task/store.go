package task

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unstuck-app/unstuck/internal/store"
)

var (
	// ErrNotFound is returned when a task or step does not exist, or
	// exists but is owned by another user. List-style reads never
	// distinguish the two, so foreign rows do not leak.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a step exists but its owning task
	// belongs to a different user.
	ErrForbidden = errors.New("forbidden")
)

// Store persists tasks and micro-steps. All operations that take a
// userID filter by it; there is no unscoped access path.
type Store struct {
	db *store.DB
}

// NewStore creates a task store backed by the given database.
func NewStore(db *store.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new task owned by userID. Zero-valued priority and
// energy level fall back to medium.
func (s *Store) Create(userID string, t Task) (Task, error) {
	t.ID = uuid.New().String()
	t.UserID = userID
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.EnergyLevel == "" {
		t.EnergyLevel = EnergyMedium
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}

	var deadline *string
	if t.Deadline != nil {
		d := store.FormatTime(*t.Deadline)
		deadline = &d
	}

	_, err := s.db.Exec(`
		INSERT INTO tasks (id, user_id, title, priority, energy_level, deadline, is_complete, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Title, string(t.Priority), string(t.EnergyLevel), deadline, t.IsComplete, store.FormatTime(t.CreatedAt))
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", err)
	}

	return t, nil
}

// Get returns the task with nested steps, scoped to userID.
func (s *Store) Get(userID, id string) (Task, error) {
	t, err := s.getBare(userID, id)
	if err != nil {
		return Task{}, err
	}

	steps, err := s.StepsForTask(t.ID)
	if err != nil {
		return Task{}, err
	}
	t.MicroSteps = steps
	return t, nil
}

func (s *Store) getBare(userID, id string) (Task, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, priority, energy_level, deadline, is_complete, created_at
		FROM tasks WHERE id = ? AND user_id = ?
	`, id, userID)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

// List returns all of the user's tasks, newest first, each with its
// steps nested in step order.
func (s *Store) List(userID string) ([]Task, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, priority, energy_level, deadline, is_complete, created_at
		FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	for i := range tasks {
		steps, err := s.StepsForTask(tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].MicroSteps = steps
	}
	return tasks, nil
}

// Update applies a partial update to the user's task and returns the
// updated row without nested steps.
func (s *Store) Update(userID, id string, p Patch) (Task, error) {
	cur, err := s.getBare(userID, id)
	if err != nil {
		return Task{}, err
	}

	if p.Title != nil {
		cur.Title = *p.Title
	}
	if p.Priority != nil {
		cur.Priority = *p.Priority
	}
	if p.EnergyLevel != nil {
		cur.EnergyLevel = *p.EnergyLevel
	}
	if p.Deadline != nil {
		cur.Deadline = p.Deadline
	}
	if p.ClearDeadline {
		cur.Deadline = nil
	}
	if p.IsComplete != nil {
		cur.IsComplete = *p.IsComplete
	}

	var deadline *string
	if cur.Deadline != nil {
		d := store.FormatTime(*cur.Deadline)
		deadline = &d
	}

	res, err := s.db.Exec(`
		UPDATE tasks SET title = ?, priority = ?, energy_level = ?, deadline = ?, is_complete = ?
		WHERE id = ? AND user_id = ?
	`, cur.Title, string(cur.Priority), string(cur.EnergyLevel), deadline, cur.IsComplete, id, userID)
	if err != nil {
		return Task{}, fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Task{}, ErrNotFound
	}
	return cur, nil
}

// UpdatePriority sets only the priority of the user's task. Used by the
// prioritization fan-out.
func (s *Store) UpdatePriority(userID, id string, p Priority) error {
	res, err := s.db.Exec(`
		UPDATE tasks SET priority = ? WHERE id = ? AND user_id = ?
	`, string(p), id, userID)
	if err != nil {
		return fmt.Errorf("update priority: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the user's task. Steps cascade via the foreign key.
func (s *Store) Delete(userID, id string) error {
	res, err := s.db.Exec(`DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// StepsForTask returns the task's steps ordered by step_order. Callers
// must have resolved task ownership first.
func (s *Store) StepsForTask(taskID string) ([]MicroStep, error) {
	rows, err := s.db.Query(`
		SELECT id, task_id, description, estimated_minutes, step_order, is_complete, created_at
		FROM micro_steps WHERE task_id = ? ORDER BY step_order, id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []MicroStep{}
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// InsertStepsIfEmpty inserts the given steps for taskID only when the
// task has no steps yet. The count check and inserts run inside one
// transaction, so two concurrent first-time decompositions cannot both
// insert a step set. Returns the task's steps and whether this call
// inserted them.
func (s *Store) InsertStepsIfEmpty(taskID string, steps []MicroStep) ([]MicroStep, bool, error) {
	now := time.Now().UTC()
	inserted := false

	err := s.db.Transaction(func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM micro_steps WHERE task_id = ?`, taskID).Scan(&count); err != nil {
			return fmt.Errorf("count steps: %w", err)
		}
		if count > 0 {
			return nil
		}

		for i := range steps {
			steps[i].ID = uuid.New().String()
			steps[i].TaskID = taskID
			steps[i].IsComplete = false
			steps[i].CreatedAt = now

			_, err := tx.Exec(`
				INSERT INTO micro_steps (id, task_id, description, estimated_minutes, step_order, is_complete, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, steps[i].ID, taskID, steps[i].Description, steps[i].EstimatedMinutes, steps[i].StepOrder, false, store.FormatTime(now))
			if err != nil {
				return fmt.Errorf("insert step %d: %w", steps[i].StepOrder, err)
			}
		}
		inserted = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	out, err := s.StepsForTask(taskID)
	if err != nil {
		return nil, false, err
	}
	return out, inserted, nil
}

// GetStep returns a step by id together with the owning task's user id,
// so handlers can authorize before mutating.
func (s *Store) GetStep(id string) (MicroStep, string, error) {
	row := s.db.QueryRow(`
		SELECT ms.id, ms.task_id, ms.description, ms.estimated_minutes, ms.step_order, ms.is_complete, ms.created_at, t.user_id
		FROM micro_steps ms JOIN tasks t ON t.id = ms.task_id
		WHERE ms.id = ?
	`, id)

	var (
		st        MicroStep
		createdAt string
		ownerID   string
	)
	err := row.Scan(&st.ID, &st.TaskID, &st.Description, &st.EstimatedMinutes, &st.StepOrder, &st.IsComplete, &createdAt, &ownerID)
	if err == sql.ErrNoRows {
		return MicroStep{}, "", ErrNotFound
	}
	if err != nil {
		return MicroStep{}, "", fmt.Errorf("query step: %w", err)
	}
	if t, err := store.ParseTime(createdAt); err == nil {
		st.CreatedAt = t
	}
	return st, ownerID, nil
}

// SetStepComplete toggles a step's completion flag for the focus timer.
// The caller authorizes ownership via GetStep first.
func (s *Store) SetStepComplete(id string, complete bool) (MicroStep, error) {
	res, err := s.db.Exec(`UPDATE micro_steps SET is_complete = ? WHERE id = ?`, complete, id)
	if err != nil {
		return MicroStep{}, fmt.Errorf("update step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return MicroStep{}, ErrNotFound
	}

	st, _, err := s.GetStep(id)
	if err != nil {
		return MicroStep{}, err
	}
	return st, nil
}

// DeleteStep removes a single step, used when the user skips it.
func (s *Store) DeleteStep(id string) error {
	res, err := s.db.Exec(`DELETE FROM micro_steps WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete step: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t         Task
		priority  string
		energy    string
		deadline  sql.NullString
		createdAt string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &priority, &energy, &deadline, &t.IsComplete, &createdAt)
	if err != nil {
		return Task{}, err
	}
	t.Priority = Priority(priority)
	t.EnergyLevel = EnergyLevel(energy)
	t.Deadline = store.ParseNullableTime(deadline)
	if ts, err := store.ParseTime(createdAt); err == nil {
		t.CreatedAt = ts
	}
	return t, nil
}

func scanStep(row rowScanner) (MicroStep, error) {
	var (
		st        MicroStep
		createdAt string
	)
	err := row.Scan(&st.ID, &st.TaskID, &st.Description, &st.EstimatedMinutes, &st.StepOrder, &st.IsComplete, &createdAt)
	if err != nil {
		return MicroStep{}, err
	}
	if ts, err := store.ParseTime(createdAt); err == nil {
		st.CreatedAt = ts
	}
	return st, nil
}
