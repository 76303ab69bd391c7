package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unstuck-app/unstuck/internal/auth"
	"github.com/unstuck-app/unstuck/internal/config"
	"github.com/unstuck-app/unstuck/internal/genai"
	"github.com/unstuck-app/unstuck/internal/prioritize"
	"github.com/unstuck-app/unstuck/internal/store"
	"github.com/unstuck-app/unstuck/internal/task"
)

// stubGenerator returns a canned response and records the prompts it
// was asked to complete.
type stubGenerator struct {
	resp    string
	err     error
	prompts []string
}

func (g *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.resp, nil
}

type testEnv struct {
	srv     http.Handler
	tasks   *task.Store
	gen     *stubGenerator
	handle  *genai.Handle
	authSvc *auth.Service
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	tasks := task.NewStore(db)
	authSvc := auth.NewService(db, nil, time.Hour)
	token, err := authSvc.CreateSessionForUser("u1", "u1@example.com")
	require.NoError(t, err)

	gen := &stubGenerator{}
	handle := genai.NewHandle(gen)

	srv := New(config.Default(), nil, tasks, authSvc, handle)
	return &testEnv{
		srv:     srv.Handler(),
		tasks:   tasks,
		gen:     gen,
		handle:  handle,
		authSvc: authSvc,
		token:   token,
	}
}

func (e *testEnv) call(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createTask(t *testing.T, body string) task.Task {
	t.Helper()

	rec := e.call(t, http.MethodPost, "/tasks", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created
}

func TestHealthzIsPublic(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec := env.call(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAPIRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec := env.call(t, http.MethodGet, "/tasks", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDecomposeInsertsGeneratedSteps(t *testing.T) {
	env := newTestEnv(t)
	env.gen.resp = `[
		{"description":"Put dishes in sink","estimated_minutes":3,"step_order":1},
		{"description":"Wipe the counter","estimated_minutes":5,"step_order":2}
	]`

	created := env.createTask(t, `{"title":"Clean kitchen","energy_level":"low"}`)

	rec := env.call(t, http.MethodPost, "/tasks/decompose",
		`{"taskId":"`+created.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var steps []task.MicroStep
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	require.Len(t, steps, 2)
	assert.Equal(t, "Put dishes in sink", steps[0].Description)
	assert.Equal(t, 3, steps[0].EstimatedMinutes)
	assert.Equal(t, 1, steps[0].StepOrder)

	// The stored energy level drives the prompt's duration band.
	require.Len(t, env.gen.prompts, 1)
	assert.Contains(t, env.gen.prompts[0], "Clean kitchen")
	assert.Contains(t, env.gen.prompts[0], "5-10 minutes")
}

func TestDecomposeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.gen.resp = `[{"description":"Put dishes in sink","estimated_minutes":3,"step_order":1}]`

	created := env.createTask(t, `{"title":"Clean kitchen"}`)
	body := `{"taskId":"` + created.ID + `"}`

	rec := env.call(t, http.MethodPost, "/tasks/decompose", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var first []task.MicroStep
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Len(t, first, 1)

	// Second call returns the existing steps without calling the model.
	env.gen.resp = `[{"description":"Totally different","estimated_minutes":9,"step_order":1}]`
	rec = env.call(t, http.MethodPost, "/tasks/decompose", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var second []task.MicroStep
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, "Put dishes in sink", second[0].Description)
	assert.Len(t, env.gen.prompts, 1)
}

func TestDecomposeRenumbersTiedStepOrders(t *testing.T) {
	env := newTestEnv(t)
	env.gen.resp = `[
		{"description":"Put dishes in sink","estimated_minutes":3,"step_order":1},
		{"description":"Wipe the counter","estimated_minutes":5,"step_order":1}
	]`

	created := env.createTask(t, `{"title":"Clean kitchen"}`)

	rec := env.call(t, http.MethodPost, "/tasks/decompose",
		`{"taskId":"`+created.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var steps []task.MicroStep
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].StepOrder)
	assert.Equal(t, 2, steps[1].StepOrder)
	assert.Equal(t, "Put dishes in sink", steps[0].Description)
	assert.Equal(t, "Wipe the counter", steps[1].Description)
}

func TestDecomposeFallsBackOnUnusableOutput(t *testing.T) {
	cases := []struct {
		name string
		resp string
		err  error
	}{
		{"not json", "this is not json", nil},
		{"empty array", "[]", nil},
		{"call error", "", errors.New("upstream unavailable")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.gen.resp = tc.resp
			env.gen.err = tc.err

			created := env.createTask(t, `{"title":"Write report","energy_level":"medium"}`)

			rec := env.call(t, http.MethodPost, "/tasks/decompose",
				`{"taskId":"`+created.ID+`"}`)
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			var steps []task.MicroStep
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &steps))
			require.Len(t, steps, 3)
			assert.Equal(t, 2, steps[0].EstimatedMinutes)
			assert.Equal(t, 12, steps[1].EstimatedMinutes)
			assert.Equal(t, 3, steps[2].EstimatedMinutes)
			assert.Contains(t, steps[1].Description, "Write report")
		})
	}
}

func TestDecomposeValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.call(t, http.MethodPost, "/tasks/decompose", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "taskId is required")

	rec = env.call(t, http.MethodPost, "/tasks/decompose", `{"taskId":"missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDecomposeWithoutClient(t *testing.T) {
	env := newTestEnv(t)
	env.handle.Swap(nil)

	created := env.createTask(t, `{"title":"Clean kitchen"}`)

	rec := env.call(t, http.MethodPost, "/tasks/decompose",
		`{"taskId":"`+created.ID+`"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "generative service is not configured")
}

func TestPrioritizeUpdatesByIndex(t *testing.T) {
	env := newTestEnv(t)

	urgent := env.createTask(t, `{"title":"File taxes","deadline":"2026-09-01T12:00:00Z"}`)
	casual := env.createTask(t, `{"title":"Organize photos"}`)

	env.gen.resp = `[
		{"title":"File taxes","priority":"high","suggested_order":1},
		{"title":"Organize photos","priority":"low","suggested_order":2}
	]`

	rec := env.call(t, http.MethodPost, "/tasks/prioritize", `{"tasks":[
		{"id":"`+urgent.ID+`","title":"File taxes","deadline":"2026-09-01T12:00:00Z"},
		{"id":"`+casual.ID+`","title":"Organize photos"}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Success bool `json:"success"`
		Updates []struct {
			ID      string `json:"id"`
			Updated bool   `json:"updated"`
		} `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	require.Len(t, out.Updates, 2)
	assert.True(t, out.Updates[0].Updated)
	assert.True(t, out.Updates[1].Updated)

	got, err := env.tasks.Get("u1", urgent.ID)
	require.NoError(t, err)
	assert.Equal(t, task.PriorityHigh, got.Priority)

	got, err = env.tasks.Get("u1", casual.ID)
	require.NoError(t, err)
	assert.Equal(t, task.PriorityLow, got.Priority)
}

func TestPrioritizeMissingIndexDefaultsToMedium(t *testing.T) {
	env := newTestEnv(t)

	a := env.createTask(t, `{"title":"Task A","priority":"low"}`)
	b := env.createTask(t, `{"title":"Task B","priority":"low"}`)

	// Model answered with fewer entries than tasks sent.
	env.gen.resp = `[{"title":"Task A","priority":"high","suggested_order":1}]`

	rec := env.call(t, http.MethodPost, "/tasks/prioritize", `{"tasks":[
		{"id":"`+a.ID+`","title":"Task A"},
		{"id":"`+b.ID+`","title":"Task B"}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got, err := env.tasks.Get("u1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, task.PriorityMedium, got.Priority)
}

func TestPrioritizeTruncatesOverLengthResponse(t *testing.T) {
	env := newTestEnv(t)

	only := env.createTask(t, `{"title":"Only task"}`)

	// Model answered with more entries than tasks sent.
	env.gen.resp = `[
		{"title":"Only task","priority":"high","suggested_order":1},
		{"title":"Invented","priority":"low","suggested_order":2}
	]`

	rec := env.call(t, http.MethodPost, "/tasks/prioritize",
		`{"tasks":[{"id":"`+only.ID+`","title":"Only task"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Success    bool                `json:"success"`
		Priorities []prioritize.Ranked `json:"priorities"`
		Updates    []updateResult      `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Success)
	require.Len(t, out.Priorities, 1)
	assert.Equal(t, "Only task", out.Priorities[0].Title)
	require.Len(t, out.Updates, 1)

	got, err := env.tasks.Get("u1", only.ID)
	require.NoError(t, err)
	assert.Equal(t, task.PriorityHigh, got.Priority)
}

func TestPrioritizeReportsPerTaskFailures(t *testing.T) {
	env := newTestEnv(t)

	mine := env.createTask(t, `{"title":"Mine"}`)
	env.gen.resp = `[
		{"title":"Mine","priority":"high","suggested_order":1},
		{"title":"Ghost","priority":"low","suggested_order":2}
	]`

	rec := env.call(t, http.MethodPost, "/tasks/prioritize", `{"tasks":[
		{"id":"`+mine.ID+`","title":"Mine"},
		{"id":"not-a-task","title":"Ghost"}
	]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var out struct {
		Success bool `json:"success"`
		Updates []struct {
			ID      string `json:"id"`
			Updated bool   `json:"updated"`
			Error   string `json:"error"`
		} `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Success)
	require.Len(t, out.Updates, 2)
	assert.True(t, out.Updates[0].Updated)
	assert.False(t, out.Updates[1].Updated)
	assert.NotEmpty(t, out.Updates[1].Error)

	// The successful update stays applied.
	got, err := env.tasks.Get("u1", mine.ID)
	require.NoError(t, err)
	assert.Equal(t, task.PriorityHigh, got.Priority)
}

func TestPrioritizeFailsOnUnusableOutput(t *testing.T) {
	env := newTestEnv(t)
	created := env.createTask(t, `{"title":"Task A"}`)
	body := `{"tasks":[{"id":"` + created.ID + `","title":"Task A"}]}`

	env.gen.resp = "not json at all"
	rec := env.call(t, http.MethodPost, "/tasks/prioritize", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to prioritize tasks")

	env.gen.err = errors.New("upstream unavailable")
	rec = env.call(t, http.MethodPost, "/tasks/prioritize", body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to generate priorities")

	// Priorities are untouched on failure.
	got, err := env.tasks.Get("u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.PriorityMedium, got.Priority)
}

func TestPrioritizeValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.call(t, http.MethodPost, "/tasks/prioritize", `{"tasks":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "tasks array is required")
}

func TestPrioritizeCannotTouchForeignTasks(t *testing.T) {
	env := newTestEnv(t)

	seedForeignUser(t, env, "u2")
	foreign, err := env.tasks.Create("u2", task.Task{Title: "Not yours"})
	require.NoError(t, err)

	env.gen.resp = `[{"title":"Not yours","priority":"high","suggested_order":1}]`
	rec := env.call(t, http.MethodPost, "/tasks/prioritize",
		`{"tasks":[{"id":"`+foreign.ID+`","title":"Not yours"}]}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	got, err := env.tasks.Get("u2", foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, task.PriorityMedium, got.Priority)
}

// seedForeignUser satisfies the tasks.user_id foreign key for rows
// created directly through the store.
func seedForeignUser(t *testing.T, env *testEnv, id string) {
	t.Helper()
	_, err := env.authSvc.CreateSessionForUser(id, id+"@example.com")
	require.NoError(t, err)
}

func TestOrganizeNote(t *testing.T) {
	env := newTestEnv(t)
	env.gen.resp = `{"summary":"Plan the move","action_items":["Book van"],"key_points":["Move is on the 12th"],"tags":["moving"]}`

	rec := env.call(t, http.MethodPost, "/notes/organize",
		`{"note":"need to move soon, book a van, move is on the 12th"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Plan the move")
	assert.Contains(t, rec.Body.String(), "Book van")

	rec = env.call(t, http.MethodPost, "/notes/organize", `{"note":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "note is required")
}

func TestAuthCallback(t *testing.T) {
	env := newTestEnv(t)
	env.token = ""

	rec := env.call(t, http.MethodPost, "/auth/callback", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
