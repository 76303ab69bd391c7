// Package server wires the HTTP surface: task CRUD, the decomposition
// and prioritization pipeline endpoints, and the auth callback.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/unstuck-app/unstuck/internal/auth"
	"github.com/unstuck-app/unstuck/internal/config"
	"github.com/unstuck-app/unstuck/internal/genai"
	"github.com/unstuck-app/unstuck/internal/httpmw"
	"github.com/unstuck-app/unstuck/internal/task"
)

// Server holds the per-process dependencies for all handlers. Clients
// are injected explicitly; there are no module-level singletons.
type Server struct {
	cfg    *config.Config
	logger *log.Logger

	tasks       *task.Store
	taskHandler *task.Handler
	authSvc     *auth.Service

	// gen yields the current generative client, nil when unconfigured.
	// Pipeline endpoints check for absence and answer 500 instead of
	// crashing.
	gen        *genai.Handle
	genTimeout time.Duration
}

// New creates a Server. gen may be nil or empty when the generative
// service is unconfigured.
func New(cfg *config.Config, logger *log.Logger, tasks *task.Store, authSvc *auth.Service, gen *genai.Handle) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if gen == nil {
		gen = genai.NewHandle(nil)
	}
	genTimeout := cfg.Timeouts.Generate
	if genTimeout <= 0 {
		genTimeout = 30 * time.Second
	}
	return &Server{
		cfg:         cfg,
		logger:      logger,
		tasks:       tasks,
		taskHandler: task.NewHandler(tasks),
		authSvc:     authSvc,
		gen:         gen,
		genTimeout:  genTimeout,
	}
}

// Handler assembles the routes and middleware chain.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("GET /tasks", s.taskHandler.List)
	api.HandleFunc("POST /tasks", s.taskHandler.Create)
	api.HandleFunc("GET /tasks/{id}", s.taskHandler.Get)
	api.HandleFunc("PATCH /tasks/{id}", s.taskHandler.Update)
	api.HandleFunc("DELETE /tasks/{id}", s.taskHandler.Delete)

	api.HandleFunc("POST /tasks/decompose", s.Decompose)
	api.HandleFunc("POST /tasks/prioritize", s.Prioritize)

	api.HandleFunc("PATCH /subtasks/{id}", s.taskHandler.UpdateStep)
	api.HandleFunc("DELETE /subtasks/{id}", s.taskHandler.DeleteStep)

	api.HandleFunc("POST /notes/organize", s.OrganizeNote)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("POST /auth/callback", s.authSvc.Callback)
	mux.Handle("/", s.authSvc.RequireUser(api))

	return httpmw.Chain(mux,
		httpmw.WithRequestID,
		httpmw.WithRecover(s.logger),
		httpmw.WithAccessLog(s.logger),
	)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}
