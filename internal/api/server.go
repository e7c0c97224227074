// Package api exposes the workflow engine over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/nexflow/flowd/internal/access"
	"github.com/nexflow/flowd/internal/dispatch"
	"github.com/nexflow/flowd/internal/repository"
	"github.com/nexflow/flowd/internal/suggest"
	"github.com/nexflow/flowd/internal/version"
)

type Server struct {
	manager    *version.Manager
	access     *access.Service
	dispatcher *dispatch.Dispatcher
	scheduler  *dispatch.Scheduler
	workflows  repository.WorkflowRepository
	versions   repository.VersionRepository
	executions repository.ExecutionRepository
	logs       repository.ExecutionLogRepository
	perms      repository.PermissionRepository
	suggester  suggest.Provider
	jwtSecret  []byte
}

func NewServer(manager *version.Manager, accessSvc *access.Service, dispatcher *dispatch.Dispatcher,
	workflows repository.WorkflowRepository, versions repository.VersionRepository,
	executions repository.ExecutionRepository, logs repository.ExecutionLogRepository,
	perms repository.PermissionRepository) *Server {
	return &Server{
		manager:    manager,
		access:     accessSvc,
		dispatcher: dispatcher,
		workflows:  workflows,
		versions:   versions,
		executions: executions,
		logs:       logs,
		perms:      perms,
		suggester:  suggest.HeuristicProvider{},
	}
}

// SetJWTSecret enables JWT bearer authentication. Without a secret the
// server trusts X-User-ID / X-Organization-ID headers (development mode).
func (s *Server) SetJWTSecret(secret string) {
	s.jwtSecret = []byte(secret)
}

// SetSuggester replaces the node suggestion provider.
func (s *Server) SetSuggester(p suggest.Provider) {
	s.suggester = p
}

// SetScheduler configures the cron scheduler for time-based triggers.
func (s *Server) SetScheduler(sched *dispatch.Scheduler) {
	s.scheduler = sched
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-User-ID", "X-Organization-ID"},
		AllowCredentials: true,
	}))
	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", s.createWorkflow)
			r.Get("/", s.listWorkflows)
			r.Get("/{id}", s.getWorkflow)
			r.Put("/{id}", s.updateWorkflow)
			r.Delete("/{id}", s.deleteWorkflow)
			r.Post("/{id}/draft", s.saveDraft)
			r.Post("/{id}/publish", s.publishVersion)
			r.Post("/{id}/rollback", s.rollbackVersion)
			r.Get("/{id}/versions", s.listVersions)
			r.Post("/{id}/edges/check", s.checkEdge)
			r.Get("/{id}/executions", s.listExecutions)
			r.Get("/{id}/permissions", s.listPermissions)
			r.Put("/{id}/permissions", s.grantPermission)
			r.Delete("/{id}/permissions/{userID}", s.revokePermission)
			r.Post("/{id}/suggest", s.suggestNodes)
		})
		r.Route("/executions", func(r chi.Router) {
			r.Get("/{id}", s.getExecution)
			r.Get("/{id}/logs", s.listExecutionLogs)
			r.Post("/{id}/cancel", s.cancelExecution)
		})
		r.Post("/events", s.ingestEvent)
		r.Post("/schedules", s.createSchedule)
		r.Delete("/schedules/{id}", s.deleteSchedule)
		r.Get("/dispatcher/stats", s.dispatcherStats)
	})
	return r
}
