package transport

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
	"github.com/go-chi/chi/v5"
)

// SessionService is the session registry as seen by HTTP handlers.
type SessionService interface {
	SessionResolver
	Status(id string) (session.Status, error)
	GetToolState(id, tool string) (session.State, bool, error)
	UpdateToolState(id, tool string, patch session.State) error
}

// ProjectService defines project operations for one tool.
type ProjectService interface {
	Create(ctx context.Context, caller project.Caller, req project.CreateRequest) (*project.Project, error)
	List(ctx context.Context, caller project.Caller, opts project.ListOptions) (*project.ListResult, error)
	Get(ctx context.Context, caller project.Caller, id string) (*project.Project, error)
	Update(ctx context.Context, caller project.Caller, id string, req project.UpdateRequest) error
	Delete(ctx context.Context, caller project.Caller, id string) error
	Duplicate(ctx context.Context, caller project.Caller, id string, req project.DuplicateRequest) (*project.Project, error)
}

// ActivityService defines activity operations needed by HTTP handlers.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, userID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Config wires the HTTP server.
type Config struct {
	Sessions SessionService
	// Projects maps a tool name to its project service.
	Projects map[string]ProjectService
	Activity ActivityService
	Resolver auth.IdentityResolver
	// SessionTools lists the tools allowed to hold session state.
	SessionTools []string
	Session      SessionOptions
	// Metrics and MCP are mounted at /metrics and /mcp when set.
	Metrics http.Handler
	MCP     http.Handler
	Logger  *slog.Logger
}

// Server holds the handler dependencies.
type Server struct {
	sessions     SessionService
	projects     map[string]ProjectService
	activity     ActivityService
	sessionTools []string
	logger       *slog.Logger
}

// NewServer creates an HTTP server router with middleware.
func NewServer(cfg Config) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{
		sessions:     cfg.Sessions,
		projects:     cfg.Projects,
		activity:     cfg.Activity,
		sessionTools: cfg.SessionTools,
		logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Use(PrometheusMiddleware)

	r.Get("/health", srv.handleHealth)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}
	if cfg.MCP != nil {
		r.Handle("/mcp", cfg.MCP)
		r.Handle("/mcp/*", cfg.MCP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Resolver, logger))
		r.Use(SessionMiddleware(cfg.Sessions, cfg.Session, logger))

		r.Route("/session", func(r chi.Router) {
			r.Get("/status", srv.handleSessionStatus)
			r.Get("/tools/{tool}", srv.handleGetToolState)
			r.Put("/tools/{tool}", srv.handleUpdateToolState)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireUser(logger))

			if srv.activity != nil {
				r.Get("/activity", srv.handleListActivity)
			}
			r.Route("/{tool}/projects", func(r chi.Router) {
				r.Post("/", srv.handleCreateProject)
				r.Get("/", srv.handleListProjects)
				r.Get("/{id}", srv.handleGetProject)
				r.Put("/{id}", srv.handleUpdateProject)
				r.Delete("/{id}", srv.handleDeleteProject)
				r.Post("/{id}/duplicate", srv.handleDuplicateProject)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) knownSessionTool(tool string) bool {
	return slices.Contains(s.sessionTools, tool)
}
