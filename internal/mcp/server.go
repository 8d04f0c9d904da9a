package mcp

import (
	"context"
	"log/slog"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// SessionService defines session registry operations needed by MCP.
type SessionService interface {
	Resolve(id string) (session.Session, bool)
	BindUser(id, userID string) error
	Status(id string) (session.Status, error)
	GetToolState(id, tool string) (session.State, bool, error)
	UpdateToolState(id, tool string, patch session.State) error
}

// ProjectService defines project operations needed by MCP.
type ProjectService interface {
	Create(ctx context.Context, caller project.Caller, req project.CreateRequest) (*project.Project, error)
	List(ctx context.Context, caller project.Caller, opts project.ListOptions) (*project.ListResult, error)
	Get(ctx context.Context, caller project.Caller, id string) (*project.Project, error)
	Update(ctx context.Context, caller project.Caller, id string, req project.UpdateRequest) error
	Delete(ctx context.Context, caller project.Caller, id string) error
	Duplicate(ctx context.Context, caller project.Caller, id string, req project.DuplicateRequest) (*project.Project, error)
}

// ActivityService defines activity operations needed by MCP.
type ActivityService interface {
	GetRecentActivity(ctx context.Context, userID string, opts activity.ListActivityOptions) ([]activity.ActivityEntry, error)
}

// Services contains all domain services needed by MCP.
type Services struct {
	Sessions SessionService
	// Projects maps a tool name to its project service.
	Projects map[string]ProjectService
	Activity ActivityService
}

// Config contains server configuration.
type Config struct {
	Services     Services
	SessionTools []string
	// DefaultTool is used when a call names no tool.
	DefaultTool string
	Resolver    auth.IdentityResolver
	// DefaultUserID is the identity of unauthenticated callers. Stdio mode
	// always acts as this user; HTTP mode does so only when Resolver is nil.
	DefaultUserID string
	TransportMode string // "stdio" or "http"
	Logger        *slog.Logger
}

// NewServer creates and configures an MCP server with all tools and middleware.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "dungeonmind-coordinator",
		Version: "0.1.0",
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	if cfg.TransportMode == "stdio" || cfg.Resolver == nil {
		server.AddReceivingMiddleware(noAuthMiddleware(cfg.DefaultUserID))
	} else {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	}
	server.AddReceivingMiddleware(sessionMiddleware())
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, newToolSet(cfg))

	return server
}
