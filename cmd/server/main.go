package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/config"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
	"github.com/dungeonmind/coordinator/internal/mcp"
	"github.com/dungeonmind/coordinator/internal/metrics"
	"github.com/dungeonmind/coordinator/internal/sqlite"
	"github.com/dungeonmind/coordinator/internal/transport"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.Transport.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if cfg.Log.Path != "" {
		fileWriter, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer fileWriter.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := session.NewManager(logger,
		session.WithIdleTimeout(cfg.Session.IdleTimeout),
		session.WithObserver(metrics.SessionObserver{}),
	)
	go sessions.RunSweeper(ctx, cfg.Session.SweepInterval)

	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), logger)
	documents := sqlite.NewDocumentRepository(db)

	httpProjects := make(map[string]transport.ProjectService, len(cfg.Projects))
	mcpProjects := make(map[string]mcp.ProjectService, len(cfg.Projects))
	for _, p := range cfg.Projects {
		svc := project.NewService(p.Tool,
			project.NewDocumentRepository(documents, p.Collection),
			sessions,
			logger.With("tool", p.Tool),
			project.WithActivity(activitySvc),
			project.WithRecorder(metrics.ProjectRecorder{}),
			project.WithStoreTimeout(cfg.Store.Timeout),
		)
		httpProjects[p.Tool] = svc
		mcpProjects[p.Tool] = svc
	}

	resolver := newResolver(cfg, db)

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Sessions: sessions,
			Projects: mcpProjects,
			Activity: activitySvc,
		},
		SessionTools:  cfg.Session.Tools,
		Resolver:      resolver,
		DefaultUserID: cfg.MCP.UserID,
		TransportMode: cfg.Transport.Mode,
		Logger:        logger,
	})

	if cfg.Transport.Mode == "stdio" {
		runStdioMode(ctx, logger, mcpServer)
		return
	}

	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(r *http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)
	router := transport.NewServer(transport.Config{
		Sessions:     sessions,
		Projects:     httpProjects,
		Activity:     activitySvc,
		Resolver:     resolver,
		SessionTools: cfg.Session.Tools,
		Session: transport.SessionOptions{
			CookieName:   cfg.Session.CookieName,
			CookieSecure: cfg.Session.CookieSecure,
			MaxAge:       cfg.Session.IdleTimeout,
		},
		Metrics: promhttp.Handler(),
		MCP:     mcpHandler,
		Logger:  logger,
	})
	runHTTPMode(ctx, logger, router, cfg.Addr())
}

// newResolver accepts JWTs when a secret is configured, then API keys.
func newResolver(cfg config.Config, db *sqlite.DB) auth.IdentityResolver {
	var chain auth.ChainResolver
	if cfg.Auth.JWTSecret != "" {
		chain = append(chain, auth.NewJWTResolver([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer))
	}
	return append(chain, sqlite.NewAPIKeyRepository(db))
}

func runStdioMode(ctx context.Context, logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport", "auth", "disabled")

	// Run blocks until stdin closes or the context is canceled.
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		logger.Error("stdio server error", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, handler http.Handler, addr string) {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(ctx, logger, httpServer)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(ctx context.Context, logger *slog.Logger, server *http.Server) {
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
