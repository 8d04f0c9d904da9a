package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "http", cfg.Transport.Mode)
	require.Equal(t, 24*time.Hour, cfg.Session.IdleTimeout)
	require.Equal(t, "dungeonmind_session_id", cfg.Session.CookieName)
	require.Equal(t, []ProjectTool{{Tool: "cardgenerator", Collection: "cardgen_projects"}}, cfg.Projects)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
session:
  idle_timeout: 30m
  tools: [cardgenerator, storegenerator]
projects:
  - tool: cardgenerator
    collection: cards
  - tool: storegenerator
    collection: stores
`), 0o644))

	t.Setenv("DUNGEONMIND_CONFIG_PATH", path)
	t.Setenv("DUNGEONMIND_LOG_LEVEL", "debug")
	t.Setenv("DUNGEONMIND_COOKIE_SECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Session.CookieSecure)
	require.Len(t, cfg.Projects, 2)
	require.Equal(t, "stores", cfg.Projects[1].Collection)
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("DUNGEONMIND_SERVER_PORT", "abc")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Transport.Mode = "grpc"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Projects = append(cfg.Projects, ProjectTool{Tool: "unknown", Collection: "x"})
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Projects = append(cfg.Projects, ProjectTool{Tool: "cardgenerator", Collection: "again"})
	require.Error(t, cfg.Validate())

	require.NoError(t, Default().Validate())
}
