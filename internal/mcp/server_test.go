package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
	"github.com/dungeonmind/coordinator/internal/sqlite"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

const cardTool = "cardgenerator"

type harness struct {
	sessions *session.Manager
	services Services
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())
	t.Cleanup(func() { db.Close() })

	sessions := session.NewManager(nil)
	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), nil)
	repo := project.NewDocumentRepository(sqlite.NewDocumentRepository(db), "cardgen_projects")
	projects := project.NewService(cardTool, repo, sessions, nil, project.WithActivity(activitySvc))

	return &harness{
		sessions: sessions,
		services: Services{
			Sessions: sessions,
			Projects: map[string]ProjectService{cardTool: projects},
			Activity: activitySvc,
		},
	}
}

func (h *harness) connect(t *testing.T, cfg Config) *sdkmcp.ClientSession {
	t.Helper()
	cfg.Services = h.services
	cfg.SessionTools = []string{cardTool, "storegenerator"}
	server := NewServer(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	clientTransport, serverTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientSession.Close() })
	return clientSession
}

func (h *harness) local(t *testing.T, userID string) *sdkmcp.ClientSession {
	return h.connect(t, Config{TransportMode: "stdio", DefaultUserID: userID})
}

type callResult struct {
	SessionID string          `json:"session_id"`
	Result    json.RawMessage `json:"result"`
}

func resultText(t *testing.T, res *sdkmcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func call(t *testing.T, cs *sdkmcp.ClientSession, name string, args map[string]any) callResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	var out callResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	return out
}

func callError(t *testing.T, cs *sdkmcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.True(t, res.IsError)
	return resultText(t, res)
}

func TestServer_ListTools(t *testing.T) {
	cs := newHarness(t).local(t, "local")

	tools, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, tool := range tools.Tools {
		names[tool.Name] = true
	}
	for _, name := range []string{
		"ping", "create_project", "list_projects", "get_project", "update_project",
		"delete_project", "duplicate_project", "get_tool_state", "update_tool_state",
		"get_session_status", "get_recent_activity",
	} {
		require.True(t, names[name], "missing tool %s", name)
	}
}

func TestServer_Ping(t *testing.T) {
	cs := newHarness(t).local(t, "local")

	res, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{Name: "ping"})
	require.NoError(t, err)
	require.Equal(t, "pong", resultText(t, res))
}

func TestServer_ProjectFlow(t *testing.T) {
	h := newHarness(t)
	cs := h.local(t, "local")

	created := call(t, cs, "create_project", map[string]any{"name": "Dragon"})
	require.NotEmpty(t, created.SessionID)
	var proj project.Project
	require.NoError(t, json.Unmarshal(created.Result, &proj))
	require.Equal(t, "local", proj.UserID)

	stateRes := call(t, cs, "get_tool_state", map[string]any{"session_id": created.SessionID})
	require.Equal(t, created.SessionID, stateRes.SessionID)
	var state toolStateResult
	require.NoError(t, json.Unmarshal(stateRes.Result, &state))
	require.Equal(t, proj.ID, state.State.ActiveProjectID())
	require.Equal(t, "Dragon", state.State[session.KeyActiveProjectName])

	call(t, cs, "update_tool_state", map[string]any{
		"session_id": created.SessionID,
		"state":      map[string]any{"step": 2},
	})
	stateRes = call(t, cs, "get_tool_state", map[string]any{"session_id": created.SessionID})
	require.NoError(t, json.Unmarshal(stateRes.Result, &state))
	require.Equal(t, float64(2), state.State["step"])
	require.Equal(t, proj.ID, state.State.ActiveProjectID())

	dup := call(t, cs, "duplicate_project", map[string]any{"session_id": created.SessionID, "id": proj.ID, "new_name": "Lich"})
	var copied project.Project
	require.NoError(t, json.Unmarshal(dup.Result, &copied))
	require.Equal(t, "Copy of Dragon", copied.Description)

	listed := call(t, cs, "list_projects", map[string]any{"session_id": created.SessionID})
	var list project.ListResult
	require.NoError(t, json.Unmarshal(listed.Result, &list))
	require.Equal(t, 2, list.Total)

	call(t, cs, "delete_project", map[string]any{"session_id": created.SessionID, "id": copied.ID})
	stateRes = call(t, cs, "get_tool_state", map[string]any{"session_id": created.SessionID})
	require.NoError(t, json.Unmarshal(stateRes.Result, &state))
	require.Nil(t, state.State[session.KeyActiveProjectID])

	msg := callError(t, cs, "get_project", map[string]any{"session_id": created.SessionID, "id": copied.ID})
	require.Contains(t, msg, "PROJECT_NOT_FOUND")

	act := call(t, cs, "get_recent_activity", map[string]any{"project_id": proj.ID})
	var entries []activity.ActivityEntry
	require.NoError(t, json.Unmarshal(act.Result, &entries))
	require.NotEmpty(t, entries)
}

func TestServer_Validation(t *testing.T) {
	cs := newHarness(t).local(t, "local")

	msg := callError(t, cs, "update_tool_state", map[string]any{
		"state": map[string]any{session.KeyActiveProjectID: "p1"},
	})
	require.Contains(t, msg, "VALIDATION_FAILED")

	msg = callError(t, cs, "get_tool_state", map[string]any{"tool": "unknown"})
	require.Contains(t, msg, "UNKNOWN_TOOL")

	msg = callError(t, cs, "list_projects", map[string]any{"tool": "ruleslawyer"})
	require.Contains(t, msg, "UNKNOWN_TOOL")

	msg = callError(t, cs, "create_project", map[string]any{"name": "  "})
	require.Contains(t, msg, "VALIDATION_FAILED")
}

func TestServer_SessionOwnership(t *testing.T) {
	h := newHarness(t)
	alice := h.local(t, "alice")
	bob := h.local(t, "bob")

	created := call(t, alice, "create_project", map[string]any{"name": "Hoard"})
	var proj project.Project
	require.NoError(t, json.Unmarshal(created.Result, &proj))

	msg := callError(t, bob, "get_tool_state", map[string]any{"session_id": created.SessionID})
	require.Contains(t, msg, "FORBIDDEN")

	msg = callError(t, bob, "get_project", map[string]any{"id": proj.ID})
	require.Contains(t, msg, "FORBIDDEN")
}

func TestServer_RequiresTokenOverHTTP(t *testing.T) {
	h := newHarness(t)
	resolver := auth.NewJWTResolver([]byte("secret"), "dungeonmind")
	cs := h.connect(t, Config{TransportMode: "http", Resolver: resolver})

	_, err := cs.CallTool(context.Background(), &sdkmcp.CallToolParams{
		Name:      "list_projects",
		Arguments: map[string]any{},
	})
	require.Error(t, err)
}

func TestMapError(t *testing.T) {
	require.Nil(t, MapError(nil))
	require.Equal(t, "PROJECT_NOT_FOUND", MapError(project.ErrProjectNotFound).Code)
	require.Equal(t, "FORBIDDEN", MapError(session.ErrUserMismatch).Code)
	require.Equal(t, "STORE_UNAVAILABLE", MapError(project.ErrStoreUnavailable).Code)
	require.Equal(t, "INTERNAL_ERROR", MapError(session.ErrConsistencyFault).Code)
	require.Contains(t, MapError(project.ErrInvalidInput).Error(), "VALIDATION_FAILED")
}
