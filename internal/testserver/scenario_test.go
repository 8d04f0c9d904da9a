package testserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
	"github.com/dungeonmind/coordinator/internal/testserver"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type client struct {
	t         *testing.T
	ts        *testserver.TestServer
	token     string
	sessionID string
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.ts.Server.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.sessionID != "" {
		req.Header.Set("X-Session-Id", c.sessionID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if id := resp.Header.Get("X-Session-Id"); id != "" {
		c.sessionID = id
	}
	if out != nil && resp.StatusCode < 300 {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type toolState struct {
	State session.State `json:"state"`
}

func (c *client) toolState(tool string) session.State {
	c.t.Helper()
	var got toolState
	require.Equal(c.t, http.StatusOK, c.do(http.MethodGet, "/api/session/tools/"+tool, nil, &got))
	return got.State
}

func TestScenario_ActivePointerFollowsProjects(t *testing.T) {
	ts := testserver.New(t)
	c := &client{t: t, ts: ts, token: ts.Token(t, "u1")}

	var dragon project.Project
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/cardgenerator/projects", project.CreateRequest{Name: "Dragon"}, &dragon))
	state := c.toolState("cardgenerator")
	require.Equal(t, dragon.ID, state[session.KeyActiveProjectID])
	require.Equal(t, "Dragon", state[session.KeyActiveProjectName])

	var lich project.Project
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/cardgenerator/projects/"+dragon.ID+"/duplicate", map[string]string{"newName": "Lich"}, &lich))
	require.Equal(t, "Copy of Dragon", lich.Description)
	require.Equal(t, lich.ID, c.toolState("cardgenerator")[session.KeyActiveProjectID])

	require.Equal(t, http.StatusOK, c.do(http.MethodDelete, "/api/cardgenerator/projects/"+lich.ID, nil, nil))
	state = c.toolState("cardgenerator")
	require.Nil(t, state[session.KeyActiveProjectID])
	require.Nil(t, state[session.KeyActiveProjectName])

	// Opening the original points at it again.
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/cardgenerator/projects/"+dragon.ID, nil, nil))
	require.Equal(t, dragon.ID, c.toolState("cardgenerator")[session.KeyActiveProjectID])

	var list project.ListResult
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/cardgenerator/projects", nil, &list))
	require.Equal(t, 1, list.Total)
}

func TestScenario_APIKeyAuth(t *testing.T) {
	ts := testserver.New(t)
	ts.AddAPIKey(t, "dm_key_1", "u2")
	c := &client{t: t, ts: ts, token: "dm_key_1"}

	var proj project.Project
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/cardgenerator/projects", project.CreateRequest{Name: "Keyed"}, &proj))
	require.Equal(t, "u2", proj.UserID)

	c.token = "dm_key_unknown"
	require.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/cardgenerator/projects", nil, nil))
}

func TestScenario_OtherUserIsolated(t *testing.T) {
	ts := testserver.New(t)
	owner := &client{t: t, ts: ts, token: ts.Token(t, "owner")}
	other := &client{t: t, ts: ts, token: ts.Token(t, "other")}

	var proj project.Project
	require.Equal(t, http.StatusCreated, owner.do(http.MethodPost, "/api/cardgenerator/projects", project.CreateRequest{Name: "Private"}, &proj))

	require.Equal(t, http.StatusForbidden, other.do(http.MethodGet, "/api/cardgenerator/projects/"+proj.ID, nil, nil))
	name := "Stolen"
	require.Equal(t, http.StatusForbidden, other.do(http.MethodPut, "/api/cardgenerator/projects/"+proj.ID, project.UpdateRequest{Name: &name}, nil))

	var list project.ListResult
	require.Equal(t, http.StatusOK, other.do(http.MethodGet, "/api/cardgenerator/projects", nil, &list))
	require.Zero(t, list.Total)

	other.sessionID = owner.sessionID
	require.Equal(t, http.StatusForbidden, other.do(http.MethodGet, "/api/session/tools/cardgenerator", nil, nil))
}

func TestScenario_ConcurrentToolWrites(t *testing.T) {
	ts := testserver.New(t)
	c := &client{t: t, ts: ts}
	c.toolState("cardgenerator")
	sessionID := c.sessionID

	const writes = 20
	var g errgroup.Group
	for _, tool := range testserver.Tools {
		for i := range writes {
			g.Go(func() error {
				body, _ := json.Marshal(map[string]any{fmt.Sprintf("k%d", i): i})
				req, err := http.NewRequest(http.MethodPut, ts.Server.URL+"/api/session/tools/"+tool, bytes.NewReader(body))
				if err != nil {
					return err
				}
				req.Header.Set("X-Session-Id", sessionID)
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					return fmt.Errorf("%s write %d: status %d", tool, i, resp.StatusCode)
				}
				return nil
			})
		}
	}
	require.NoError(t, g.Wait())

	for _, tool := range testserver.Tools {
		state := c.toolState(tool)
		require.Len(t, state, writes, tool)
	}
	require.Equal(t, sessionID, c.sessionID)
}

type bearerTransport struct {
	token string
}

func (b bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return http.DefaultTransport.RoundTrip(req)
}

func TestScenario_MCPOverHTTP(t *testing.T) {
	ts := testserver.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mcpClient := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := mcpClient.Connect(ctx, &sdkmcp.StreamableClientTransport{
		Endpoint:   ts.Server.URL + "/mcp",
		HTTPClient: &http.Client{Transport: bearerTransport{token: ts.Token(t, "u3")}},
	}, nil)
	require.NoError(t, err)
	defer cs.Close()

	res, err := cs.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      "create_project",
		Arguments: map[string]any{"name": "From MCP"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	text, ok := res.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	var out struct {
		SessionID string          `json:"session_id"`
		Result    project.Project `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	require.Equal(t, "u3", out.Result.UserID)

	// The HTTP API sees the same session and project.
	c := &client{t: t, ts: ts, token: ts.Token(t, "u3"), sessionID: out.SessionID}
	require.Equal(t, out.Result.ID, c.toolState("cardgenerator")[session.KeyActiveProjectID])
}
