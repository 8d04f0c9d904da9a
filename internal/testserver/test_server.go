// Package testserver runs the full coordinator HTTP stack against an
// in-memory database for end-to-end tests.
package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
	"github.com/dungeonmind/coordinator/internal/mcp"
	"github.com/dungeonmind/coordinator/internal/sqlite"
	"github.com/dungeonmind/coordinator/internal/transport"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// Tools with session state; cardgenerator also has a project store.
var Tools = []string{"cardgenerator", "storegenerator", "ruleslawyer", "statblockgenerator"}

const jwtIssuer = "dungeonmind-test"

type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Sessions *session.Manager
	APIKeys  *sqlite.APIKeyRepository
	JWT      *auth.JWTResolver
}

func New(t *testing.T) *TestServer {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	documents := sqlite.NewDocumentRepository(db)
	activitySvc := activity.NewService(sqlite.NewActivityRepository(db), nil)
	sessions := session.NewManager(nil)
	cards := project.NewService("cardgenerator",
		project.NewDocumentRepository(documents, "cardgen_projects"),
		sessions, nil,
		project.WithActivity(activitySvc),
		project.WithStoreTimeout(2*time.Second),
	)

	apiKeys := sqlite.NewAPIKeyRepository(db)
	jwtResolver := auth.NewJWTResolver([]byte("test-secret"), jwtIssuer)
	resolver := auth.ChainResolver{jwtResolver, apiKeys}

	mcpServer := mcp.NewServer(mcp.Config{
		Services: mcp.Services{
			Sessions: sessions,
			Projects: map[string]mcp.ProjectService{"cardgenerator": cards},
			Activity: activitySvc,
		},
		SessionTools:  Tools,
		Resolver:      resolver,
		TransportMode: "http",
	})
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return mcpServer },
		&sdkmcp.StreamableHTTPOptions{Stateless: true},
	)

	router := transport.NewServer(transport.Config{
		Sessions:     sessions,
		Projects:     map[string]transport.ProjectService{"cardgenerator": cards},
		Activity:     activitySvc,
		Resolver:     resolver,
		SessionTools: Tools,
		Session:      transport.SessionOptions{CookieName: "dungeonmind_session_id"},
		MCP:          mcpHandler,
	})
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		_ = db.Close()
	})

	return &TestServer{
		Server:   server,
		DB:       db,
		Sessions: sessions,
		APIKeys:  apiKeys,
		JWT:      jwtResolver,
	}
}

// AddAPIKey registers token as an API key for userID.
func (ts *TestServer) AddAPIKey(t *testing.T, token, userID string) {
	t.Helper()
	require.NoError(t, ts.APIKeys.Add(context.Background(), token, userID, "test"))
}

// Token issues a bearer token for userID.
func (ts *TestServer) Token(t *testing.T, userID string) string {
	t.Helper()
	token, err := ts.JWT.IssueToken(userID, time.Hour)
	require.NoError(t, err)
	return token
}
