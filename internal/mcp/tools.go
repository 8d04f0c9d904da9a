package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type sessionArgs struct {
	Tool      string `json:"tool,omitempty" jsonschema:"Tool the call applies to (defaults to cardgenerator)"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Coordinator session ID; omit to start a new session"`
}

type createProjectInput struct {
	Tool        string `json:"tool,omitempty" jsonschema:"Tool the call applies to"`
	SessionID   string `json:"session_id,omitempty" jsonschema:"Coordinator session ID"`
	Name        string `json:"name" jsonschema:"Project display name"`
	Description string `json:"description,omitempty" jsonschema:"Project description"`
}

type listProjectsInput struct {
	Tool             string `json:"tool,omitempty" jsonschema:"Tool the call applies to"`
	SessionID        string `json:"session_id,omitempty" jsonschema:"Coordinator session ID"`
	IncludeTemplates bool   `json:"include_templates,omitempty" jsonschema:"Include template projects"`
}

type projectIDInput struct {
	Tool      string `json:"tool,omitempty" jsonschema:"Tool the call applies to"`
	SessionID string `json:"session_id,omitempty" jsonschema:"Coordinator session ID"`
	ID        string `json:"id" jsonschema:"Project ID"`
}

type updateProjectInput struct {
	Tool        string            `json:"tool,omitempty" jsonschema:"Tool the call applies to"`
	SessionID   string            `json:"session_id,omitempty" jsonschema:"Coordinator session ID"`
	ID          string            `json:"id" jsonschema:"Project ID"`
	Name        *string           `json:"name,omitempty" jsonschema:"New name; blank is ignored"`
	Description *string           `json:"description,omitempty" jsonschema:"New description; empty clears it"`
	Metadata    *project.Metadata `json:"metadata,omitempty" jsonschema:"Replacement metadata"`
}

type duplicateProjectInput struct {
	Tool        string  `json:"tool,omitempty" jsonschema:"Tool the call applies to"`
	SessionID   string  `json:"session_id,omitempty" jsonschema:"Coordinator session ID"`
	ID          string  `json:"id" jsonschema:"Source project ID"`
	NewName     string  `json:"new_name" jsonschema:"Name of the copy"`
	Description *string `json:"description,omitempty" jsonschema:"Description of the copy"`
}

type updateToolStateInput struct {
	Tool      string         `json:"tool,omitempty" jsonschema:"Tool the call applies to"`
	SessionID string         `json:"session_id,omitempty" jsonschema:"Coordinator session ID"`
	State     map[string]any `json:"state" jsonschema:"Fields to merge into the tool's session state"`
}

type activityInput struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"Project ID to filter by"`
	Tool      string `json:"tool,omitempty" jsonschema:"Tool to filter by"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of entries"`
}

type emptyInput struct{}

// toolResponse is the JSON body of every successful tool result.
type toolResponse struct {
	SessionID string `json:"session_id,omitempty"`
	Result    any    `json:"result"`
}

type toolStateResult struct {
	Tool  string        `json:"tool"`
	State session.State `json:"state"`
}

type toolSet struct {
	sessions     SessionService
	projects     map[string]ProjectService
	activity     ActivityService
	sessionTools []string
	defaultTool  string
	logger       *slog.Logger
}

func newToolSet(cfg Config) *toolSet {
	defaultTool := cfg.DefaultTool
	if defaultTool == "" {
		defaultTool = "cardgenerator"
	}
	return &toolSet{
		sessions:     cfg.Services.Sessions,
		projects:     cfg.Services.Projects,
		activity:     cfg.Services.Activity,
		sessionTools: cfg.SessionTools,
		defaultTool:  defaultTool,
		logger:       cfg.Logger,
	}
}

func registerTools(server *sdkmcp.Server, ts *toolSet) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "ping",
		Description: "Check that the coordinator is reachable",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, _ emptyInput) (*sdkmcp.CallToolResult, any, error) {
		return textResult("pong")
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "create_project",
		Description: "Create an empty project and make it the session's active project",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in createProjectInput) (*sdkmcp.CallToolResult, any, error) {
		svc, caller, err := ts.projectCall(ctx, sessionArgs{Tool: in.Tool, SessionID: in.SessionID})
		if err != nil {
			return nil, nil, MapError(err)
		}
		proj, err := svc.Create(ctx, caller, project.CreateRequest{Name: in.Name, Description: in.Description})
		return ts.respond(caller.SessionID, proj, err)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_projects",
		Description: "List your projects for a tool, most recently updated first",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in listProjectsInput) (*sdkmcp.CallToolResult, any, error) {
		svc, caller, err := ts.projectCall(ctx, sessionArgs{Tool: in.Tool, SessionID: in.SessionID})
		if err != nil {
			return nil, nil, MapError(err)
		}
		result, err := svc.List(ctx, caller, project.ListOptions{IncludeTemplates: in.IncludeTemplates})
		return ts.respond(caller.SessionID, result, err)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_project",
		Description: "Open a project: returns it and makes it the session's active project",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in projectIDInput) (*sdkmcp.CallToolResult, any, error) {
		svc, caller, err := ts.projectCall(ctx, sessionArgs{Tool: in.Tool, SessionID: in.SessionID})
		if err != nil {
			return nil, nil, MapError(err)
		}
		proj, err := svc.Get(ctx, caller, in.ID)
		return ts.respond(caller.SessionID, proj, err)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_project",
		Description: "Update a project's name, description or metadata",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in updateProjectInput) (*sdkmcp.CallToolResult, any, error) {
		svc, caller, err := ts.projectCall(ctx, sessionArgs{Tool: in.Tool, SessionID: in.SessionID})
		if err != nil {
			return nil, nil, MapError(err)
		}
		err = svc.Update(ctx, caller, in.ID, project.UpdateRequest{Name: in.Name, Description: in.Description, Metadata: in.Metadata})
		return ts.respond(caller.SessionID, map[string]string{"id": in.ID, "status": "updated"}, err)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "delete_project",
		Description: "Delete a project; clears the active project if it was this one",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in projectIDInput) (*sdkmcp.CallToolResult, any, error) {
		svc, caller, err := ts.projectCall(ctx, sessionArgs{Tool: in.Tool, SessionID: in.SessionID})
		if err != nil {
			return nil, nil, MapError(err)
		}
		err = svc.Delete(ctx, caller, in.ID)
		return ts.respond(caller.SessionID, map[string]string{"id": in.ID, "status": "deleted"}, err)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "duplicate_project",
		Description: "Copy a project under a new name and make the copy active",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in duplicateProjectInput) (*sdkmcp.CallToolResult, any, error) {
		svc, caller, err := ts.projectCall(ctx, sessionArgs{Tool: in.Tool, SessionID: in.SessionID})
		if err != nil {
			return nil, nil, MapError(err)
		}
		dup, err := svc.Duplicate(ctx, caller, in.ID, project.DuplicateRequest{NewName: in.NewName, Description: in.Description})
		return ts.respond(caller.SessionID, dup, err)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_tool_state",
		Description: "Read a tool's state in the session, including the active project pointer",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in sessionArgs) (*sdkmcp.CallToolResult, any, error) {
		tool, sessionID, err := ts.stateCall(ctx, in)
		if err != nil {
			return nil, nil, MapError(err)
		}
		state, ok, err := ts.sessions.GetToolState(sessionID, tool)
		if !ok {
			state = session.State{}
		}
		return ts.respond(sessionID, toolStateResult{Tool: tool, State: state}, err)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_tool_state",
		Description: "Shallow-merge fields into a tool's session state",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in updateToolStateInput) (*sdkmcp.CallToolResult, any, error) {
		tool, sessionID, err := ts.stateCall(ctx, sessionArgs{Tool: in.Tool, SessionID: in.SessionID})
		if err != nil {
			return nil, nil, MapError(err)
		}
		for _, key := range []string{session.KeyActiveProjectID, session.KeyActiveProjectName} {
			if _, ok := in.State[key]; ok {
				return nil, nil, &APIError{Code: "VALIDATION_FAILED", Message: key + " is managed by project tools"}
			}
		}
		if err := ts.sessions.UpdateToolState(sessionID, tool, in.State); err != nil {
			return nil, nil, MapError(err)
		}
		state, _, err := ts.sessions.GetToolState(sessionID, tool)
		return ts.respond(sessionID, toolStateResult{Tool: tool, State: state}, err)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_session_status",
		Description: "Describe the session: owner, tools with state, and timestamps",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in sessionArgs) (*sdkmcp.CallToolResult, any, error) {
		sessionID, err := ts.resolveSession(ctx, in.SessionID)
		if err != nil {
			return nil, nil, MapError(err)
		}
		status, err := ts.sessions.Status(sessionID)
		return ts.respond(sessionID, status, err)
	})

	if ts.activity != nil {
		sdkmcp.AddTool(server, &sdkmcp.Tool{
			Name:        "get_recent_activity",
			Description: "List your recent project activity, newest first",
		}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in activityInput) (*sdkmcp.CallToolResult, any, error) {
			userID, ok := auth.UserFromContext(ctx)
			if !ok {
				return nil, nil, MapError(auth.ErrUnauthorized)
			}
			entries, err := ts.activity.GetRecentActivity(ctx, userID, activity.ListActivityOptions{
				ProjectID: in.ProjectID,
				Tool:      in.Tool,
				Limit:     in.Limit,
			})
			return ts.respond("", entries, err)
		})
	}
}

// resolveSession finds or starts the caller's coordinator session and binds it to the user.
func (ts *toolSet) resolveSession(ctx context.Context, requested string) (string, error) {
	userID, ok := auth.UserFromContext(ctx)
	if !ok {
		return "", auth.ErrUnauthorized
	}
	if requested == "" {
		requested = getSessionID(ctx)
	}
	sess, created := ts.sessions.Resolve(requested)
	if err := ts.sessions.BindUser(sess.ID, userID); err != nil {
		return "", err
	}
	if created {
		ts.logger.Debug("mcp session started", "session_id", sess.ID, "user_id", userID)
	}
	return sess.ID, nil
}

func (ts *toolSet) projectCall(ctx context.Context, args sessionArgs) (ProjectService, project.Caller, error) {
	tool := ts.tool(args.Tool)
	svc, ok := ts.projects[tool]
	if !ok {
		return nil, project.Caller{}, &APIError{Code: "UNKNOWN_TOOL", Message: fmt.Sprintf("no projects for tool %q", tool)}
	}
	sessionID, err := ts.resolveSession(ctx, args.SessionID)
	if err != nil {
		return nil, project.Caller{}, err
	}
	userID, _ := auth.UserFromContext(ctx)
	return svc, project.Caller{UserID: userID, SessionID: sessionID}, nil
}

func (ts *toolSet) stateCall(ctx context.Context, args sessionArgs) (string, string, error) {
	tool := ts.tool(args.Tool)
	if !slices.Contains(ts.sessionTools, tool) {
		return "", "", &APIError{Code: "UNKNOWN_TOOL", Message: fmt.Sprintf("unknown tool %q", tool)}
	}
	sessionID, err := ts.resolveSession(ctx, args.SessionID)
	return tool, sessionID, err
}

func (ts *toolSet) tool(name string) string {
	if name == "" {
		return ts.defaultTool
	}
	return name
}

func (ts *toolSet) respond(sessionID string, result any, err error) (*sdkmcp.CallToolResult, any, error) {
	if err != nil {
		return nil, nil, MapError(err)
	}
	data, err := json.Marshal(toolResponse{SessionID: sessionID, Result: result})
	if err != nil {
		return nil, nil, fmt.Errorf("encoding result: %w", err)
	}
	return textResult(string(data))
}

func textResult(text string) (*sdkmcp.CallToolResult, any, error) {
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: text}},
	}, nil, nil
}
