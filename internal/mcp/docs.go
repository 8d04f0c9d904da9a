package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `The DungeonMind coordinator keeps per-tool working state for a user session and stores projects.

Core concepts:
- Session: identified by session_id. Holds one state object per tool (cardgenerator, storegenerator, ...).
- Tool state: a JSON object. update_tool_state merges top-level fields; nested objects are replaced whole.
- Project: a saved snapshot of one tool's work, owned by you.
- Active project: activeProjectId and activeProjectName in the tool state. Project tools maintain it; never write it yourself.

Workflow:
1) Call get_tool_state (or any project tool) without session_id. Keep the returned session_id and pass it on every later call.
2) list_projects to browse; get_project to open one (it becomes active).
3) create_project, update_project, duplicate_project, delete_project to manage projects.
4) update_tool_state for in-progress work that is not yet saved to a project.

Docs:
- dungeonmind://docs/concepts
- dungeonmind://docs/errors
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "dungeonmind://docs/concepts",
		Name:        "docs_concepts",
		Title:       "Sessions, tool state and projects",
		Description: "How session state is partitioned per tool and how the active project pointer follows project operations.",
		Content: `# Sessions, tool state and projects

## Sessions

A session is created on first use and returned as ` + "`session_id`" + `. Unknown or expired IDs start a new session.
Once a session has been used by a user it belongs to that user; other users are refused.
Sessions expire after a period of inactivity.

## Tool state

Each tool has its own state object inside the session. Writes to different tools never interfere.
` + "`update_tool_state`" + ` is a shallow merge: top-level keys in the patch replace stored keys, other keys are kept.

## Active project pointer

| Operation | Pointer after success |
|-----------|-----------------------|
| create_project | the new project |
| get_project | the opened project |
| update_project (name change, project active) | new name |
| duplicate_project | the copy |
| delete_project (project active) | cleared |

The stored project is authoritative. If the pointer cannot be written the operation still succeeds.
`,
	},
	{
		URI:         "dungeonmind://docs/errors",
		Name:        "docs_errors",
		Title:       "Error codes",
		Description: "Error codes returned by coordinator tools and how to recover.",
		Content: `# Error codes

- ` + "`UNAUTHORIZED`" + `: no identity. Send a bearer token.
- ` + "`FORBIDDEN`" + `: the project or session belongs to another user.
- ` + "`PROJECT_NOT_FOUND`" + `: no project with that ID. Call list_projects.
- ` + "`VALIDATION_FAILED`" + `: bad input, such as a blank name or a non-finite number.
- ` + "`UNKNOWN_TOOL`" + `: the tool has no session state or no project store.
- ` + "`STORE_UNAVAILABLE`" + `: the project store timed out or failed. Retry shortly.
- ` + "`INTERNAL_ERROR`" + `: unexpected failure.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
