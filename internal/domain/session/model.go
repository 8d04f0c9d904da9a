package session

import (
	"sort"
	"time"
)

// Keys of the active-project pointer inside a tool partition.
const (
	KeyActiveProjectID   = "activeProjectId"
	KeyActiveProjectName = "activeProjectName"
)

// State is one tool's partition of session state. Values are JSON-like:
// nil, bool, float64, string, []any and map[string]any.
type State map[string]any

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

// ActiveProjectID returns the project the partition currently points at.
func (s State) ActiveProjectID() string {
	id, _ := s[KeyActiveProjectID].(string)
	return id
}

// Session is a point-in-time snapshot of a registry entry.
type Session struct {
	ID             string           `json:"sessionId"`
	UserID         string           `json:"userId,omitempty"`
	ToolStates     map[string]State `json:"toolStates"`
	CreatedAt      time.Time        `json:"createdAt"`
	LastAccessedAt time.Time        `json:"lastAccessedAt"`
}

// Status summarizes a session without exposing tool payloads.
type Status struct {
	SessionID      string    `json:"sessionId"`
	UserID         string    `json:"userId,omitempty"`
	Authenticated  bool      `json:"authenticated"`
	Tools          []string  `json:"tools"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
}

// Status builds the summary for this snapshot.
func (s Session) Status() Status {
	tools := make([]string, 0, len(s.ToolStates))
	for name := range s.ToolStates {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	return Status{
		SessionID:      s.ID,
		UserID:         s.UserID,
		Authenticated:  s.UserID != "",
		Tools:          tools,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
	}
}

// PointerTo returns the patch that points a partition at a project.
func PointerTo(projectID, name string) State {
	return State{KeyActiveProjectID: projectID, KeyActiveProjectName: name}
}

// ClearedPointer returns the patch that empties the active-project pointer.
func ClearedPointer() State {
	return State{KeyActiveProjectID: nil, KeyActiveProjectName: nil}
}
