package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/project"
	"github.com/dungeonmind/coordinator/internal/domain/session"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type toolStateResponse struct {
	SessionID string        `json:"sessionId"`
	Tool      string        `json:"tool"`
	State     session.State `json:"state"`
}

type sessionStatusResponse struct {
	Success   bool           `json:"success"`
	SessionID string         `json:"sessionId"`
	Status    session.Status `json:"status"`
}

type activityResponse struct {
	Entries []activity.ActivityEntry `json:"entries"`
	Total   int                      `json:"total"`
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := SessionIDFromContext(r.Context())
	status, err := s.sessions.Status(sessionID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse{Success: true, SessionID: sessionID, Status: status})
}

func (s *Server) handleGetToolState(w http.ResponseWriter, r *http.Request) {
	tool := chi.URLParam(r, "tool")
	if !s.knownSessionTool(tool) {
		writeError(w, r, s.logger, badRequest(fmt.Sprintf("unknown tool %q", tool)))
		return
	}
	sessionID, _ := SessionIDFromContext(r.Context())
	state, ok, err := s.sessions.GetToolState(sessionID, tool)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if !ok {
		state = session.State{}
	}
	writeJSON(w, http.StatusOK, toolStateResponse{SessionID: sessionID, Tool: tool, State: state})
}

func (s *Server) handleUpdateToolState(w http.ResponseWriter, r *http.Request) {
	tool := chi.URLParam(r, "tool")
	if !s.knownSessionTool(tool) {
		writeError(w, r, s.logger, badRequest(fmt.Sprintf("unknown tool %q", tool)))
		return
	}

	var patch session.State
	if err := decodeJSON(r, &patch, false); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	// The active-project pointer is written only by project operations.
	for _, key := range []string{session.KeyActiveProjectID, session.KeyActiveProjectName} {
		if _, ok := patch[key]; ok {
			writeError(w, r, s.logger, badRequest(fmt.Sprintf("%s is managed by project operations", key)))
			return
		}
	}

	sessionID, _ := SessionIDFromContext(r.Context())
	if err := s.sessions.UpdateToolState(sessionID, tool, patch); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	state, _, err := s.sessions.GetToolState(sessionID, tool)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toolStateResponse{SessionID: sessionID, Tool: tool, State: state})
}

// projectRequest resolves the tool's project service and the caller.
func (s *Server) projectRequest(w http.ResponseWriter, r *http.Request) (ProjectService, project.Caller, bool) {
	tool := chi.URLParam(r, "tool")
	svc, ok := s.projects[tool]
	if !ok {
		writeError(w, r, s.logger, notFound(fmt.Sprintf("no projects for tool %q", tool)))
		return nil, project.Caller{}, false
	}
	userID, _ := auth.UserFromContext(r.Context())
	sessionID, _ := SessionIDFromContext(r.Context())
	return svc, project.Caller{UserID: userID, SessionID: sessionID}, true
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	svc, caller, ok := s.projectRequest(w, r)
	if !ok {
		return
	}
	var req project.CreateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	proj, err := svc.Create(r.Context(), caller, req)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, proj)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	svc, caller, ok := s.projectRequest(w, r)
	if !ok {
		return
	}
	var opts project.ListOptions
	if v := r.URL.Query().Get("includeTemplates"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, s.logger, badRequest("includeTemplates must be a boolean"))
			return
		}
		opts.IncludeTemplates = include
	}
	result, err := svc.List(r.Context(), caller, opts)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	svc, caller, ok := s.projectRequest(w, r)
	if !ok {
		return
	}
	proj, err := svc.Get(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	svc, caller, ok := s.projectRequest(w, r)
	if !ok {
		return
	}
	var req project.UpdateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := svc.Update(r.Context(), caller, chi.URLParam(r, "id"), req); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Project updated successfully"})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	svc, caller, ok := s.projectRequest(w, r)
	if !ok {
		return
	}
	if err := svc.Delete(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Project deleted successfully"})
}

func (s *Server) handleDuplicateProject(w http.ResponseWriter, r *http.Request) {
	svc, caller, ok := s.projectRequest(w, r)
	if !ok {
		return
	}
	var req project.DuplicateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if req.NewName == "" {
		req.NewName = r.URL.Query().Get("newName")
	}
	dup, err := svc.Duplicate(r.Context(), caller, chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dup)
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFromContext(r.Context())
	q := r.URL.Query()
	opts := activity.ListActivityOptions{
		ProjectID: q.Get("projectId"),
		Tool:      q.Get("tool"),
	}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, s.logger, badRequest(name+" must be a non-negative integer"))
			return
		}
		*dst = n
	}

	entries, err := s.activity.GetRecentActivity(r.Context(), userID, opts)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, activityResponse{Entries: entries, Total: len(entries)})
}

// decodeJSON reads a JSON body into v. An empty body is accepted only when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("request body too large")
		}
		return badRequest("invalid JSON body")
	}
	return nil
}
