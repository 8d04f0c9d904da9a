package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/dungeonmind/coordinator/internal/auth"
	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/session"
	"github.com/dungeonmind/coordinator/internal/repository"
	"github.com/google/uuid"
)

// DefaultStoreTimeout bounds each document store call.
const DefaultStoreTimeout = 5 * time.Second

// Service handles project operations for one tool and keeps that tool's
// active-project pointer in the caller's session in step with the store.
type Service struct {
	tool     string
	repo     Repository
	sessions SessionStore
	activity ActivityLogger
	recorder Recorder
	logger   *slog.Logger

	timeout time.Duration
	now     func() time.Time
	newID   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithActivity logs lifecycle events to a.
func WithActivity(a ActivityLogger) Option {
	return func(s *Service) { s.activity = a }
}

// WithRecorder reports operation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithStoreTimeout overrides DefaultStoreTimeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides project id allocation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a project service for tool.
func NewService(tool string, repo Repository, sessions SessionStore, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		tool:     tool,
		repo:     repo,
		sessions: sessions,
		recorder: nopRecorder{},
		logger:   logger.With("tool", tool),
		timeout:  DefaultStoreTimeout,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tool returns the tool this service manages projects for.
func (s *Service) Tool() string {
	return s.tool
}

// Create persists a new empty project and points the caller's session at it.
func (s *Service) Create(ctx context.Context, caller Caller, req CreateRequest) (proj *Project, err error) {
	defer func() { s.record("create", err) }()

	if err := auth.RequireUser(caller.UserID); err != nil {
		return nil, err
	}
	name, ok := validName(req.Name)
	if !ok {
		return nil, fmt.Errorf("%w: name is required and at most %d characters", ErrInvalidInput, MaxNameLength)
	}

	now := s.millis()
	proj = &Project{
		ID:          s.newID(),
		UserID:      caller.UserID,
		Name:        name,
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
		State:       session.State{},
		Metadata: Metadata{
			Version:    MetadataVersion,
			Tags:       []string{},
			LastOpened: now,
		},
		Tags: []string{},
	}

	if err := s.withStore(ctx, func(ctx context.Context) error { return s.repo.Create(ctx, proj) }); err != nil {
		return nil, s.storeError("create", err)
	}

	s.logger.Info("project created", "project_id", proj.ID, "user_id", caller.UserID)
	s.pointTo(caller, "create", proj)
	s.logActivity(ctx, caller, proj.ID, activity.TypeProjectCreated, fmt.Sprintf("Created project %q", proj.Name))
	return proj, nil
}

// List returns the caller's projects, most recently updated first.
// Templates are skipped unless requested.
func (s *Service) List(ctx context.Context, caller Caller, opts ListOptions) (result *ListResult, err error) {
	defer func() { s.record("list", err) }()

	if err := auth.RequireUser(caller.UserID); err != nil {
		return nil, err
	}

	var projects []Project
	err = s.withStore(ctx, func(ctx context.Context) error {
		var err error
		projects, err = s.repo.ListByUser(ctx, caller.UserID)
		return err
	})
	if err != nil {
		return nil, s.storeError("list", err)
	}

	kept := make([]Project, 0, len(projects))
	for _, p := range projects {
		if p.UserID != caller.UserID {
			continue
		}
		if p.IsTemplate && !opts.IncludeTemplates {
			continue
		}
		kept = append(kept, p)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.ID < b.ID
	})

	summaries := make([]Summary, 0, len(kept))
	for i := range kept {
		summaries = append(summaries, kept[i].summary())
	}
	return &ListResult{Projects: summaries, Total: len(summaries)}, nil
}

// Get opens a project: it bumps lastOpened and updatedAt, persists the bump,
// and points the caller's session at the project.
func (s *Service) Get(ctx context.Context, caller Caller, id string) (proj *Project, err error) {
	defer func() { s.record("get", err) }()

	proj, err = s.loadOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	now := s.millis()
	opened := max(now, proj.Metadata.LastOpened)
	updated := max(now, proj.UpdatedAt)
	err = s.withStore(ctx, func(ctx context.Context) error {
		return s.repo.Update(ctx, id, Fields{LastOpened: &opened, UpdatedAt: &updated})
	})
	if err != nil {
		return nil, s.storeError("get", err)
	}
	proj.Metadata.LastOpened = opened
	proj.UpdatedAt = updated

	s.logger.Debug("project opened", "project_id", id, "user_id", caller.UserID)
	s.pointTo(caller, "get", proj)
	s.dropPointerIfDeleted(ctx, caller, id)
	s.logActivity(ctx, caller, id, activity.TypeProjectOpened, fmt.Sprintf("Opened project %q", proj.Name))
	return proj, nil
}

// Update replaces the supplied fields. A blank name is ignored; an empty
// description clears it; metadata replaces the whole sub-document.
func (s *Service) Update(ctx context.Context, caller Caller, id string, req UpdateRequest) (err error) {
	defer func() { s.record("update", err) }()

	proj, err := s.loadOwned(ctx, caller, id)
	if err != nil {
		return err
	}

	var fields Fields
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		name, ok := validName(*req.Name)
		if !ok {
			return fmt.Errorf("%w: name must be at most %d characters", ErrInvalidInput, MaxNameLength)
		}
		fields.Name = &name
	}
	if req.Description != nil {
		desc := *req.Description
		fields.Description = &desc
	}
	if req.Metadata != nil {
		md := *req.Metadata
		if md.Version == "" {
			md.Version = MetadataVersion
		}
		md.Tags = NormalizeTags(md.Tags)
		md.LastOpened = max(md.LastOpened, proj.Metadata.LastOpened)
		if md.CardCount < 0 {
			return fmt.Errorf("%w: cardCount must not be negative", ErrInvalidInput)
		}
		fields.Metadata = &md
	}
	updated := max(s.millis(), proj.UpdatedAt)
	fields.UpdatedAt = &updated

	if err := s.withStore(ctx, func(ctx context.Context) error { return s.repo.Update(ctx, id, fields) }); err != nil {
		return s.storeError("update", err)
	}

	s.logger.Info("project updated", "project_id", id, "user_id", caller.UserID)
	if fields.Name != nil {
		name := *fields.Name
		s.syncPointer(caller, "update", func(cur session.State) session.State {
			if cur.ActiveProjectID() != id {
				return nil
			}
			return session.State{session.KeyActiveProjectName: name}
		})
	}
	s.logActivity(ctx, caller, id, activity.TypeProjectUpdated, fmt.Sprintf("Updated project %q", proj.Name))
	return nil
}

// Delete removes a project and clears the caller's pointer if it named it.
func (s *Service) Delete(ctx context.Context, caller Caller, id string) (err error) {
	defer func() { s.record("delete", err) }()

	proj, err := s.loadOwned(ctx, caller, id)
	if err != nil {
		return err
	}
	if err := s.withStore(ctx, func(ctx context.Context) error { return s.repo.Delete(ctx, id) }); err != nil {
		return s.storeError("delete", err)
	}

	s.logger.Info("project deleted", "project_id", id, "user_id", caller.UserID)
	s.syncPointer(caller, "delete", func(cur session.State) session.State {
		if cur.ActiveProjectID() != id {
			return nil
		}
		return session.ClearedPointer()
	})
	s.logActivity(ctx, caller, id, activity.TypeProjectDeleted, fmt.Sprintf("Deleted project %q", proj.Name))
	return nil
}

// Duplicate copies a project under a new id and points the session at the copy.
// The copy keeps state, tags and metadata, except lastOpened (now) and
// cardCount (zero); it is never a template.
func (s *Service) Duplicate(ctx context.Context, caller Caller, id string, req DuplicateRequest) (dup *Project, err error) {
	defer func() { s.record("duplicate", err) }()

	src, err := s.loadOwned(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	name, ok := validName(req.NewName)
	if !ok {
		return nil, fmt.Errorf("%w: new name is required and at most %d characters", ErrInvalidInput, MaxNameLength)
	}

	srcName := src.Name
	if srcName == "" {
		srcName = UntitledName
	}
	desc := "Copy of " + srcName
	if req.Description != nil {
		desc = *req.Description
	}

	now := s.millis()
	state := src.State.Clone()
	if state == nil {
		state = session.State{}
	}
	if _, ok := state["sessionId"]; ok {
		state["sessionId"] = uuid.NewString()
	}
	md := src.Metadata
	md.Tags = slices.Clone(src.Metadata.Tags)
	if md.Tags == nil {
		md.Tags = []string{}
	}
	if md.Version == "" {
		md.Version = MetadataVersion
	}
	md.LastOpened = now
	md.CardCount = 0
	tags := slices.Clone(src.Tags)
	if tags == nil {
		tags = []string{}
	}

	dup = &Project{
		ID:          s.newID(),
		UserID:      caller.UserID,
		Name:        name,
		Description: desc,
		CreatedAt:   now,
		UpdatedAt:   now,
		State:       state,
		Metadata:    md,
		IsTemplate:  false,
		Tags:        tags,
	}
	if err := s.withStore(ctx, func(ctx context.Context) error { return s.repo.Create(ctx, dup) }); err != nil {
		return nil, s.storeError("duplicate", err)
	}

	s.logger.Info("project duplicated", "source_id", id, "project_id", dup.ID, "user_id", caller.UserID)
	s.pointTo(caller, "duplicate", dup)
	s.logActivity(ctx, caller, dup.ID, activity.TypeProjectDuplicated, fmt.Sprintf("Duplicated %q as %q", src.Name, dup.Name))
	return dup, nil
}

// loadOwned fetches a project and checks the caller owns it.
func (s *Service) loadOwned(ctx context.Context, caller Caller, id string) (*Project, error) {
	if err := auth.RequireUser(caller.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, ErrProjectNotFound
	}

	var proj *Project
	err := s.withStore(ctx, func(ctx context.Context) error {
		var err error
		proj, err = s.repo.Get(ctx, id)
		return err
	})
	if err != nil {
		return nil, s.storeError("get", err)
	}
	if err := auth.CheckOwner(proj.UserID, caller.UserID); err != nil {
		s.logger.Warn("project access denied", "project_id", id, "user_id", caller.UserID)
		return nil, err
	}
	return proj, nil
}

func (s *Service) withStore(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func (s *Service) storeError(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrProjectNotFound
	}
	s.logger.Error("project store failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

func (s *Service) pointTo(caller Caller, op string, proj *Project) {
	if caller.SessionID == "" || s.sessions == nil {
		return
	}
	if err := s.sessions.UpdateToolState(caller.SessionID, s.tool, session.PointerTo(proj.ID, proj.Name)); err != nil {
		s.pointerFailed(caller, op, err)
	}
}

// dropPointerIfDeleted clears a pointer just written by Get when a concurrent
// Delete removed the project after the bump was persisted. Delete removes the
// document before it clears the pointer, so whichever of the two runs last
// leaves the session without a dangling reference.
func (s *Service) dropPointerIfDeleted(ctx context.Context, caller Caller, id string) {
	if caller.SessionID == "" || s.sessions == nil {
		return
	}
	err := s.withStore(ctx, func(ctx context.Context) error {
		_, err := s.repo.Get(ctx, id)
		return err
	})
	if !errors.Is(err, repository.ErrNotFound) {
		return
	}
	s.logger.Info("project deleted while opening, dropping pointer", "project_id", id, "session_id", caller.SessionID)
	s.syncPointer(caller, "get", func(cur session.State) session.State {
		if cur.ActiveProjectID() != id {
			return nil
		}
		return session.ClearedPointer()
	})
}

func (s *Service) syncPointer(caller Caller, op string, fn func(session.State) session.State) {
	if caller.SessionID == "" || s.sessions == nil {
		return
	}
	if err := s.sessions.ModifyToolState(caller.SessionID, s.tool, fn); err != nil {
		s.pointerFailed(caller, op, err)
	}
}

// pointerFailed logs a pointer write that failed after the store write succeeded.
// The stored document stays authoritative; the next Get re-syncs the pointer.
func (s *Service) pointerFailed(caller Caller, op string, err error) {
	s.recorder.PointerSyncFailed(s.tool, op)
	if errors.Is(err, session.ErrConsistencyFault) {
		s.logger.Error("consistency fault: session vanished before pointer sync",
			"op", op, "session_id", caller.SessionID, "user_id", caller.UserID, "error", err)
		return
	}
	s.logger.Warn("active project pointer not updated", "op", op, "session_id", caller.SessionID, "error", err)
}

func (s *Service) logActivity(ctx context.Context, caller Caller, projectID string, typ activity.ActivityType, summary string) {
	if s.activity == nil {
		return
	}
	entry := &activity.ActivityEntry{
		ProjectID:    projectID,
		Tool:         s.tool,
		ActivityType: typ,
		Summary:      summary,
	}
	if caller.SessionID != "" {
		sid := caller.SessionID
		entry.SessionID = &sid
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.activity.LogActivity(ctx, caller.UserID, entry); err != nil {
		s.logger.Warn("activity not logged", "type", typ, "project_id", projectID, "error", err)
	}
}

func (s *Service) record(op string, err error) {
	s.recorder.ProjectOperation(s.tool, op, Outcome(err))
}

// Outcome classifies an operation error for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrProjectNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

func (s *Service) millis() int64 {
	return s.now().UnixMilli()
}
