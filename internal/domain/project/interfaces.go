package project

import (
	"context"

	"github.com/dungeonmind/coordinator/internal/domain/activity"
	"github.com/dungeonmind/coordinator/internal/domain/session"
)

// Repository provides persistence operations for one tool's projects.
type Repository interface {
	Create(ctx context.Context, proj *Project) error
	Get(ctx context.Context, id string) (*Project, error)
	ListByUser(ctx context.Context, userID string) ([]Project, error)
	Update(ctx context.Context, id string, fields Fields) error
	Delete(ctx context.Context, id string) error
}

// SessionStore is the part of the session registry the project store writes to.
type SessionStore interface {
	UpdateToolState(sessionID, tool string, patch session.State) error
	ModifyToolState(sessionID, tool string, fn func(current session.State) session.State) error
}

// ActivityLogger records project lifecycle events.
type ActivityLogger interface {
	LogActivity(ctx context.Context, userID string, entry *activity.ActivityEntry) error
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	ProjectOperation(tool, op, result string)
	PointerSyncFailed(tool, op string)
}

type nopRecorder struct{}

func (nopRecorder) ProjectOperation(string, string, string) {}
func (nopRecorder) PointerSyncFailed(string, string)        {}
