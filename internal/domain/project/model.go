package project

import (
	"slices"
	"strings"

	"github.com/dungeonmind/coordinator/internal/domain/session"
)

const (
	// MetadataVersion is stamped on new project metadata.
	MetadataVersion = "1.0.0"
	// UntitledName is shown for projects stored without a name.
	UntitledName = "Untitled Project"
	// MaxNameLength bounds project names, in characters.
	MaxNameLength = 200
)

// Metadata is the project's descriptive sub-document.
type Metadata struct {
	Version    string   `json:"version"`
	Tags       []string `json:"tags"`
	IsTemplate bool     `json:"isTemplate"`
	LastOpened int64    `json:"lastOpened"`
	CardCount  int      `json:"cardCount"`
}

// Project is a persisted, user-owned snapshot of one tool's state.
// Timestamps are milliseconds since the Unix epoch.
type Project struct {
	ID           string        `json:"id"`
	UserID       string        `json:"userId"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	CreatedAt    int64         `json:"createdAt"`
	UpdatedAt    int64         `json:"updatedAt"`
	State        session.State `json:"state"`
	Metadata     Metadata      `json:"metadata"`
	IsTemplate   bool          `json:"isTemplate"`
	Tags         []string      `json:"tags"`
	PreviewImage string        `json:"previewImage,omitempty"`
}

// Summary is the list view of a project.
type Summary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	UpdatedAt    int64  `json:"updatedAt"`
	CardCount    int    `json:"cardCount"`
	PreviewImage string `json:"previewImage,omitempty"`
}

// ListResult is returned by List.
type ListResult struct {
	Projects []Summary `json:"projects"`
	Total    int       `json:"total"`
}

// Caller identifies who is acting and from which session.
type Caller struct {
	UserID    string
	SessionID string
}

// Fields is a partial update applied to a stored project. Nil fields are untouched.
type Fields struct {
	Name        *string
	Description *string
	Metadata    *Metadata
	LastOpened  *int64
	UpdatedAt   *int64
}

// CreateRequest defines project creation inputs.
type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateRequest defines the fields an update may replace.
type UpdateRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

// DuplicateRequest defines duplication inputs. Description defaults to
// "Copy of <source name>".
type DuplicateRequest struct {
	NewName     string  `json:"newName"`
	Description *string `json:"description,omitempty"`
}

// ListOptions controls List.
type ListOptions struct {
	IncludeTemplates bool
}

func (p *Project) summary() Summary {
	name := p.Name
	if name == "" {
		name = UntitledName
	}
	return Summary{
		ID:           p.ID,
		Name:         name,
		Description:  p.Description,
		UpdatedAt:    p.UpdatedAt,
		CardCount:    p.Metadata.CardCount,
		PreviewImage: p.PreviewImage,
	}
}

// NormalizeTags trims, drops empties, de-duplicates and sorts tags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func validName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > MaxNameLength {
		return "", false
	}
	return name, true
}
