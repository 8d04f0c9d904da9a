package project

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dungeonmind/coordinator/internal/domain/session"
	"github.com/dungeonmind/coordinator/internal/repository"
)

// document is the stored shape of a project.
type document struct {
	ID           string        `json:"id"`
	UserID       string        `json:"user_id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	CreatedAt    int64         `json:"created_at"`
	UpdatedAt    int64         `json:"updated_at"`
	State        session.State `json:"state"`
	Metadata     Metadata      `json:"metadata"`
	IsTemplate   bool          `json:"is_template"`
	Tags         []string      `json:"tags"`
	PreviewImage string        `json:"preview_image,omitempty"`
}

func toDocument(p *Project) document {
	return document{
		ID:           p.ID,
		UserID:       p.UserID,
		Name:         p.Name,
		Description:  p.Description,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		State:        p.State,
		Metadata:     p.Metadata,
		IsTemplate:   p.IsTemplate,
		Tags:         p.Tags,
		PreviewImage: p.PreviewImage,
	}
}

func (d document) project() *Project {
	p := &Project{
		ID:           d.ID,
		UserID:       d.UserID,
		Name:         d.Name,
		Description:  d.Description,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		State:        d.State,
		Metadata:     d.Metadata,
		IsTemplate:   d.IsTemplate,
		Tags:         d.Tags,
		PreviewImage: d.PreviewImage,
	}
	if p.State == nil {
		p.State = session.State{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Metadata.Tags == nil {
		p.Metadata.Tags = []string{}
	}
	return p
}

// DocumentRepository stores projects as JSON documents in one collection.
type DocumentRepository struct {
	store      repository.DocumentStore
	collection string
}

// NewDocumentRepository creates a repository over collection.
func NewDocumentRepository(store repository.DocumentStore, collection string) *DocumentRepository {
	return &DocumentRepository{store: store, collection: collection}
}

// Create persists a new project.
func (r *DocumentRepository) Create(ctx context.Context, proj *Project) error {
	data, err := json.Marshal(toDocument(proj))
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	return r.store.Create(ctx, r.collection, repository.Document{ID: proj.ID, Data: data})
}

// Get loads a project by id.
func (r *DocumentRepository) Get(ctx context.Context, id string) (*Project, error) {
	doc, err := r.store.Get(ctx, r.collection, id)
	if err != nil {
		return nil, err
	}
	return decodeProject(doc)
}

// ListByUser returns every project owned by userID, templates included.
func (r *DocumentRepository) ListByUser(ctx context.Context, userID string) ([]Project, error) {
	docs, err := r.store.Query(ctx, r.collection, "user_id", userID)
	if err != nil {
		return nil, err
	}
	projects := make([]Project, 0, len(docs))
	for i := range docs {
		p, err := decodeProject(&docs[i])
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, nil
}

// Update applies fields to a stored project in one document write.
// Replacing metadata also refreshes the top-level is_template and tags.
// lastOpened and updated_at never move backwards, even under concurrent writes.
func (r *DocumentRepository) Update(ctx context.Context, id string, fields Fields) error {
	patch := make(map[string]any)
	if fields.Name != nil {
		patch["name"] = *fields.Name
	}
	if fields.Description != nil {
		patch["description"] = *fields.Description
	}
	if fields.Metadata != nil {
		patch["metadata"] = *fields.Metadata
		patch["metadata.lastOpened"] = repository.Max(fields.Metadata.LastOpened)
		patch["is_template"] = fields.Metadata.IsTemplate
		patch["tags"] = fields.Metadata.Tags
	}
	if fields.LastOpened != nil {
		floor := *fields.LastOpened
		if fields.Metadata != nil {
			floor = max(floor, fields.Metadata.LastOpened)
		}
		patch["metadata.lastOpened"] = repository.Max(floor)
	}
	if fields.UpdatedAt != nil {
		patch["updated_at"] = repository.Max(*fields.UpdatedAt)
	}
	if len(patch) == 0 {
		return nil
	}
	return r.store.Patch(ctx, r.collection, id, patch)
}

// Delete removes a project.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.collection, id)
}

func decodeProject(doc *repository.Document) (*Project, error) {
	var d document
	if err := json.Unmarshal(doc.Data, &d); err != nil {
		return nil, fmt.Errorf("decode project %s: %w", doc.ID, err)
	}
	if d.ID == "" {
		d.ID = doc.ID
	}
	return d.project(), nil
}
