package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dungeonmind/coordinator/internal/repository"
)

// DocumentRepository implements repository.DocumentStore on a JSON column.
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts a new document
func (r *DocumentRepository) Create(ctx context.Context, collection string, doc repository.Document) error {
	if collection == "" || doc.ID == "" || !json.Valid(doc.Data) {
		return repository.ErrInvalidInput
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES (?, ?, json(?))`,
		collection, doc.ID, string(doc.Data),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// Get retrieves a document by id
func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (*repository.Document, error) {
	var body string
	err := r.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &repository.Document{ID: id, Data: json.RawMessage(body)}, nil
}

// Query returns documents whose field equals value
func (r *DocumentRepository) Query(ctx context.Context, collection, field string, value any) ([]repository.Document, error) {
	if !repository.ValidFieldPath(field) {
		return nil, fmt.Errorf("%w: field %q", repository.ErrInvalidInput, field)
	}

	// The path is inlined so the expression index on user_id applies.
	query := fmt.Sprintf(
		`SELECT id, body FROM documents WHERE collection = ? AND json_extract(body, '$.%s') = ? ORDER BY id`,
		field,
	)
	rows, err := r.db.QueryContext(ctx, query, collection, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []repository.Document{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, repository.Document{ID: id, Data: json.RawMessage(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return docs, nil
}

// Patch sets fields on a document with a single UPDATE. Max values are
// compared against the stored field in SQL so concurrent raises never regress.
func (r *DocumentRepository) Patch(ctx context.Context, collection, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	paths := make([]string, 0, len(fields))
	for path := range fields {
		if !repository.ValidFieldPath(path) {
			return fmt.Errorf("%w: field %q", repository.ErrInvalidInput, path)
		}
		paths = append(paths, path)
	}
	// Parents before children, so "metadata" never overwrites "metadata.x".
	sort.Strings(paths)

	setArgs := make([]string, 0, len(paths))
	args := make([]any, 0, len(paths)*3+2)
	for _, path := range paths {
		// json_extract reads the row as it was before this UPDATE.
		if floor, ok := fields[path].(repository.Max); ok {
			setArgs = append(setArgs, "?, max(coalesce(json_extract(body, ?), 0), ?)")
			args = append(args, "$."+path, "$."+path, int64(floor))
			continue
		}
		encoded, err := json.Marshal(fields[path])
		if err != nil {
			return fmt.Errorf("%w: field %q: %w", repository.ErrInvalidInput, path, err)
		}
		setArgs = append(setArgs, "?, json(?)")
		args = append(args, "$."+path, string(encoded))
	}
	args = append(args, collection, id)

	query := fmt.Sprintf(
		`UPDATE documents SET body = json_set(body, %s), updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?`,
		strings.Join(setArgs, ", "),
	)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check patch result: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a document
func (r *DocumentRepository) Delete(ctx context.Context, collection, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
