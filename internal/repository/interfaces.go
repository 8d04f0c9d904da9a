package repository

import (
	"context"
	"encoding/json"
	"regexp"
)

// Document is a JSON document stored under a collection.
type Document struct {
	ID   string
	Data json.RawMessage
}

// DocumentStore persists JSON documents. Every method applies to exactly one
// document atomically; there are no cross-document transactions.
type DocumentStore interface {
	// Create inserts a new document; ErrConflict if the id is taken.
	Create(ctx context.Context, collection string, doc Document) error
	// Get returns a document; ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Query returns documents whose top-level field equals value.
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)
	// Patch sets the given fields on a document. Keys are dotted paths
	// ("metadata.lastOpened"); values are JSON-encodable or Max. ErrNotFound if absent.
	Patch(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document; ErrNotFound if absent.
	Delete(ctx context.Context, collection, id string) error
}

// Max is a Patch value that only raises a numeric field: the stored value
// becomes the larger of the current one (missing counts as zero) and Max.
// The comparison happens inside the same write as the rest of the patch.
type Max int64

var fieldPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ValidFieldPath reports whether path is a dotted field path a store accepts.
func ValidFieldPath(path string) bool {
	return fieldPathPattern.MatchString(path)
}
