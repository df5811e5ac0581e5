// Package vectorindex abstracts the nearest-neighbor store holding chunk
// embeddings. Adapters normalize their backend's scoring to cosine
// similarity so the retriever stays metric-agnostic.
package vectorindex

import (
	"context"
	"errors"
)

// ErrUnavailable is returned on transport failures to the index backend.
// Retryable.
var ErrUnavailable = errors.New("vectorindex: index unavailable")

// Entry is the persisted unit: one chunk embedding plus its metadata.
// Entries are created at ingestion, replaced wholesale per document, never
// mutated in place.
type Entry struct {
	ChunkID    string
	DocumentID string
	Filename   string
	Ordinal    int
	Text       string
	Vector     []float32
}

// Match is a query hit. Similarity is cosine similarity in [-1,1]; each
// adapter converts from its backend's native score representation.
type Match struct {
	ChunkID    string
	DocumentID string
	Filename   string
	Ordinal    int
	Text       string
	Similarity float64
}

// Filter restricts a query to specific documents. The zero value matches
// everything.
type Filter struct {
	DocumentIDs []string
}

// Matches reports whether a document passes the filter.
func (f Filter) Matches(documentID string) bool {
	if len(f.DocumentIDs) == 0 {
		return true
	}
	for _, id := range f.DocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}

// Index is the vector store contract.
//
// Replace is the idempotent re-indexing primitive: it removes every prior
// entry of the document before inserting the new ones, so re-ingesting a
// document identifier never duplicates entries.
//
// Query requesting more results than the index holds returns all available
// matches without error; an empty index returns an empty slice.
type Index interface {
	Replace(ctx context.Context, documentID string, entries []Entry) error
	Query(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	DeleteDocument(ctx context.Context, documentID string) error
	Count(ctx context.Context) (int, error)
}
