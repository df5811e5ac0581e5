// Package chromem backs the vector index with an embedded, persistent
// chromem-go store, for deployments without a separate vector database.
package chromem

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"docuchat/internal/vectorindex"
)

type Index struct {
	mu   sync.Mutex
	coll *chromemgo.Collection
}

func New(path, collection string) (*Index, error) {
	db, err := chromemgo.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db failed: %w", err)
	}
	coll, err := db.GetOrCreateCollection(collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("open chromem collection failed: %w", err)
	}
	return &Index{coll: coll}, nil
}

// rejectEmbedding guards against accidental use of chromem's own embedding
// path; vectors are always computed upstream by the embedding client.
func rejectEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings are computed upstream")
}

func (idx *Index) Replace(ctx context.Context, documentID string, entries []vectorindex.Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := idx.deleteLocked(ctx, documentID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromemgo.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromemgo.Document{
			ID:        e.ChunkID,
			Content:   e.Text,
			Embedding: e.Vector,
			Metadata: map[string]string{
				"document_id": e.DocumentID,
				"filename":    e.Filename,
				"ordinal":     strconv.Itoa(e.Ordinal),
			},
		}
	}
	if err := idx.coll.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("chromem add documents failed: %w", err)
	}
	return nil
}

func (idx *Index) Query(ctx context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Match, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	count := idx.coll.Count()
	if count == 0 {
		return nil, nil
	}

	// chromem's where clause is a single exact match, so document filters are
	// applied here after querying the whole collection.
	n := topK
	if len(filter.DocumentIDs) > 0 || n > count {
		n = count
	}

	results, err := idx.coll.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query failed: %w", err)
	}

	matches := make([]vectorindex.Match, 0, len(results))
	for _, r := range results {
		docID := r.Metadata["document_id"]
		if !filter.Matches(docID) {
			continue
		}
		ordinal, _ := strconv.Atoi(r.Metadata["ordinal"])
		matches = append(matches, vectorindex.Match{
			ChunkID:    r.ID,
			DocumentID: docID,
			Filename:   r.Metadata["filename"],
			Ordinal:    ordinal,
			Text:       r.Content,
			Similarity: float64(r.Similarity),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (idx *Index) DeleteDocument(ctx context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.deleteLocked(ctx, documentID)
}

func (idx *Index) Count(context.Context) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.coll.Count(), nil
}

func (idx *Index) deleteLocked(ctx context.Context, documentID string) error {
	if idx.coll.Count() == 0 {
		return nil
	}
	if err := idx.coll.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return fmt.Errorf("chromem delete failed: %w", err)
	}
	return nil
}
