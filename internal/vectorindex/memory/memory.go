// Package memory is a brute-force in-process index for development and
// tests. Not durable.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"docuchat/internal/vectorindex"
)

type Index struct {
	mu      sync.RWMutex
	entries map[string][]vectorindex.Entry // documentID -> entries
}

func New() *Index {
	return &Index{entries: make(map[string][]vectorindex.Entry)}
}

func (idx *Index) Replace(_ context.Context, documentID string, entries []vectorindex.Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(entries) == 0 {
		delete(idx.entries, documentID)
		return nil
	}
	idx.entries[documentID] = append([]vectorindex.Entry(nil), entries...)
	return nil
}

func (idx *Index) Query(_ context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var matches []vectorindex.Match
	for docID, entries := range idx.entries {
		if !filter.Matches(docID) {
			continue
		}
		for _, e := range entries {
			matches = append(matches, vectorindex.Match{
				ChunkID:    e.ChunkID,
				DocumentID: e.DocumentID,
				Filename:   e.Filename,
				Ordinal:    e.Ordinal,
				Text:       e.Text,
				Similarity: cosine(vector, e.Vector),
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (idx *Index) DeleteDocument(_ context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	delete(idx.entries, documentID)
	return nil
}

func (idx *Index) Count(_ context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	total := 0
	for _, entries := range idx.entries {
		total += len(entries)
	}
	return total, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
