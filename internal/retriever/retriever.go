package retriever

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"docuchat/internal/model"
	"docuchat/internal/vectorindex"
)

// scoreEpsilon bounds the similarity difference under which two results are
// considered tied and ordered by document position instead.
const scoreEpsilon = 1e-6

// Embedder turns a query into a vector comparable with the indexed chunks.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever turns a query into a ranked list of relevant chunks. Scores are
// normalized to [0,1] regardless of the index backend's metric.
type Retriever struct {
	embedder  Embedder
	index     vectorindex.Index
	attempts  int
	baseDelay time.Duration
}

func New(embedder Embedder, index vectorindex.Index, retryAttempts int, retryBaseDelay time.Duration) *Retriever {
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	if retryBaseDelay <= 0 {
		retryBaseDelay = 200 * time.Millisecond
	}
	return &Retriever{
		embedder:  embedder,
		index:     index,
		attempts:  retryAttempts,
		baseDelay: retryBaseDelay,
	}
}

// Retrieve embeds the query and runs a nearest-neighbor search, returning
// results ordered by descending normalized score. Ties within scoreEpsilon
// prefer the chunk appearing earlier in its document, then the smaller chunk
// ID, so the ordering is fully deterministic. An empty corpus yields an empty
// result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filter vectorindex.Filter) ([]model.SearchResult, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var matches []vectorindex.Match
	delay := r.baseDelay
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		matches, err = r.index.Query(ctx, vector, topK, filter)
		if err == nil {
			break
		}
		if !errors.Is(err, vectorindex.ErrUnavailable) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	results := make([]model.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = model.SearchResult{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Filename:   m.Filename,
			Ordinal:    m.Ordinal,
			Score:      normalizeScore(m.Similarity),
			Text:       m.Text,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if math.Abs(results[i].Score-results[j].Score) > scoreEpsilon {
			return results[i].Score > results[j].Score
		}
		if results[i].Ordinal != results[j].Ordinal {
			return results[i].Ordinal < results[j].Ordinal
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results, nil
}

// normalizeScore maps cosine similarity [-1,1] onto [0,1] and clamps
// floating-point spill.
func normalizeScore(similarity float64) float64 {
	score := (similarity + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
