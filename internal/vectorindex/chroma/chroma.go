// Package chroma is a minimal REST client to a ChromaDB server. The
// collection is created lazily with cosine distance and results are
// converted back to cosine similarity (chroma reports distance = 1 - cos).
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"docuchat/internal/vectorindex"
)

type Config struct {
	URL        string
	Collection string
	Timeout    time.Duration
}

type Index struct {
	url        string
	collection string
	client     *http.Client

	mu           sync.Mutex
	collectionID string
}

func New(cfg Config) *Index {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Index{
		url:        cfg.URL,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (idx *Index) Replace(ctx context.Context, documentID string, entries []vectorindex.Entry) error {
	collID, err := idx.ensureCollection(ctx)
	if err != nil {
		return err
	}

	// Delete-then-insert keeps re-ingestion idempotent.
	if err := idx.deleteWhere(ctx, collID, documentID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	embeddings := make([][]float32, len(entries))
	documents := make([]string, len(entries))
	metadatas := make([]map[string]interface{}, len(entries))
	for i, e := range entries {
		ids[i] = e.ChunkID
		embeddings[i] = e.Vector
		documents[i] = e.Text
		metadatas[i] = map[string]interface{}{
			"document_id": e.DocumentID,
			"filename":    e.Filename,
			"ordinal":     e.Ordinal,
		}
	}

	body := map[string]interface{}{
		"ids":        ids,
		"embeddings": embeddings,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	return idx.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/add", idx.url, collID), body, nil)
}

func (idx *Index) Query(ctx context.Context, vector []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Match, error) {
	collID, err := idx.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	// Chroma rejects n_results greater than the collection size.
	count, err := idx.count(ctx, collID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	req := map[string]interface{}{
		"query_embeddings": [][]float32{vector},
		"n_results":        topK,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	if len(filter.DocumentIDs) > 0 {
		req["where"] = map[string]interface{}{
			"document_id": map[string]interface{}{"$in": filter.DocumentIDs},
		}
	}

	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Documents [][]string                 `json:"documents"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
	}
	if err := idx.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/query", idx.url, collID), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	matches := make([]vectorindex.Match, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		m := vectorindex.Match{ChunkID: id}
		if i < len(resp.Distances[0]) {
			m.Similarity = 1 - resp.Distances[0][i]
		}
		if i < len(resp.Documents[0]) {
			m.Text = resp.Documents[0][i]
		}
		if i < len(resp.Metadatas[0]) {
			meta := resp.Metadatas[0][i]
			if v, ok := meta["document_id"].(string); ok {
				m.DocumentID = v
			}
			if v, ok := meta["filename"].(string); ok {
				m.Filename = v
			}
			if v, ok := meta["ordinal"].(float64); ok {
				m.Ordinal = int(v)
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (idx *Index) DeleteDocument(ctx context.Context, documentID string) error {
	collID, err := idx.ensureCollection(ctx)
	if err != nil {
		return err
	}
	return idx.deleteWhere(ctx, collID, documentID)
}

func (idx *Index) Count(ctx context.Context) (int, error) {
	collID, err := idx.ensureCollection(ctx)
	if err != nil {
		return 0, err
	}
	return idx.count(ctx, collID)
}

func (idx *Index) deleteWhere(ctx context.Context, collID, documentID string) error {
	body := map[string]interface{}{
		"where": map[string]interface{}{"document_id": documentID},
	}
	return idx.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections/%s/delete", idx.url, collID), body, nil)
}

func (idx *Index) count(ctx context.Context, collID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/collections/%s/count", idx.url, collID), nil)
	if err != nil {
		return 0, fmt.Errorf("build count request failed: %w", err)
	}
	resp, err := idx.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", vectorindex.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", vectorindex.ErrUnavailable, err)
	}
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%w: count status %d: %s", vectorindex.ErrUnavailable, resp.StatusCode, string(raw))
	}
	count, err := strconv.Atoi(string(bytes.TrimSpace(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse count response failed: %w", err)
	}
	return count, nil
}

// ensureCollection resolves and caches the collection ID, creating the
// collection with cosine distance on first use.
func (idx *Index) ensureCollection(ctx context.Context) (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.collectionID != "" {
		return idx.collectionID, nil
	}

	body := map[string]interface{}{
		"name":          idx.collection,
		"get_or_create": true,
		"metadata":      map[string]interface{}{"hnsw:space": "cosine"},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := idx.postJSON(ctx, fmt.Sprintf("%s/api/v1/collections", idx.url), body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", fmt.Errorf("chroma returned no collection id for %q", idx.collection)
	}
	idx.collectionID = resp.ID
	return idx.collectionID, nil
}

func (idx *Index) postJSON(ctx context.Context, url string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal chroma request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build chroma request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := idx.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", vectorindex.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: POST %s status %d: %s", vectorindex.ErrUnavailable, url, resp.StatusCode, string(raw))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
