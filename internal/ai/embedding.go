package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// EmbedBatch returns one vector per input text, preserving order. Inputs are
// sent in batches of the configured size; each batch is retried with bounded
// exponential backoff on transport failures. A vector whose length disagrees
// with the configured dimension aborts immediately with ErrDimensionMismatch.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.EmbeddingBatchSize {
		end := start + c.cfg.EmbeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		var batch [][]float32
		err := c.withRetry(ctx, func(callCtx context.Context) error {
			var opErr error
			batch, opErr = c.embedOnce(callCtx, texts[start:end])
			return opErr
		})
		if err != nil {
			if isTransient(err) {
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
			}
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// Embed returns the vector for a single text (query embedding). It shares the
// model and metric with chunk embeddings, so the two are comparable.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"model": c.cfg.EmbeddingModel,
		"input": texts,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/embeddings"), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("build embedding request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transient(fmt.Errorf("embedding request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transient(fmt.Errorf("read embedding response failed: %w", err))
	}
	if resp.StatusCode >= 500 {
		return nil, transient(fmt.Errorf("embedding response status %d: %s", resp.StatusCode, string(raw)))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("embedding response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse embedding json failed: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		if len(parsed.Data[i].Embedding) != c.cfg.EmbeddingDimension {
			return nil, fmt.Errorf("%w: got %d, configured %d",
				ErrDimensionMismatch, len(parsed.Data[i].Embedding), c.cfg.EmbeddingDimension)
		}
		vectors[i] = parsed.Data[i].Embedding
	}
	return vectors, nil
}
