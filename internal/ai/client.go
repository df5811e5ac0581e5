package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrEmbeddingUnavailable is returned when the embedding service cannot be
	// reached after the configured retry attempts. Retryable by the caller.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrDimensionMismatch signals a model/index misconfiguration: the service
	// returned vectors of an unexpected dimension. Never retried.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrGenerationFailed is returned when the generation service fails or
	// times out. Generation calls are not retried automatically: a retry is a
	// caller-visible cost decision.
	ErrGenerationFailed = errors.New("generation failed")
)

// Config holds the settings for the OpenAI-compatible model service
// (embeddings + chat completions share one endpoint and credentials).
type Config struct {
	BaseURL            string
	APIKey             string
	Model              string
	EmbeddingModel     string
	EmbeddingDimension int
	EmbeddingBatchSize int
	MaxTokens          int
	Temperature        float64
	RequestTimeout     time.Duration
	RetryAttempts      int
	RetryBaseDelay     time.Duration
}

// Client talks to an OpenAI-compatible model service (Ollama, vLLM,
// DashScope and friends all speak this dialect).
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 200 * time.Millisecond
	}
	if cfg.EmbeddingBatchSize <= 0 {
		cfg.EmbeddingBatchSize = 16
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// transientError marks failures worth retrying (transport errors, 5xx).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func transient(err error) error {
	return &transientError{err: err}
}

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// withRetry runs op with bounded exponential backoff. Only transient failures
// are retried; anything else aborts immediately.
func (c *Client) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	delay := c.cfg.RetryBaseDelay
	var err error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return transient(ctx.Err())
			case <-time.After(delay):
			}
			delay *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		err = op(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
	}
	return err
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s%s", trimRightSlash(c.cfg.BaseURL), path)
}

func trimRightSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
