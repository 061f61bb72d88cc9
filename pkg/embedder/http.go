package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
)

// HTTPEmbedder issues the base-spec §6.3 wire contract: POST {base_url}/embed
// with {"texts": [...], "normalize": b, "batch_size": n, "model": "..."} and
// expects {"data": {"embeddings": [[...], ...], "dimensions": N, "count": M}}.
type HTTPEmbedder struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	dimensions  int
	batchSize   int
	normalize   bool
	retryPolicy resilience.Policy
	breaker     *resilience.Breaker
}

// NewHTTPEmbedder builds an HTTPEmbedder from cfg, applying §4.3's defaults.
// retryPolicy governs per-batch retry (§4.3: transport errors and 5xx are
// retried with backoff, 4xx is fatal); breaker may be nil, in which case
// every batch is issued directly.
func NewHTTPEmbedder(cfg config.EmbeddingConfig, retryPolicy resilience.Policy, breaker *resilience.Breaker) *HTTPEmbedder {
	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = 30
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}
	dim := cfg.Dimensions
	if dim <= 0 {
		dim = 2560
	}

	return &HTTPEmbedder{
		httpClient:  &http.Client{Timeout: time.Duration(timeout) * time.Second},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		dimensions:  dim,
		batchSize:   batch,
		normalize:   cfg.Normalize,
		retryPolicy: retryPolicy,
		breaker:     breaker,
	}
}

type embedRequest struct {
	Texts     []string `json:"texts"`
	Normalize bool     `json:"normalize"`
	BatchSize int      `json:"batch_size,omitempty"`
	Model     string   `json:"model,omitempty"`
}

type embedResponse struct {
	Data struct {
		Embeddings [][]float32 `json:"embeddings"`
		Dimensions int         `json:"dimensions"`
		Count      int         `json:"count"`
	} `json:"data"`
}

// Embed validates input, batches into BatchSize chunks, and issues one
// POST per chunk. Empty texts are rejected up front per §4.3's edge case.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.NewValidation("texts", "must not be empty")
	}
	for i, t := range texts {
		if t == "" {
			return nil, apperr.NewValidation(fmt.Sprintf("texts[%d]", i), "must not be empty")
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// embedBatch retries doEmbedBatch per e.retryPolicy (transport errors and
// 5xx are retryable, 4xx is fatal), routing every attempt through the
// breaker when one is configured so a tripped breaker fails fast instead of
// exhausting the retry budget.
func (e *HTTPEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return resilience.Do(ctx, e.retryPolicy, func(ctx context.Context) ([][]float32, error) {
		if e.breaker == nil {
			return e.doEmbedBatch(ctx, texts)
		}
		return resilience.ExecuteCtx(e.breaker, func() ([][]float32, error) {
			return e.doEmbedBatch(ctx, texts)
		})
	})
}

func (e *HTTPEmbedder) doEmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts, Normalize: e.normalize, BatchSize: e.batchSize, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal embed request: %v", apperr.ErrEmbedding, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build embed request: %v", apperr.ErrEmbedding, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &httpError{status: resp.StatusCode, cause: fmt.Errorf("%w: embed service returned status %d", apperr.ErrEmbedding, resp.StatusCode)}
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode embed response: %v", apperr.ErrEmbedding, err)
	}
	if len(decoded.Data.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", apperr.ErrEmbedding, len(texts), len(decoded.Data.Embeddings))
	}
	return decoded.Data.Embeddings, nil
}

// EmbedSingle is a convenience wrapper over Embed for one text.
func (e *HTTPEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimensions returns the configured embedding dimensionality.
func (e *HTTPEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op; the underlying http.Client owns no resources to release.
func (e *HTTPEmbedder) Close() error { return nil }

// httpError carries the upstream HTTP status code so pkg/resilience's
// retry predicate can distinguish retryable 5xx from fatal 4xx.
type httpError struct {
	status int
	cause  error
}

func (e *httpError) Error() string       { return e.cause.Error() }
func (e *httpError) Unwrap() error       { return e.cause }
func (e *httpError) HTTPStatusCode() int { return e.status }
