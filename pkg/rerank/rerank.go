// Package rerank implements C5: a cross-encoder reranking client speaking
// the §6.3 wire contract. Degradation policy is the caller's concern
// (§4.4): C9 catches CircuitOpenError/ExternalServiceError from this
// client and proceeds without reranking for the remainder of the request,
// following the reference codebase's multi-provider pkg/crossencoder
// shape but narrowed to the one wire contract defined here.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
)

// Result pairs a candidate document's original index (into the caller's
// documents slice, so it can re-attach metadata) with its rerank score and
// the document text itself, per §4.4/§6.3's (index, score, document) shape.
type Result struct {
	Index    int
	Score    float64
	Document string
}

// Client reranks query/document pairs, returning at most topK results
// sorted by descending score.
type Client interface {
	Rank(ctx context.Context, query string, documents []string, topK int) ([]Result, error)
	Close() error
}

// HTTPReranker issues POST {base_url}/rerank with
// {"query": "...", "documents": [...], "top_k": k, "model": "..."} and expects
// {"data": {"results": [{"index": i, "score": s, "document": "..."}, ...]}}.
type HTTPReranker struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	maxDocs     int
	maxDocChars int
	retryPolicy resilience.Policy
}

// New builds an HTTPReranker from cfg, or returns nil (no error) when
// cfg.Enabled is false, signalling callers to skip reranking entirely.
// retryPolicy governs the per-request retry within Rank; the circuit
// breaker around the reranker as a whole is held by the caller (§4.4: C9
// catches a tripped breaker and proceeds unreranked, rather than the client
// retrying against an already-open breaker).
func New(cfg config.RerankConfig, retryPolicy resilience.Policy) Client {
	if !cfg.Enabled {
		return nil
	}
	return NewHTTPReranker(cfg, retryPolicy)
}

// NewHTTPReranker builds an HTTPReranker from cfg, applying §4.4's defaults.
func NewHTTPReranker(cfg config.RerankConfig, retryPolicy resilience.Policy) *HTTPReranker {
	timeout := cfg.TimeoutSec
	if timeout <= 0 {
		timeout = 5
	}
	maxDocs := cfg.MaxDocuments
	if maxDocs <= 0 {
		maxDocs = 500
	}
	maxChars := cfg.MaxDocChars
	if maxChars <= 0 {
		maxChars = 8192
	}

	return &HTTPReranker{
		httpClient:  &http.Client{Timeout: time.Duration(timeout) * time.Second},
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxDocs:     maxDocs,
		maxDocChars: maxChars,
		retryPolicy: retryPolicy,
	}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k,omitempty"`
	Model     string   `json:"model,omitempty"`
}

type wireResult struct {
	Index    int     `json:"index"`
	Score    float64 `json:"score"`
	Document string  `json:"document"`
}

type rerankResponse struct {
	Data struct {
		Results []wireResult `json:"results"`
	} `json:"data"`
}

// Rank validates documents/text-length limits and issues one POST. Provider
// limit violations fail with ValidationError rather than being silently
// truncated, per §4.4. The response is sorted by descending score and
// truncated to topK, in case the provider does not already guarantee that.
func (r *HTTPReranker) Rank(ctx context.Context, query string, documents []string, topK int) ([]Result, error) {
	if query == "" {
		return nil, apperr.NewValidation("query", "must not be empty")
	}
	if len(documents) == 0 {
		return nil, nil
	}
	if len(documents) > r.maxDocs {
		return nil, apperr.NewValidation("documents", fmt.Sprintf("exceeds provider limit of %d documents", r.maxDocs))
	}
	for i, d := range documents {
		if len(d) > r.maxDocChars {
			return nil, apperr.NewValidation(fmt.Sprintf("documents[%d]", i), fmt.Sprintf("exceeds provider limit of %d characters", r.maxDocChars))
		}
	}

	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, TopK: topK, Model: r.model})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal rerank request: %v", apperr.ErrRerank, err)
	}

	results, err := resilience.Do(ctx, r.retryPolicy, func(ctx context.Context) ([]Result, error) {
		return r.doRank(ctx, body)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// doRank issues one POST /rerank; retried by Rank per r.retryPolicy on
// transport errors and 5xx.
func (r *HTTPReranker) doRank(ctx context.Context, body []byte) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build rerank request: %v", apperr.ErrRerank, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrRerank, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &httpError{status: resp.StatusCode, cause: fmt.Errorf("%w: rerank service returned status %d", apperr.ErrRerank, resp.StatusCode)}
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decode rerank response: %v", apperr.ErrRerank, err)
	}

	results := make([]Result, len(decoded.Data.Results))
	for i, w := range decoded.Data.Results {
		results[i] = Result{Index: w.Index, Score: w.Score, Document: w.Document}
	}
	return results, nil
}

// Close is a no-op; the underlying http.Client owns no resources to release.
func (r *HTTPReranker) Close() error { return nil }

type httpError struct {
	status int
	cause  error
}

func (e *httpError) Error() string       { return e.cause.Error() }
func (e *httpError) Unwrap() error       { return e.cause }
func (e *httpError) HTTPStatusCode() int { return e.status }
