package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
)

// OpenAICompatibleEmbedder wraps go-openai's CreateEmbeddings for operators
// fronting a self-hosted OpenAI-compatible embedding server, following the
// custom-BaseURL pattern of the reference codebase's nlp.OpenAIClient.
type OpenAICompatibleEmbedder struct {
	client      *openai.Client
	model       openai.EmbeddingModel
	dimensions  int
	batchSize   int
	retryPolicy resilience.Policy
	breaker     *resilience.Breaker
}

// NewOpenAICompatibleEmbedder builds an OpenAICompatibleEmbedder from cfg.
// See NewHTTPEmbedder for retryPolicy/breaker semantics.
func NewOpenAICompatibleEmbedder(cfg config.EmbeddingConfig, retryPolicy resilience.Policy, breaker *resilience.Breaker) *OpenAICompatibleEmbedder {
	apiKey := cfg.APIKey
	clientConfig := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		if apiKey == "" {
			clientConfig = openai.DefaultConfig("dummy-key")
		}
		clientConfig.BaseURL = cfg.BaseURL
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 64
	}
	dim := cfg.Dimensions
	if dim <= 0 {
		dim = 2560
	}

	return &OpenAICompatibleEmbedder{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       openai.EmbeddingModel(cfg.Model),
		dimensions:  dim,
		batchSize:   batch,
		retryPolicy: retryPolicy,
		breaker:     breaker,
	}
}

// Embed issues CreateEmbeddings in BatchSize-sized chunks, retrying each
// chunk per e.retryPolicy and routing it through the breaker when one is
// configured.
func (e *OpenAICompatibleEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, apperr.NewValidation("texts", "must not be empty")
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		embeddings, err := resilience.Do(ctx, e.retryPolicy, func(ctx context.Context) ([]openai.Embedding, error) {
			call := func() ([]openai.Embedding, error) {
				resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
					Input: chunk,
					Model: e.model,
				})
				if err != nil {
					return nil, fmt.Errorf("%w: openai-compatible embeddings failed: %v", apperr.ErrEmbedding, err)
				}
				return resp.Data, nil
			}
			if e.breaker == nil {
				return call()
			}
			return resilience.ExecuteCtx(e.breaker, call)
		})
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(chunk) {
			return nil, fmt.Errorf("%w: expected %d embeddings, got %d", apperr.ErrEmbedding, len(chunk), len(embeddings))
		}
		for _, d := range embeddings {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}

// EmbedSingle embeds one text.
func (e *OpenAICompatibleEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// Dimensions returns the configured embedding dimensionality.
func (e *OpenAICompatibleEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op; go-openai's client owns no resources to release.
func (e *OpenAICompatibleEmbedder) Close() error { return nil }
