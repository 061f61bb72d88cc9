// Package embedder implements C4: a text-embedding client with an HTTP
// provider speaking the base-spec §6.3 wire contract and an
// OpenAI-compatible provider for operators fronting a self-hosted server,
// selected by Config.Provider following the provider-factory shape of the
// reference codebase's pkg/crossencoder.NewClient.
package embedder

import (
	"context"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
)

// Client embeds text into fixed-dimension vectors. Implementations batch
// internally up to their provider's limits.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Close() error
}

// New builds a Client from cfg.Provider ("http" or "openai_compatible"),
// wrapping every provider's outbound call with retryPolicy and, when
// breaker is non-nil, the embedding circuit breaker (§5: one breaker
// instance per external dependency, held by the composition root).
func New(cfg config.EmbeddingConfig, retryPolicy resilience.Policy, breaker *resilience.Breaker) (Client, error) {
	switch cfg.Provider {
	case "", "http":
		return NewHTTPEmbedder(cfg, retryPolicy, breaker), nil
	case "openai_compatible", "openai":
		return NewOpenAICompatibleEmbedder(cfg, retryPolicy, breaker), nil
	default:
		return nil, apperr.NewValidation("embedding.provider", "unsupported provider: "+cfg.Provider)
	}
}
