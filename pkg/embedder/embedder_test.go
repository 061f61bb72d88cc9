package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
)

var testRetryPolicy = resilience.PolicyFromConfig(config.RetryConfig{})

func TestNewDispatchesOnProvider(t *testing.T) {
	httpClient, err := New(config.EmbeddingConfig{Provider: "http", BaseURL: "http://localhost:9000"}, testRetryPolicy, nil)
	require.NoError(t, err)
	assert.IsType(t, &HTTPEmbedder{}, httpClient)

	openaiClient, err := New(config.EmbeddingConfig{Provider: "openai_compatible"}, testRetryPolicy, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAICompatibleEmbedder{}, openaiClient)

	_, err = New(config.EmbeddingConfig{Provider: "unknown"}, testRetryPolicy, nil)
	assert.Error(t, err)
}

func TestHTTPEmbedderRejectsEmptyTexts(t *testing.T) {
	e := NewHTTPEmbedder(config.EmbeddingConfig{BaseURL: "http://localhost:9000"}, testRetryPolicy, nil)
	_, err := e.Embed(nil, nil)
	assert.Error(t, err)

	_, err = e.Embed(nil, []string{""})
	assert.Error(t, err)
}

func TestHTTPEmbedderDefaults(t *testing.T) {
	e := NewHTTPEmbedder(config.EmbeddingConfig{}, testRetryPolicy, nil)
	assert.Equal(t, 2560, e.Dimensions())
	assert.Equal(t, 64, e.batchSize)
}
