package rerank

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
)

var testRetryPolicy = resilience.PolicyFromConfig(config.RetryConfig{})

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	c := New(config.RerankConfig{Enabled: false}, testRetryPolicy)
	assert.Nil(t, c)
}

func TestNewReturnsClientWhenEnabled(t *testing.T) {
	c := New(config.RerankConfig{Enabled: true, BaseURL: "http://localhost:9001"}, testRetryPolicy)
	assert.NotNil(t, c)
}

func TestHTTPRerankerRejectsEmptyQuery(t *testing.T) {
	r := NewHTTPReranker(config.RerankConfig{Enabled: true}, testRetryPolicy)
	_, err := r.Rank(nil, "", []string{"a"}, 10)
	assert.Error(t, err)
}

func TestHTTPRerankerEmptyDocumentsIsNoop(t *testing.T) {
	r := NewHTTPReranker(config.RerankConfig{Enabled: true}, testRetryPolicy)
	results, err := r.Rank(nil, "query", nil, 10)
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestHTTPRerankerRejectsTooManyDocuments(t *testing.T) {
	r := NewHTTPReranker(config.RerankConfig{Enabled: true, MaxDocuments: 2}, testRetryPolicy)
	_, err := r.Rank(nil, "query", []string{"a", "b", "c"}, 10)
	assert.Error(t, err)
}
