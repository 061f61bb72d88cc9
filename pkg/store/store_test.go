package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmbeddingRoundTrip(t *testing.T) {
	v := []float32{0.1, -0.25, 3.5, 0}
	s := embeddingToString(v)
	assert.Equal(t, "[0.1,-0.25,3.5,0]", s)

	back := parseEmbedding(s)
	assert.InDeltaSlice(t, []float64{0.1, -0.25, 3.5, 0}, toFloat64(back), 1e-6)
}

func TestEmbeddingToSQLNilForEmpty(t *testing.T) {
	assert.Nil(t, embeddingToSQL(nil))
	assert.Nil(t, embeddingToSQL([]float32{}))
	assert.NotNil(t, embeddingToSQL([]float32{1}))
}

func TestParseEmbeddingEmptyBracket(t *testing.T) {
	assert.Nil(t, parseEmbedding("[]"))
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
