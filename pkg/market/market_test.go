package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewAppliesDefaults(t *testing.T) {
	s := New(nil, 0, 0)
	assert.Equal(t, 30*time.Second, s.queryTimeout)
	assert.Equal(t, 400, s.retention)
}

func TestNewKeepsExplicitValues(t *testing.T) {
	s := New(nil, 5*time.Second, 10)
	assert.Equal(t, 5*time.Second, s.queryTimeout)
	assert.Equal(t, 10, s.retention)
}
