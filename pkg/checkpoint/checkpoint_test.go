package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerSaveLoad(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ashareinsight-checkpoint-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	path := filepath.Join(tmpDir, "vectorize.json")

	mgr, err := NewManager(path)
	require.NoError(t, err)

	state, err := mgr.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, state, "no checkpoint should exist yet")

	err = mgr.Save(ctx, &State{
		LastProcessedConceptID: "concept-123",
		Mode:                   "incremental",
		ProcessedCount:         42,
	})
	require.NoError(t, err)

	loaded, err := mgr.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "concept-123", loaded.LastProcessedConceptID)
	assert.Equal(t, "incremental", loaded.Mode)
	assert.Equal(t, 42, loaded.ProcessedCount)
	assert.False(t, loaded.UpdatedAt.IsZero())
}

func TestManagerClear(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "ashareinsight-checkpoint-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()
	mgr, err := NewManager(filepath.Join(tmpDir, "vectorize.json"))
	require.NoError(t, err)

	require.NoError(t, mgr.Save(ctx, &State{LastProcessedConceptID: "x"}))
	require.NoError(t, mgr.Clear(ctx))

	state, err := mgr.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestManagerDefaultPath(t *testing.T) {
	mgr, err := NewManager("")
	require.NoError(t, err)
	assert.NotEmpty(t, mgr.path)
}
