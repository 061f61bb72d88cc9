// Package checkpoint gives the Vectorization use-case (C8) a resumable
// cursor. A full-rebuild or incremental vectorization run may process tens
// of thousands of concepts; if the process is interrupted, this package
// lets it resume from the last concept it finished rather than restarting.
//
// This is deliberately narrower than a step-granular pipeline checkpoint:
// vectorization has exactly one unit of resumable state (§4.7, "A
// checkpoint file records the last-processed concept id").
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the on-disk shape of a vectorization checkpoint.
type State struct {
	LastProcessedConceptID string    `json:"last_processed_concept_id"`
	Mode                   string    `json:"mode"` // "full-rebuild" | "incremental"
	CompanyCodeFilter      string    `json:"company_code_filter,omitempty"`
	ProcessedCount         int       `json:"processed_count"`
	FailedCount            int       `json:"failed_count"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Manager persists and loads a single vectorization checkpoint file with an
// atomic write (temp file + rename), so a crash mid-write never leaves a
// corrupt checkpoint behind.
type Manager struct {
	path string
}

// NewManager creates a checkpoint manager rooted at path. If path's parent
// directory does not exist, it is created.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		path = filepath.Join(os.TempDir(), "ashareinsight-vectorize-checkpoint.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Manager{path: path}, nil
}

// Save atomically writes the checkpoint state to disk.
func (m *Manager) Save(_ context.Context, state *State) error {
	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	tmpPath := m.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}
	return nil
}

// Load reads the checkpoint from disk. A missing file is not an error; it
// returns (nil, nil) so the caller starts a fresh run.
func (m *Manager) Load(_ context.Context) (*State, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &state, nil
}

// Clear removes the checkpoint file, signaling a clean completed run.
func (m *Manager) Clear(_ context.Context) error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove checkpoint file: %w", err)
	}
	return nil
}
