// Package vectorize implements C8: computing and persisting embeddings for
// concepts that need them. A checkpoint (pkg/checkpoint) records the last
// processed concept id so a long-running rebuild is resumable after a
// crash, per §4.7.
package vectorize

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashareinsight/ashareinsight/pkg/checkpoint"
	"github.com/ashareinsight/ashareinsight/pkg/embedder"
	"github.com/ashareinsight/ashareinsight/pkg/store"
	"github.com/ashareinsight/ashareinsight/pkg/types"
	"github.com/ashareinsight/ashareinsight/pkg/utils"
)

// Mode selects which concepts Run considers.
type Mode string

const (
	// ModeFullRebuild processes every active concept regardless of whether
	// it already has an embedding.
	ModeFullRebuild Mode = "full-rebuild"
	// ModeIncremental processes only concepts with a NULL embedding.
	ModeIncremental Mode = "incremental"
)

// conceptStore is the subset of *store.ConceptStore Service depends on.
type conceptStore interface {
	ListActiveConcepts(ctx context.Context, companyCode string) ([]types.BusinessConcept, error)
	BatchUpdateEmbeddings(ctx context.Context, updates []store.EmbeddingUpdate) error
}

// Service runs the vectorization use-case.
type Service struct {
	store        conceptStore
	embedder     embedder.Client
	checkpoints  *checkpoint.Manager
	maxTextChars int
	batchSize    int
	log          *slog.Logger
}

// Config bundles Service's tunables.
type Config struct {
	MaxTextChars int
	BatchSize    int
}

// New builds a Service. log may be nil, in which case slog.Default is used.
func New(s conceptStore, emb embedder.Client, checkpoints *checkpoint.Manager, cfg Config, log *slog.Logger) *Service {
	maxChars := cfg.MaxTextChars
	if maxChars <= 0 {
		maxChars = 8192
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, embedder: emb, checkpoints: checkpoints, maxTextChars: maxChars, batchSize: batchSize, log: log}
}

// Run vectorizes concepts matching mode (and the optional companyCode
// filter), batching to the embedder's concurrency ceiling and writing a
// checkpoint after each batch.
func (s *Service) Run(ctx context.Context, mode Mode, companyCode string) (processed, failed int, err error) {
	concepts, err := s.store.ListActiveConcepts(ctx, companyCode)
	if err != nil {
		return 0, 0, fmt.Errorf("list active concepts: %w", err)
	}

	candidates := selectCandidates(concepts, mode)
	candidates = skipAlreadyProcessed(candidates, s.resumeCursor(ctx))

	limit := utils.GetSemaphoreLimit()

	for start := 0; start < len(candidates); start += s.batchSize {
		end := start + s.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		updates, batchFailed := s.embedBatch(ctx, batch, limit)
		failed += batchFailed

		if len(updates) > 0 {
			if err := s.store.BatchUpdateEmbeddings(ctx, updates); err != nil {
				return processed, failed, fmt.Errorf("batch update embeddings: %w", err)
			}
		}
		processed += len(updates)

		if s.checkpoints != nil && len(batch) > 0 {
			_ = s.checkpoints.Save(ctx, &checkpoint.State{
				LastProcessedConceptID: batch[len(batch)-1].ConceptID,
				Mode:                   string(mode),
				CompanyCodeFilter:      companyCode,
				ProcessedCount:         processed,
				FailedCount:            failed,
			})
		}
	}

	return processed, failed, nil
}

func selectCandidates(concepts []types.BusinessConcept, mode Mode) []types.BusinessConcept {
	if mode == ModeFullRebuild {
		out := make([]types.BusinessConcept, len(concepts))
		copy(out, concepts)
		return out
	}
	var out []types.BusinessConcept
	for _, c := range concepts {
		if c.NeedsVectorization() {
			out = append(out, c)
		}
	}
	return out
}

func (s *Service) resumeCursor(ctx context.Context) string {
	if s.checkpoints == nil {
		return ""
	}
	st, err := s.checkpoints.Load(ctx)
	if err != nil || st == nil {
		return ""
	}
	return st.LastProcessedConceptID
}

// skipAlreadyProcessed drops every candidate up to and including cursor,
// assuming ListActiveConcepts returns a stable order (concepts.go orders by
// concept_name) so a resumed run picks up where it left off.
func skipAlreadyProcessed(candidates []types.BusinessConcept, cursor string) []types.BusinessConcept {
	if cursor == "" {
		return candidates
	}
	for i, c := range candidates {
		if c.ConceptID == cursor {
			return candidates[i+1:]
		}
	}
	return candidates
}

func (s *Service) embedBatch(ctx context.Context, batch []types.BusinessConcept, concurrency int) ([]store.EmbeddingUpdate, int) {
	type outcome struct {
		update store.EmbeddingUpdate
		ok     bool
	}
	results := make([]outcome, len(batch))

	sem := make(chan struct{}, concurrency)
	done := make(chan int, len(batch))
	for i, c := range batch {
		sem <- struct{}{}
		go func(i int, c types.BusinessConcept) {
			defer func() { <-sem; done <- i }()
			text := c.EmbeddingText(s.maxTextChars)
			vec, err := s.embedder.EmbedSingle(ctx, text)
			if err != nil {
				s.log.Error("embedding failed, concept remains scheduled", "concept_id", c.ConceptID, "error", err)
				return
			}
			if s.embedder.Dimensions() > 0 && len(vec) != s.embedder.Dimensions() {
				s.log.Error("embedding dimension mismatch, discarding", "concept_id", c.ConceptID, "got", len(vec), "want", s.embedder.Dimensions())
				return
			}
			results[i] = outcome{update: store.EmbeddingUpdate{ConceptID: c.ConceptID, Vector: vec}, ok: true}
		}(i, c)
	}
	for range batch {
		<-done
	}

	var updates []store.EmbeddingUpdate
	failed := 0
	for _, r := range results {
		if r.ok {
			updates = append(updates, r.update)
		} else {
			failed++
		}
	}
	return updates, failed
}
