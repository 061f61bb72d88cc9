package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
	"github.com/ashareinsight/ashareinsight/pkg/store"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// maxRetries is N from §4.6's optimistic-lock retry schedule.
const maxRetries = 3

// conceptStore is the subset of *store.ConceptStore Service depends on,
// narrowed for unit testing with a fake.
type conceptStore interface {
	FindActiveConcept(ctx context.Context, companyCode, conceptName string) (*types.BusinessConcept, error)
	InsertConcept(ctx context.Context, c types.BusinessConcept) (string, error)
	UpdateConcept(ctx context.Context, c types.BusinessConcept, expectedVersion int) error
}

// Service fuses a document's extracted concepts into a company's master
// concept set, per §4.6.
type Service struct {
	store     conceptStore
	batchSize int
	log       *slog.Logger
}

// New builds a Service. log may be nil, in which case slog.Default is used.
func New(s conceptStore, cfg config.FusionConfig, log *slog.Logger) *Service {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: s, batchSize: batchSize, log: log}
}

// FuseDocument merges every extracted concept into companyCode's master
// set. A single concept's repeated failure is logged and does not abort
// the remaining concepts in the document (§4.6 terminal-failure policy)
// since Archival has already durably persisted the raw extraction; but
// every per-concept failure is collected and returned as a joined error
// once the whole document has been attempted, so the caller can flip the
// document to failed and replay it later.
func (s *Service) FuseDocument(ctx context.Context, companyCode, docID string, concepts []types.ConceptExtraction) error {
	var errs []error
	for start := 0; start < len(concepts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(concepts) {
			end = len(concepts)
		}
		for _, extracted := range concepts[start:end] {
			if err := s.fuseOne(ctx, companyCode, docID, extracted); err != nil {
				s.log.Error("fusion failed for concept, continuing with remaining concepts",
					"company_code", companyCode, "concept_name", extracted.ConceptName, "error", err)
				errs = append(errs, fmt.Errorf("concept %q: %w", extracted.ConceptName, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (s *Service) fuseOne(ctx context.Context, companyCode, docID string, extracted types.ConceptExtraction) error {
	existing, err := s.store.FindActiveConcept(ctx, companyCode, extracted.ConceptName)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("lookup existing concept: %w", err)
	}

	if existing == nil {
		return s.insertNew(ctx, companyCode, docID, extracted)
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		merged := mergeConcept(*existing, newConceptFromExtraction(companyCode, existing.ConceptID, extracted, docID), time.Now().UTC())
		merged.ConceptID = existing.ConceptID

		err := s.store.UpdateConcept(ctx, merged, existing.Version)
		if err == nil {
			return nil
		}
		if !apperr.IsOptimisticLock(err) {
			return fmt.Errorf("update concept: %w", err)
		}

		if attempt == maxRetries {
			return fmt.Errorf("exhausted %d optimistic-lock retries on concept %s: %w", maxRetries, existing.ConceptID, err)
		}
		select {
		case <-time.After(resilience.OptimisticLockBackoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}

		existing, err = s.store.FindActiveConcept(ctx, companyCode, extracted.ConceptName)
		if err != nil {
			return fmt.Errorf("re-read concept after lock conflict: %w", err)
		}
	}
	return nil
}

func (s *Service) insertNew(ctx context.Context, companyCode, docID string, extracted types.ConceptExtraction) error {
	fresh := newConceptFromExtraction(companyCode, uuid.NewString(), extracted, docID)

	if _, err := s.store.InsertConcept(ctx, fresh); err != nil {
		if errors.Is(err, apperr.ErrUniqueViolation) {
			// A concurrent fuser just created this concept (§5's insert race).
			// Re-read and fall back to the update path.
			existing, findErr := s.store.FindActiveConcept(ctx, companyCode, extracted.ConceptName)
			if findErr != nil {
				return fmt.Errorf("re-read after insert race: %w", findErr)
			}
			merged := mergeConcept(*existing, fresh, time.Now().UTC())
			merged.ConceptID = existing.ConceptID
			return s.store.UpdateConcept(ctx, merged, existing.Version)
		}
		return fmt.Errorf("insert concept: %w", err)
	}
	return nil
}

// Compile-time assertion that *store.ConceptStore satisfies conceptStore.
var _ conceptStore = (*store.ConceptStore)(nil)
