// Package archival implements C6: ingesting one completed LLM extraction
// into the concept store and handing its concepts to Fusion. Per §4.5 this
// is an explicit error-isolation boundary: fusion failures never roll back
// the already-committed document archive, because the document is durable
// and fusion can always be retried independently from raw_llm_output.
package archival

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// ErrSkippedNoAnnualReport is returned when a research-report extraction
// references a company with no prior completed annual report on file
// (§4.5's "research report without prior annual report" edge case). The
// archive is skipped with a logged warning rather than failing loudly.
var ErrSkippedNoAnnualReport = errors.New("skipped: research report references company with no prior annual report")

// conceptStore is the subset of *store.ConceptStore Service depends on.
type conceptStore interface {
	UpsertCompany(ctx context.Context, company types.Company) (*types.Company, error)
	ArchiveDocument(ctx context.Context, doc types.SourceDocument) (docID string, alreadyExisted bool, err error)
	HasAnnualReport(ctx context.Context, companyCode string) (bool, error)
	UpdateDocumentStatus(ctx context.Context, docID string, status types.ProcessingStatus, errorText string) error
}

// fuser is the subset of *fusion.Service Service depends on.
type fuser interface {
	FuseDocument(ctx context.Context, companyCode, docID string, concepts []types.ConceptExtraction) error
}

// Service archives completed extractions per §4.5's four-step flow.
type Service struct {
	store conceptStore
	fuser fuser
	log   *slog.Logger
}

// New builds a Service. log may be nil, in which case slog.Default is used.
func New(store conceptStore, fuser fuser, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, fuser: fuser, log: log}
}

// Result is Archive's return value: the persisted document id and whether
// this exact (company_code, file_hash) had already been archived.
type Result struct {
	DocID          string
	AlreadyExisted bool
}

// Archive runs §4.5's steps 1-4. A research report for a company with no
// prior annual report returns ErrSkippedNoAnnualReport without archiving
// anything (annual reports always proceed, regardless).
func (s *Service) Archive(ctx context.Context, extraction types.Extraction) (Result, error) {
	if extraction.DocType == types.DocTypeResearchReport {
		hasAnnual, err := s.store.HasAnnualReport(ctx, extraction.Company.CompanyCode)
		if err != nil {
			return Result{}, fmt.Errorf("check prior annual report: %w", err)
		}
		if !hasAnnual {
			s.log.Warn("skipping research report archive: no prior annual report on file",
				"company_code", extraction.Company.CompanyCode)
			return Result{}, ErrSkippedNoAnnualReport
		}
	}

	if _, err := s.store.UpsertCompany(ctx, types.Company{
		CompanyCode: extraction.Company.CompanyCode,
		FullName:    extraction.Company.FullName,
		ShortName:   extraction.Company.ShortName,
		Exchange:    extraction.Company.Exchange,
	}); err != nil {
		return Result{}, fmt.Errorf("upsert company: %w", err)
	}

	docID := uuid.NewString()
	persistedID, alreadyExisted, err := s.store.ArchiveDocument(ctx, types.SourceDocument{
		DocID:         docID,
		CompanyCode:   extraction.Company.CompanyCode,
		DocType:       extraction.DocType,
		PublishedDate: extraction.PublishedDate,
		Title:         extraction.Title,
		FilePath:      extraction.FilePath,
		FileHash:      extraction.FileHash,
		RawLLMOutput:  extraction.RawLLMOutput,
		Extraction:    extraction.Metadata,
		Status:        types.StatusCompleted,
	})
	if err != nil {
		return Result{}, fmt.Errorf("archive document: %w", err)
	}
	if alreadyExisted {
		return Result{DocID: persistedID, AlreadyExisted: true}, nil
	}

	// Fusion runs after the archive above and outside any transaction: the
	// company upsert, the document insert and each concept write are
	// separate store calls. A fusion failure never rolls back the document
	// archive above, it only flips the document to failed so it can be
	// replayed later.
	if err := s.fuser.FuseDocument(ctx, extraction.Company.CompanyCode, persistedID, extraction.Concepts); err != nil {
		s.log.Error("fusion failed after successful archive; document remains replayable",
			"doc_id", persistedID, "company_code", extraction.Company.CompanyCode, "error", err)
		if updateErr := s.store.UpdateDocumentStatus(ctx, persistedID, types.StatusFailed, err.Error()); updateErr != nil {
			s.log.Error("failed to mark document failed after fusion error",
				"doc_id", persistedID, "error", updateErr)
		}
		return Result{DocID: persistedID, AlreadyExisted: false}, nil
	}

	return Result{DocID: persistedID, AlreadyExisted: false}, nil
}
