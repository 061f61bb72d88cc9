package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// ArchiveDocument inserts a source_documents row. It is idempotent on
// (company_code, file_hash): a repeat archive of the same file for the
// same company returns the existing doc_id with alreadyExisted=true rather
// than erroring, per §4.6.
func (s *ConceptStore) ArchiveDocument(ctx context.Context, doc types.SourceDocument) (docID string, alreadyExisted bool, err error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO source_documents (
			doc_id, company_code, doc_type, published_date, title, file_path, file_hash,
			raw_llm_output, model_id, prompt_version, prompt_tokens, output_tokens,
			wall_clock_ms, status, error_text
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		doc.DocID, doc.CompanyCode, doc.DocType, doc.PublishedDate, doc.Title, doc.FilePath, doc.FileHash,
		doc.RawLLMOutput, doc.Extraction.ModelID, doc.Extraction.PromptVersion, doc.Extraction.PromptTokens,
		doc.Extraction.OutputTokens, doc.Extraction.WallClock.Milliseconds(), doc.Status, doc.ErrorText)

	if err == nil {
		return doc.DocID, false, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		existingID, findErr := s.findDocumentID(ctx, doc.CompanyCode, doc.FileHash)
		if findErr != nil {
			return "", false, findErr
		}
		return existingID, true, nil
	}

	return "", false, fmt.Errorf("%w: archive document: %v", apperr.ErrRepository, err)
}

func (s *ConceptStore) findDocumentID(ctx context.Context, companyCode, fileHash string) (string, error) {
	var id string
	row := s.db.QueryRowContext(ctx,
		`SELECT doc_id FROM source_documents WHERE company_code = $1 AND file_hash = $2`,
		companyCode, fileHash)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: document race lost but row not found", apperr.ErrRepository)
		}
		return "", fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	return id, nil
}

// GetDocument fetches one source_documents row by doc_id, for replaying
// fusion from its persisted raw_llm_output.
func (s *ConceptStore) GetDocument(ctx context.Context, docID string) (*types.SourceDocument, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var doc types.SourceDocument
	var wallClockMs int64
	row := s.db.QueryRowContext(ctx, `
		SELECT doc_id, company_code, doc_type, published_date, title, file_path, file_hash,
			raw_llm_output, model_id, prompt_version, prompt_tokens, output_tokens,
			wall_clock_ms, status, error_text, created_at
		FROM source_documents WHERE doc_id = $1`, docID)
	if err := row.Scan(
		&doc.DocID, &doc.CompanyCode, &doc.DocType, &doc.PublishedDate, &doc.Title, &doc.FilePath, &doc.FileHash,
		&doc.RawLLMOutput, &doc.Extraction.ModelID, &doc.Extraction.PromptVersion, &doc.Extraction.PromptTokens,
		&doc.Extraction.OutputTokens, &wallClockMs, &doc.Status, &doc.ErrorText, &doc.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: document %s", apperr.ErrNotFound, docID)
		}
		return nil, fmt.Errorf("%w: get document: %v", apperr.ErrRepository, err)
	}
	doc.Extraction.WallClock = time.Duration(wallClockMs) * time.Millisecond
	return &doc, nil
}

// ListDocumentsByStatus enumerates source_documents rows in a given
// lifecycle state, used to find failed documents queued for fusion replay.
func (s *ConceptStore) ListDocumentsByStatus(ctx context.Context, status types.ProcessingStatus) ([]types.SourceDocument, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, company_code, doc_type, published_date, title, file_path, file_hash,
			raw_llm_output, model_id, prompt_version, prompt_tokens, output_tokens,
			wall_clock_ms, status, error_text, created_at
		FROM source_documents WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents by status: %v", apperr.ErrRepository, err)
	}
	defer rows.Close()

	var docs []types.SourceDocument
	for rows.Next() {
		var doc types.SourceDocument
		var wallClockMs int64
		if err := rows.Scan(
			&doc.DocID, &doc.CompanyCode, &doc.DocType, &doc.PublishedDate, &doc.Title, &doc.FilePath, &doc.FileHash,
			&doc.RawLLMOutput, &doc.Extraction.ModelID, &doc.Extraction.PromptVersion, &doc.Extraction.PromptTokens,
			&doc.Extraction.OutputTokens, &wallClockMs, &doc.Status, &doc.ErrorText, &doc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", apperr.ErrRepository, err)
		}
		doc.Extraction.WallClock = time.Duration(wallClockMs) * time.Millisecond
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	return docs, nil
}

// UpdateDocumentStatus records fusion replay outcome on a source_documents
// row (§4.6: terminal states are persistent, failed documents replayable).
func (s *ConceptStore) UpdateDocumentStatus(ctx context.Context, docID string, status types.ProcessingStatus, errorText string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE source_documents SET status = $2, error_text = $3 WHERE doc_id = $1`,
		docID, status, errorText)
	if err != nil {
		return fmt.Errorf("%w: update document status: %v", apperr.ErrRepository, err)
	}
	return nil
}

// HasAnnualReport reports whether company_code already has an archived
// annual-report-type document, used by C6 to flag research reports that
// arrive with no prior annual report on file (§4.6 edge case).
func (s *ConceptStore) HasAnnualReport(ctx context.Context, companyCode string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	row := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM source_documents
			WHERE company_code = $1 AND doc_type = $2 AND status = 'completed'
		)`, companyCode, types.DocTypeAnnualReport)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	return exists, nil
}
