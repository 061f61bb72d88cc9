package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

const conceptColumns = `concept_id, company_code, concept_name, concept_category, importance_score,
	development_stage, details, embedding, last_updated_from_doc, version, is_active, created_at, updated_at`

// FindActiveConcept returns the single active concept for companyCode named
// conceptName, or apperr.ErrNotFound if none exists. The partial unique
// index on (company_code, concept_name) WHERE is_active guarantees at most
// one row matches (§3).
func (s *ConceptStore) FindActiveConcept(ctx context.Context, companyCode, conceptName string) (*types.BusinessConcept, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+conceptColumns+`
		FROM business_concepts
		WHERE company_code = $1 AND concept_name = $2 AND is_active`,
		companyCode, conceptName)

	c, err := scanConcept(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	return c, nil
}

// ListActiveConcepts returns every active concept for companyCode, used by
// Fusion's full-concept-list loads and Vectorization's rebuild scans. An
// empty companyCode lists across every company, for C8's unfiltered runs.
func (s *ConceptStore) ListActiveConcepts(ctx context.Context, companyCode string) ([]types.BusinessConcept, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + conceptColumns + ` FROM business_concepts WHERE is_active`
	args := []any{}
	if companyCode != "" {
		query += ` AND company_code = $1`
		args = append(args, companyCode)
	}
	query += ` ORDER BY concept_name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	defer rows.Close()

	var out []types.BusinessConcept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrRepository, err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// InsertConcept creates a new active concept. On a unique-constraint
// violation (a concurrent archival won the race to create the same
// company_code+concept_name row) it returns apperr.ErrUniqueViolation so
// the caller (Fusion) can retry as an update, per §4.6.
func (s *ConceptStore) InsertConcept(ctx context.Context, c types.BusinessConcept) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	details, err := json.Marshal(c.Details)
	if err != nil {
		return "", fmt.Errorf("%w: marshal concept details: %v", apperr.ErrRepository, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO business_concepts (
			concept_id, company_code, concept_name, concept_category, importance_score,
			development_stage, details, embedding, last_updated_from_doc, version, is_active
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,true)`,
		c.ConceptID, c.CompanyCode, c.ConceptName, c.ConceptCategory.ChineseLabel(), c.ImportanceScore,
		c.DevelopmentStage, details, embeddingToSQL(c.Embedding), nullableUUID(c.LastUpdatedFromDocID))

	if err == nil {
		return c.ConceptID, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return "", apperr.ErrUniqueViolation
	}
	return "", fmt.Errorf("%w: insert concept: %v", apperr.ErrRepository, err)
}

// UpdateConcept applies an optimistic-locked update: the row is only
// written if its current version matches expectedVersion, and the
// persisted version is bumped by one. A RowsAffected of zero means the row
// was modified concurrently; callers should reload and retry per §4.6's
// 3-attempt/backoff schedule.
func (s *ConceptStore) UpdateConcept(ctx context.Context, c types.BusinessConcept, expectedVersion int) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	details, err := json.Marshal(c.Details)
	if err != nil {
		return fmt.Errorf("%w: marshal concept details: %v", apperr.ErrRepository, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE business_concepts SET
			concept_category = $1,
			importance_score = $2,
			development_stage = $3,
			details = $4,
			embedding = $5,
			last_updated_from_doc = $6,
			version = version + 1,
			updated_at = now()
		WHERE concept_id = $7 AND version = $8`,
		c.ConceptCategory.ChineseLabel(), c.ImportanceScore, c.DevelopmentStage, details,
		embeddingToSQL(c.Embedding), nullableUUID(c.LastUpdatedFromDocID), c.ConceptID, expectedVersion)
	if err != nil {
		return fmt.Errorf("%w: update concept: %v", apperr.ErrRepository, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	if affected == 0 {
		return &apperr.OptimisticLockError{ConceptID: c.ConceptID, ExpectedVersion: expectedVersion}
	}
	return nil
}

// UpdateEmbedding writes conceptID's embedding without bumping version:
// vectorization is not a content change under §4.6's fusion model.
func (s *ConceptStore) UpdateEmbedding(ctx context.Context, conceptID string, vector []float32) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE business_concepts SET embedding = $1 WHERE concept_id = $2`,
		embeddingToSQL(vector), conceptID)
	if err != nil {
		return fmt.Errorf("%w: update embedding: %v", apperr.ErrRepository, err)
	}
	return nil
}

// EmbeddingUpdate pairs a concept_id with its freshly computed vector for
// BatchUpdateEmbeddings.
type EmbeddingUpdate struct {
	ConceptID string
	Vector    []float32
}

// BatchUpdateEmbeddings writes many embeddings in one transaction, for
// Vectorization's batched writeback (§4.7).
func (s *ConceptStore) BatchUpdateEmbeddings(ctx context.Context, updates []EmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE business_concepts SET embedding = $1 WHERE concept_id = $2`)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	defer stmt.Close()

	for _, u := range updates {
		if _, err := stmt.ExecContext(ctx, embeddingToSQL(u.Vector), u.ConceptID); err != nil {
			return fmt.Errorf("%w: batch embedding update: %v", apperr.ErrRepository, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrRepository, err)
	}
	return nil
}

// GetConceptsByIDs batch-resolves concepts by id, for C9's justification
// step which needs each matched concept's source_sentences without a
// round-trip per concept. IDs with no matching active row are simply absent
// from the returned map.
func (s *ConceptStore) GetConceptsByIDs(ctx context.Context, conceptIDs []string) (map[string]*types.BusinessConcept, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out := make(map[string]*types.BusinessConcept, len(conceptIDs))
	if len(conceptIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conceptColumns+`
		FROM business_concepts WHERE concept_id = ANY($1)`, pq.Array(conceptIDs))
	if err != nil {
		return nil, fmt.Errorf("%w: get concepts by ids: %v", apperr.ErrRepository, err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrRepository, err)
		}
		out[c.ConceptID] = c
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConcept(row rowScanner) (*types.BusinessConcept, error) {
	var c types.BusinessConcept
	var category string
	var details []byte
	var embedding sql.NullString
	var lastDoc sql.NullString

	if err := row.Scan(&c.ConceptID, &c.CompanyCode, &c.ConceptName, &category, &c.ImportanceScore,
		&c.DevelopmentStage, &details, &embedding, &lastDoc, &c.Version, &c.IsActive,
		&c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}

	c.ConceptCategory = types.ConceptCategoryFromChinese(category)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &c.Details); err != nil {
			return nil, fmt.Errorf("unmarshal concept details: %w", err)
		}
	}
	if embedding.Valid {
		c.Embedding = parseEmbedding(embedding.String)
	}
	if lastDoc.Valid {
		c.LastUpdatedFromDocID = lastDoc.String
	}
	return &c, nil
}

func nullableUUID(id string) any {
	if id == "" {
		return nil
	}
	return id
}

// embeddingToSQL renders a []float32 as pgvector's literal text format,
// "[v1,v2,...]". A nil/empty vector is persisted as SQL NULL ("scheduled
// for vectorization").
func embeddingToSQL(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return embeddingToString(v)
}

func embeddingToString(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseEmbedding parses pgvector's "[v1,v2,...]" text representation back
// into a []float32.
func parseEmbedding(s string) []float32 {
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		f, _ := strconv.ParseFloat(strings.TrimSpace(p), 32)
		out[i] = float32(f)
	}
	return out
}
