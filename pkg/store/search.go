package store

import (
	"context"
	"fmt"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// SimilarityHit is one row of an ANN search result, carrying the matched
// concept's master-row fields (§4.1's search_similar contract). It holds no
// company display name; C9 resolves those through GetCompaniesByCodes.
type SimilarityHit struct {
	ConceptID       string
	CompanyCode     string
	ConceptName     string
	ConceptCategory types.ConceptCategory
	ImportanceScore float64
	SimilarityScore float64
}

// SearchSimilar returns the approximately-top-limit active concepts across
// every company by cosine similarity to queryVector, filtered to
// SimilarityScore >= threshold and ordered descending by similarity, per
// §4.1's search_similar contract. It deliberately does not scope to one
// company: C9's recall step searches the whole corpus and drops
// self-matches itself (§4.8 step 6).
func (s *ConceptStore) SearchSimilar(ctx context.Context, queryVector []float32, limit int, threshold float64) ([]SimilarityHit, error) {
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", apperr.ErrValidation)
	}

	query := func() ([]SimilarityHit, error) { return s.querySimilar(ctx, queryVector, limit, threshold) }
	if s.breaker == nil {
		return query()
	}
	return resilience.ExecuteCtx(s.breaker, query)
}

func (s *ConceptStore) querySimilar(ctx context.Context, queryVector []float32, limit int, threshold float64) ([]SimilarityHit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT concept_id, company_code, concept_name, concept_category, importance_score,
		       1 - (embedding <=> $1::vector) AS score
		FROM business_concepts
		WHERE is_active AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $1::vector) >= $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3`,
		embeddingToString(queryVector), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: search similar: %v", apperr.ErrRepository, err)
	}
	defer rows.Close()

	var hits []SimilarityHit
	for rows.Next() {
		var h SimilarityHit
		var category string
		if err := rows.Scan(&h.ConceptID, &h.CompanyCode, &h.ConceptName, &category, &h.ImportanceScore, &h.SimilarityScore); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrRepository, err)
		}
		h.ConceptCategory = types.ConceptCategoryFromChinese(category)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// BatchSearchSimilar runs SearchSimilar once per queryVector, for C9's
// parallel-recall step where a query company may have several source
// concepts each needing their own nearest-neighbor search. Implementations
// may parallelize or pipeline this (§4.1); this realization runs the
// queries sequentially against the shared pool and leaves the bounded
// concurrency fan-out to the caller (pkg/retrieval), which already
// coordinates a concurrency cap across stages per §5.
func (s *ConceptStore) BatchSearchSimilar(ctx context.Context, queryVectors [][]float32, limit int, threshold float64) ([][]SimilarityHit, error) {
	out := make([][]SimilarityHit, len(queryVectors))
	for i, vec := range queryVectors {
		hits, err := s.SearchSimilar(ctx, vec, limit, threshold)
		if err != nil {
			return nil, err
		}
		out[i] = hits
	}
	return out, nil
}
