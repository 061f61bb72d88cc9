package retrieval

import (
	"context"
	"log/slog"

	"github.com/ashareinsight/ashareinsight/pkg/rerank"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
	"github.com/ashareinsight/ashareinsight/pkg/store"
	"github.com/ashareinsight/ashareinsight/pkg/types"
	"github.com/ashareinsight/ashareinsight/pkg/utils"
)

// recall runs §4.8 step 4: for every source concept that has a usable
// embedding, issue search_similar in parallel (bounded by
// cfg.RecallConcurrency) and decorate every hit with the source_concept_id
// that recalled it. Concepts still awaiting vectorization (embedding ==
// nil) contribute no recall task, per §4.1's NULL-means-scheduled contract.
func (s *Service) recall(ctx context.Context, sourceConcepts []types.BusinessConcept, threshold float64) []types.Document {
	var withEmbedding []types.BusinessConcept
	for _, c := range sourceConcepts {
		if !c.NeedsVectorization() {
			withEmbedding = append(withEmbedding, c)
		}
	}
	if len(withEmbedding) == 0 {
		return nil
	}

	tasks := make([]func() ([]types.Document, error), len(withEmbedding))
	for i, c := range withEmbedding {
		c := c
		tasks[i] = func() ([]types.Document, error) {
			raw, err := s.store.SearchSimilar(ctx, c.Embedding, s.cfg.RecallLimit, threshold)
			if err != nil {
				return nil, err
			}
			return decorateHits(raw, c.ConceptID), nil
		}
	}

	results, errs := utils.ExecuteWithResults(ctx, s.cfg.RecallConcurrency, tasks...)

	var documents []types.Document
	for i, err := range errs {
		if err != nil {
			s.log.Warn("vector recall failed for source concept, continuing with remaining concepts",
				"source_concept_id", withEmbedding[i].ConceptID, "error", err)
			continue
		}
		documents = append(documents, results[i]...)
	}
	return documents
}

func decorateHits(hits []store.SimilarityHit, sourceConceptID string) []types.Document {
	out := make([]types.Document, len(hits))
	for i, h := range hits {
		out[i] = types.Document{
			ConceptID:       h.ConceptID,
			CompanyCode:     h.CompanyCode,
			ConceptName:     h.ConceptName,
			ConceptCategory: h.ConceptCategory,
			ImportanceScore: h.ImportanceScore,
			SimilarityScore: h.SimilarityScore,
			SourceConceptID: sourceConceptID,
		}
	}
	return out
}

// dedupHits implements §4.8 step 5: collapse recall hits by concept_id,
// keeping the maximum similarity_score (and the source_concept_id that
// produced it). Ordering after dedup is by descending similarity.
func dedupHits(documents []types.Document) []types.Document {
	best := make(map[string]types.Document, len(documents))
	order := make([]string, 0, len(documents))
	for _, d := range documents {
		existing, ok := best[d.ConceptID]
		if !ok {
			best[d.ConceptID] = d
			order = append(order, d.ConceptID)
			continue
		}
		if d.SimilarityScore > existing.SimilarityScore {
			best[d.ConceptID] = d
		}
	}

	out := make([]types.Document, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	sortDocumentsBySimilarityDesc(out)
	return out
}

func sortDocumentsBySimilarityDesc(docs []types.Document) {
	insertionSortDesc(docs, func(a, b types.Document) bool { return a.SimilarityScore > b.SimilarityScore })
}

// insertionSortDesc is a small stable sort used across this package for the
// handful of ranking steps (§4.8 steps 5, 8, 9); the candidate lists here
// are bounded (recall_limit * source-concept-count, in the low hundreds),
// so O(n^2) is not a concern and keeps the comparator inlined at call sites
// simple to read.
func insertionSortDesc[T any](items []T, less func(a, b T) bool) {
	for i := 1; i < len(items); i++ {
		j := i
		for j > 0 && less(items[j], items[j-1]) {
			items[j], items[j-1] = items[j-1], items[j]
			j--
		}
	}
}

// dropSelfMatches implements §4.8 step 6.
func dropSelfMatches(documents []types.Document, queryCompanyCode string) []types.Document {
	out := documents[:0:0]
	for _, d := range documents {
		if d.CompanyCode != queryCompanyCode {
			out = append(out, d)
		}
	}
	return out
}

// maybeRerank implements §4.8 step 7. On any failure (validation, transport,
// open breaker) it logs and returns documents unmodified, preserving the
// original recall order — graceful degradation is a first-class behavior,
// not an error (§4.4).
func (s *Service) maybeRerank(ctx context.Context, documents []types.Document, sourceConcepts []types.BusinessConcept, log *slog.Logger) []types.Document {
	if s.reranker == nil || len(documents) == 0 {
		return documents
	}

	queryText := buildRerankQueryText(sourceConcepts)
	docTexts := make([]string, len(documents))
	for i, d := range documents {
		docTexts[i] = d.ConceptName
	}

	raw, err := s.rankWithBreaker(ctx, queryText, docTexts, len(docTexts))
	if err != nil {
		log.Warn("rerank unavailable, proceeding with unreranked recall order", "error", err)
		return documents
	}

	if len(raw) != len(documents) {
		log.Warn("rerank returned unexpected length, degrading to unreranked order",
			"expected", len(documents), "got", len(raw))
		return documents
	}

	reordered := make([]types.Document, 0, len(raw))
	for _, r := range raw {
		if r.Index < 0 || r.Index >= len(documents) {
			log.Warn("rerank returned out-of-range index, degrading to unreranked order")
			return documents
		}
		d := documents[r.Index]
		score := r.Score
		d.RerankScore = &score
		reordered = append(reordered, d)
	}
	return reordered
}

// rankWithBreaker calls the reranker through its circuit breaker when one is
// configured, so a failing rerank provider trips like any other external
// dependency (§4.10) instead of being retried inline by C9.
func (s *Service) rankWithBreaker(ctx context.Context, query string, documents []string, topK int) ([]rerank.Result, error) {
	if s.rerankBreaker == nil {
		return s.reranker.Rank(ctx, query, documents, topK)
	}
	return resilience.ExecuteCtx(s.rerankBreaker, func() ([]rerank.Result, error) {
		return s.reranker.Rank(ctx, query, documents, topK)
	})
}

// buildRerankQueryText derives the rerank query from the query company's
// most-important source concept, per §4.8 step 7.
func buildRerankQueryText(sourceConcepts []types.BusinessConcept) string {
	if len(sourceConcepts) == 0 {
		return ""
	}
	best := sourceConcepts[0]
	for _, c := range sourceConcepts[1:] {
		if c.ImportanceScore > best.ImportanceScore {
			best = c
		}
	}
	return best.ConceptName + best.Details.Description
}
