package retrieval

import (
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// scoreDocuments implements §4.8 step 8: final_score = w1*rerank_score +
// w2*importance_score when a rerank_score is present, otherwise
// final_score = importance_score alone (the rerank stage was skipped or
// degraded). Sorts documents descending by final_score, breaking ties
// ascending by concept_id for determinism.
func scoreDocuments(documents []types.Document, rerankWeight, importanceWeight float64) {
	for i := range documents {
		d := &documents[i]
		if d.RerankScore != nil {
			d.FinalScore = rerankWeight*(*d.RerankScore) + importanceWeight*d.ImportanceScore
		} else {
			d.FinalScore = d.ImportanceScore
		}
	}
	insertionSortDesc(documents, func(a, b types.Document) bool {
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		return a.ConceptID < b.ConceptID
	})
}

// aggregateByCompany implements §4.8 step 9: group the scored documents by
// company_code, compute each company's relevance_score from its matched
// concepts' final_score per mode ("max" or "mean", default "max"), keep at
// most maxMatched matched concepts per company (the highest-scoring ones),
// and sort companies descending by relevance_score, ties ascending by
// company_code.
func aggregateByCompany(documents []types.Document, companyNames map[string]string, maxMatched int, mode string) []types.AggregatedCompany {
	order := make([]string, 0)
	byCompany := make(map[string][]types.Document)
	for _, d := range documents {
		if _, ok := byCompany[d.CompanyCode]; !ok {
			order = append(order, d.CompanyCode)
		}
		byCompany[d.CompanyCode] = append(byCompany[d.CompanyCode], d)
	}

	aggregated := make([]types.AggregatedCompany, 0, len(order))
	for _, code := range order {
		docs := byCompany[code]
		insertionSortDesc(docs, func(a, b types.Document) bool {
			if a.FinalScore != b.FinalScore {
				return a.FinalScore > b.FinalScore
			}
			return a.ConceptID < b.ConceptID
		})

		relevance := relevanceScore(docs, mode)

		kept := docs
		if maxMatched > 0 && len(kept) > maxMatched {
			kept = kept[:maxMatched]
		}
		matched := make([]types.MatchedConcept, len(kept))
		for i, d := range kept {
			matched[i] = types.MatchedConcept{
				ConceptID:       d.ConceptID,
				Name:            d.ConceptName,
				ConceptCategory: d.ConceptCategory,
				SimilarityScore: d.SimilarityScore,
				FinalScore:      d.FinalScore,
				SourceConceptID: d.SourceConceptID,
			}
		}

		aggregated = append(aggregated, types.AggregatedCompany{
			CompanyCode:     code,
			CompanyName:     companyNames[code],
			RelevanceScore:  relevance,
			MatchedConcepts: matched,
		})
	}

	insertionSortDesc(aggregated, func(a, b types.AggregatedCompany) bool {
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		return a.CompanyCode < b.CompanyCode
	})
	return aggregated
}

func relevanceScore(docs []types.Document, mode string) float64 {
	if len(docs) == 0 {
		return 0
	}
	if mode == config.AggregationModeMean {
		var sum float64
		for _, d := range docs {
			sum += d.FinalScore
		}
		return sum / float64(len(docs))
	}
	// default "max": docs is already sorted descending by final_score.
	return docs[0].FinalScore
}
