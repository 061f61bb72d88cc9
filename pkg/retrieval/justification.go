package retrieval

import (
	"context"
	"strconv"

	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// attachSourceSentences fetches every matched concept's master row in one
// batch and copies its source_sentences onto the corresponding
// MatchedConcept, so buildJustification has real evidence to draw from. A
// lookup failure is non-fatal: callers degrade to a summary-only
// justification.
func (s *Service) attachSourceSentences(ctx context.Context, companies []types.AggregatedCompany) error {
	ids := make([]string, 0)
	seen := make(map[string]struct{})
	for _, c := range companies {
		for _, m := range c.MatchedConcepts {
			if _, ok := seen[m.ConceptID]; !ok {
				seen[m.ConceptID] = struct{}{}
				ids = append(ids, m.ConceptID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	concepts, err := s.store.GetConceptsByIDs(ctx, ids)
	if err != nil {
		return err
	}

	for i := range companies {
		for j := range companies[i].MatchedConcepts {
			m := &companies[i].MatchedConcepts[j]
			if concept, ok := concepts[m.ConceptID]; ok {
				m.SourceSentences = concept.Details.SourceSentences
			}
		}
	}
	return nil
}

// buildResultCompanies implements §4.8 step 11/12: project the paginated
// AggregatedCompany slice onto the §6.1 wire shape, attaching a Justification
// only when includeJustification is set. The justification summary names
// the top matched concept; supporting evidence is capped at maxEvidence
// source sentences pulled from the matched concepts, in matched order.
func buildResultCompanies(companies []types.AggregatedCompany, includeJustification bool, maxEvidence int) []types.SearchResultCompany {
	results := make([]types.SearchResultCompany, len(companies))
	for i, c := range companies {
		views := make([]types.MatchedConceptView, len(c.MatchedConcepts))
		for j, m := range c.MatchedConcepts {
			views[j] = types.MatchedConceptView{Name: m.Name, SimilarityScore: m.SimilarityScore}
		}

		result := types.SearchResultCompany{
			CompanyName:     c.CompanyName,
			CompanyCode:     c.CompanyCode,
			RelevanceScore:  c.RelevanceScore,
			MatchedConcepts: views,
		}
		if includeJustification {
			result.Justification = buildJustification(c, maxEvidence)
		}
		results[i] = result
	}
	return results
}

func buildJustification(c types.AggregatedCompany, maxEvidence int) *types.Justification {
	if len(c.MatchedConcepts) == 0 {
		return &types.Justification{Summary: "matched on overall business concept similarity"}
	}

	top := c.MatchedConcepts[0]
	summary := c.CompanyName + " matches via \"" + top.Name + "\""
	if rest := len(c.MatchedConcepts) - 1; rest > 0 {
		summary += " and " + strconv.Itoa(rest) + " other concept(s)"
	}

	evidence := make([]string, 0, maxEvidence)
	for _, m := range c.MatchedConcepts {
		for _, s := range m.SourceSentences {
			if len(evidence) >= maxEvidence {
				break
			}
			evidence = append(evidence, s)
		}
		if len(evidence) >= maxEvidence {
			break
		}
	}

	return &types.Justification{Summary: summary, SupportingEvidence: evidence}
}
