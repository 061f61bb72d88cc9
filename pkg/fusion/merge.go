// Package fusion implements C7: merging extracted concepts into a
// company's master concept set under the field-level rules of §4.6. The
// merge itself is a pure function, unit-testable without a database;
// Service wraps it with the optimistic-lock retry loop and the
// insert-race fallback-to-update path.
package fusion

import (
	"time"

	"github.com/ashareinsight/ashareinsight/pkg/types"
)

const maxSourceSentences = 20

// mergeConcept applies the §4.6 field-level fusion table to produce the
// next version of existing, incorporating incoming. existing.Version is
// NOT bumped here; the caller bumps it at the conditional UPDATE.
func mergeConcept(existing, incoming types.BusinessConcept, now time.Time) types.BusinessConcept {
	merged := existing

	merged.ConceptCategory = incoming.ConceptCategory
	merged.ImportanceScore = incoming.ImportanceScore
	merged.DevelopmentStage = incoming.DevelopmentStage

	descriptionChanged := longer(existing.Details.Description, incoming.Details.Description) != existing.Details.Description
	merged.Details.Description = longer(existing.Details.Description, incoming.Details.Description)

	merged.Details.Metrics = incoming.Details.Metrics

	merged.Details.Timeline.Established = existing.Details.Timeline.Established
	if merged.Details.Timeline.Established == "" {
		merged.Details.Timeline.Established = incoming.Details.Timeline.Established
	}
	merged.Details.Timeline.Events = appendEvents(existing.Details.Timeline.Events, incoming.Details.Timeline.Events, now)

	merged.Details.Relations.Customers = unionDedup(existing.Details.Relations.Customers, incoming.Details.Relations.Customers)
	merged.Details.Relations.Partners = unionDedup(existing.Details.Relations.Partners, incoming.Details.Relations.Partners)
	merged.Details.Relations.Subsidiaries = unionDedup(existing.Details.Relations.Subsidiaries, incoming.Details.Relations.Subsidiaries)

	merged.Details.SourceSentences = capNewest(unionDedup(existing.Details.SourceSentences, incoming.Details.SourceSentences), maxSourceSentences)

	merged.LastUpdatedFromDocID = incoming.LastUpdatedFromDocID

	// §9 Open Question resolution: null the embedding on ANY description
	// change, not only a "meaningful" one (see DESIGN.md).
	if descriptionChanged {
		merged.Embedding = nil
	}

	return merged
}

// newConceptFromExtraction builds the initial master record for a concept
// with no existing match: embedding left nil, scheduling vectorization.
func newConceptFromExtraction(companyCode, conceptID string, extracted types.ConceptExtraction, docID string) types.BusinessConcept {
	return types.BusinessConcept{
		ConceptID:            conceptID,
		CompanyCode:          companyCode,
		ConceptName:          extracted.ConceptName,
		ConceptCategory:      extracted.ConceptCategory,
		ImportanceScore:      extracted.ImportanceScore,
		DevelopmentStage:     extracted.DevelopmentStage,
		Details:              extracted.Details,
		Embedding:            nil,
		LastUpdatedFromDocID: docID,
		Version:              1,
		IsActive:             true,
	}
}

func longer(a, b string) string {
	if len(b) > len(a) {
		return b
	}
	return a
}

func appendEvents(existing, incoming []types.ConceptEvent, now time.Time) []types.ConceptEvent {
	if len(incoming) == 0 {
		return existing
	}
	out := make([]types.ConceptEvent, len(existing), len(existing)+len(incoming))
	copy(out, existing)
	for _, e := range incoming {
		if e.Date.IsZero() {
			e.Date = now
		}
		out = append(out, e)
	}
	return out
}

func unionDedup(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, v := range existing {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, v := range incoming {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// capNewest keeps at most n entries, preferring the ones appended last
// (closest to the end of the slice, i.e. newest under unionDedup's
// append-incoming-last ordering).
func capNewest(sentences []string, n int) []string {
	if len(sentences) <= n {
		return sentences
	}
	return sentences[len(sentences)-n:]
}
