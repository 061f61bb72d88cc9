package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ashareinsight/ashareinsight/pkg/types"
)

func TestMergeConceptKeepsLongerDescription(t *testing.T) {
	existing := types.BusinessConcept{
		Details: types.ConceptDetails{Description: "short"},
		Embedding: []float32{0.1},
	}
	incoming := types.BusinessConcept{
		Details: types.ConceptDetails{Description: "a much longer description"},
	}

	merged := mergeConcept(existing, incoming, time.Now())
	assert.Equal(t, "a much longer description", merged.Details.Description)
	assert.Nil(t, merged.Embedding, "embedding must be nulled on description change")
}

func TestMergeConceptKeepsEmbeddingWhenDescriptionUnchanged(t *testing.T) {
	existing := types.BusinessConcept{
		Details:   types.ConceptDetails{Description: "same text"},
		Embedding: []float32{0.1, 0.2},
	}
	incoming := types.BusinessConcept{
		Details: types.ConceptDetails{Description: "same"},
	}

	merged := mergeConcept(existing, incoming, time.Now())
	assert.Equal(t, "same text", merged.Details.Description)
	assert.Equal(t, []float32{0.1, 0.2}, merged.Embedding)
}

func TestMergeConceptUnionsRelationsWithoutDuplicates(t *testing.T) {
	existing := types.BusinessConcept{
		Details: types.ConceptDetails{Relations: types.ConceptRelations{Customers: []string{"A", "B"}}},
	}
	incoming := types.BusinessConcept{
		Details: types.ConceptDetails{Relations: types.ConceptRelations{Customers: []string{"B", "C"}}},
	}

	merged := mergeConcept(existing, incoming, time.Now())
	assert.Equal(t, []string{"A", "B", "C"}, merged.Details.Relations.Customers)
}

func TestMergeConceptKeepsOriginalEstablished(t *testing.T) {
	existing := types.BusinessConcept{
		Details: types.ConceptDetails{Timeline: types.ConceptTimeline{Established: "2010"}},
	}
	incoming := types.BusinessConcept{
		Details: types.ConceptDetails{Timeline: types.ConceptTimeline{Established: "2015"}},
	}

	merged := mergeConcept(existing, incoming, time.Now())
	assert.Equal(t, "2010", merged.Details.Timeline.Established)
}

func TestMergeConceptAppendsEvents(t *testing.T) {
	existing := types.BusinessConcept{
		Details: types.ConceptDetails{Timeline: types.ConceptTimeline{
			Events: []types.ConceptEvent{{Description: "launched product"}},
		}},
	}
	incoming := types.BusinessConcept{
		Details: types.ConceptDetails{Timeline: types.ConceptTimeline{
			Events: []types.ConceptEvent{{Description: "expanded to new market"}},
		}},
	}

	merged := mergeConcept(existing, incoming, time.Now())
	assert.Len(t, merged.Details.Timeline.Events, 2)
	assert.Equal(t, "expanded to new market", merged.Details.Timeline.Events[1].Description)
}

func TestMergeConceptCapsSourceSentencesAtTwenty(t *testing.T) {
	var existing []string
	for i := 0; i < 15; i++ {
		existing = append(existing, sentenceN(i))
	}
	var incoming []string
	for i := 15; i < 25; i++ {
		incoming = append(incoming, sentenceN(i))
	}

	merged := mergeConcept(
		types.BusinessConcept{Details: types.ConceptDetails{SourceSentences: existing}},
		types.BusinessConcept{Details: types.ConceptDetails{SourceSentences: incoming}},
		time.Now(),
	)

	assert.Len(t, merged.Details.SourceSentences, maxSourceSentences)
	assert.Equal(t, sentenceN(24), merged.Details.SourceSentences[len(merged.Details.SourceSentences)-1])
}

func sentenceN(i int) string {
	return "sentence " + string(rune('a'+i%26))
}
