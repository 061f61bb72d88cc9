package types

import "time"

// ConceptCategory is the typed enum for BusinessConcept.ConceptCategory. The
// Chinese labels are the persistence-boundary representation (matching the
// original schema's CHECK constraint); English values are this package's
// API surface.
type ConceptCategory string

const (
	ConceptCategoryCore       ConceptCategory = "core"
	ConceptCategoryEmerging   ConceptCategory = "emerging"
	ConceptCategoryStrategic  ConceptCategory = "strategic"
)

// chineseLabel returns the persisted Chinese label for a category.
func (c ConceptCategory) chineseLabel() string {
	switch c {
	case ConceptCategoryCore:
		return "核心业务"
	case ConceptCategoryEmerging:
		return "新兴业务"
	case ConceptCategoryStrategic:
		return "战略布局"
	default:
		return string(c)
	}
}

// ConceptCategoryFromChinese maps a persisted Chinese label back to the enum.
func ConceptCategoryFromChinese(label string) ConceptCategory {
	switch label {
	case "核心业务":
		return ConceptCategoryCore
	case "新兴业务":
		return ConceptCategoryEmerging
	case "战略布局":
		return ConceptCategoryStrategic
	default:
		return ConceptCategory(label)
	}
}

// ChineseLabel exposes the persistence-boundary label for storage adapters.
func (c ConceptCategory) ChineseLabel() string { return c.chineseLabel() }

// ConceptEvent is one entry in Timeline.Events, accrued by Fusion on every
// archival that reports a new recent_event.
type ConceptEvent struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
}

// ConceptTimeline holds the established-fact and accrued-event fields of
// BusinessConcept.Details. Established is kept on first-write ("keep
// original if set"); Events accrues ("append... with today's date").
type ConceptTimeline struct {
	Established string         `json:"established,omitempty"`
	Events       []ConceptEvent `json:"events,omitempty"`
}

// ConceptMetrics is a point-in-time snapshot overwritten wholesale by
// Fusion on every archival (rule: "overwrite as a whole").
type ConceptMetrics struct {
	Revenue      string `json:"revenue,omitempty"`
	RevenueGrowth string `json:"revenue_growth,omitempty"`
	GrossMargin  string `json:"gross_margin,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// ConceptRelations holds the three cumulative set-union relation lists.
type ConceptRelations struct {
	Customers    []string `json:"customers,omitempty"`
	Partners     []string `json:"partners,omitempty"`
	Subsidiaries []string `json:"subsidiaries,omitempty"`
}

// ConceptDetails is the tagged-variant realization of BusinessConcept's
// nested JSON blob (§9, "model as a tagged variant... serialize as opaque
// JSON... do not reach into the JSON during fusion"). Fusion operates on
// this typed tree and the store serializes it to/from a JSONB column.
type ConceptDetails struct {
	Description      string           `json:"description,omitempty"`
	Timeline         ConceptTimeline  `json:"timeline,omitempty"`
	Metrics          ConceptMetrics   `json:"metrics,omitempty"`
	Relations        ConceptRelations `json:"relations,omitempty"`
	SourceSentences  []string         `json:"source_sentences,omitempty"`
}

// BusinessConcept is a company's master record of one coherent business
// line, product family, or strategic theme. See spec §3/§4.1/§4.6.
type BusinessConcept struct {
	ConceptID             string
	CompanyCode           string
	ConceptName           string
	ConceptCategory       ConceptCategory
	ImportanceScore       float64
	DevelopmentStage      string
	Details               ConceptDetails
	Embedding             []float32 // nil means "scheduled for vectorization"
	LastUpdatedFromDocID  string
	Version               int
	IsActive              bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NeedsVectorization reports whether this concept has no embedding and must
// be picked up by the vectorization use-case (C8).
func (c *BusinessConcept) NeedsVectorization() bool {
	return len(c.Embedding) == 0
}

// EmbeddingText produces the deterministic vectorization input per §4.7:
// "{concept_name}: {description}" with whitespace collapsed and length
// capped at T characters pre-tokenization.
func (c *BusinessConcept) EmbeddingText(maxChars int) string {
	return BuildEmbeddingText(c.ConceptName, c.Details.Description, maxChars)
}

// ConceptRelation is an append-only knowledge-graph edge out of a concept,
// kept for the optional graph view described in §3.
type ConceptRelation struct {
	SourceConceptID  string
	TargetEntityType string
	TargetEntityName string
	CreatedAt        time.Time
}
