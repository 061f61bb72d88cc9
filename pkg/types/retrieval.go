package types

// Document is one matched business concept surfaced during online
// retrieval (§3, "retrieval value object"). It is ephemeral per request.
type Document struct {
	ConceptID        string
	CompanyCode      string
	CompanyName      string
	ConceptName      string
	ConceptCategory  ConceptCategory
	ImportanceScore  float64
	SimilarityScore  float64
	RerankScore      *float64
	FinalScore       float64
	SourceConceptID  string
}

// MatchedConcept is the top-N-per-company slice of a Document kept by an
// AggregatedCompany, trimmed to what the §6.1 response shape needs plus the
// provenance fields §4.8 step 9 requires internally.
type MatchedConcept struct {
	ConceptID       string
	Name            string
	ConceptCategory ConceptCategory
	SimilarityScore float64
	FinalScore      float64
	SourceConceptID string
	SourceSentences []string
}

// AggregatedCompany is the per-company rollup built during retrieval (§3,
// §4.8 step 9).
type AggregatedCompany struct {
	CompanyCode     string
	CompanyName     string
	RelevanceScore  float64
	MatchedConcepts []MatchedConcept
	// MarketRankScore is C10's §4.9 tiered L = X*(S+V) score, set only when
	// the market filter ran. It orders the final result list but is never
	// itself returned as relevance_score, which stays in 0..1 per §6.1/§8.
	MarketRankScore float64
}

// Justification is the optional per-company evidence summary of §4.8 step 12.
type Justification struct {
	Summary            string
	SupportingEvidence []string
}

// SearchRequest is the decoded form of the §6.1 POST body plus its query param.
type SearchRequest struct {
	QueryIdentifier      string
	TopK                 int
	SimilarityThreshold  float64
	MarketFilters        *MarketFilters
	IncludeJustification bool
}

// FiltersApplied records exactly which filters ended up effective, per §4.8 step 10.
type FiltersApplied struct {
	MaxMarketCapCNY      *int64 `json:"max_market_cap_cny,omitempty"`
	Min5DayAvgVolume     *int64 `json:"min_5day_avg_volume,omitempty"`
	MarketFilterRequested bool  `json:"-"`
	MarketFilterApplied   bool  `json:"-"`
}

// SearchMetadata is the §6.1 response metadata block.
type SearchMetadata struct {
	TotalResultsBeforeLimit int
	FiltersApplied          FiltersApplied
	Note                    string
}

// SearchResultCompany is one entry of the §6.1 results array.
type SearchResultCompany struct {
	CompanyName     string
	CompanyCode     string
	RelevanceScore  float64
	MatchedConcepts []MatchedConceptView
	Justification   *Justification
}

// MatchedConceptView is the §6.1 wire shape for a matched concept.
type MatchedConceptView struct {
	Name            string
	SimilarityScore float64
}

// SearchResponse is the full §6.1 success payload.
type SearchResponse struct {
	QueryCompany QueryCompanyView
	Metadata     SearchMetadata
	Results      []SearchResultCompany
}

// QueryCompanyView is the §6.1 query_company echo.
type QueryCompanyView struct {
	Name string
	Code string
}

// contextKey is a private type so this package's context keys never collide
// with keys set by other packages.
type contextKey string

const (
	// ContextKeyRequestID carries the per-request correlation id attached by
	// the HTTP layer and echoed in the §6.1 error envelope.
	ContextKeyRequestID contextKey = "request_id"
	// ContextKeyCompanyCode carries the company code under operation, for
	// structured logging during archival/fusion/vectorization.
	ContextKeyCompanyCode contextKey = "company_code"
	// ContextKeyDocID carries the document id under operation.
	ContextKeyDocID contextKey = "doc_id"
)
