// Package dto defines the wire shapes of the search API described in
// SPEC_FULL.md §6.1: the request body, the success payload, and the
// uniform error envelope. These are kept distinct from pkg/types' internal
// value objects so a change to json tags never touches C9's domain logic.
package dto

import "github.com/ashareinsight/ashareinsight/pkg/types"

// MarketFiltersRequest is the optional market_filters block of SearchRequest.
type MarketFiltersRequest struct {
	MaxMarketCapCNY  *int64 `json:"max_market_cap_cny,omitempty"`
	Min5DayAvgVolume *int64 `json:"min_5day_avg_volume,omitempty"`
}

// SearchRequest is the POST /api/v1/search/similar-companies body.
type SearchRequest struct {
	QueryIdentifier      string                `json:"query_identifier"`
	TopK                 int                   `json:"top_k,omitempty"`
	SimilarityThreshold  float64               `json:"similarity_threshold,omitempty"`
	MarketFilters        *MarketFiltersRequest `json:"market_filters,omitempty"`
	IncludeJustification bool                  `json:"include_justification,omitempty"`
}

// ToTypes converts the wire request into the internal SearchRequest used by
// pkg/retrieval.
func (r SearchRequest) ToTypes() types.SearchRequest {
	req := types.SearchRequest{
		QueryIdentifier:      r.QueryIdentifier,
		TopK:                 r.TopK,
		SimilarityThreshold:  r.SimilarityThreshold,
		IncludeJustification: r.IncludeJustification,
	}
	if r.MarketFilters != nil {
		req.MarketFilters = &types.MarketFilters{
			MaxMarketCapCNY:  r.MarketFilters.MaxMarketCapCNY,
			Min5DayAvgVolume: r.MarketFilters.Min5DayAvgVolume,
		}
	}
	return req
}

// QueryCompany is the query_company echo of SearchResponse.
type QueryCompany struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// FiltersApplied reports which market filters ended up effective.
type FiltersApplied struct {
	MaxMarketCapCNY  *int64 `json:"max_market_cap_cny,omitempty"`
	Min5DayAvgVolume *int64 `json:"min_5day_avg_volume,omitempty"`
}

// Metadata is the SearchResponse metadata block.
type Metadata struct {
	TotalResultsBeforeLimit int            `json:"total_results_before_limit"`
	FiltersApplied          FiltersApplied `json:"filters_applied"`
	Note                    string         `json:"note,omitempty"`
}

// MatchedConcept is one entry of a ResultCompany's matched_concepts array.
type MatchedConcept struct {
	Name            string  `json:"name"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Justification is the optional per-company evidence block.
type Justification struct {
	Summary            string   `json:"summary"`
	SupportingEvidence []string `json:"supporting_evidence,omitempty"`
}

// ResultCompany is one entry of SearchResponse's results array.
type ResultCompany struct {
	CompanyName     string           `json:"company_name"`
	CompanyCode     string           `json:"company_code"`
	RelevanceScore  float64          `json:"relevance_score"`
	MatchedConcepts []MatchedConcept `json:"matched_concepts"`
	Justification   *Justification   `json:"justification,omitempty"`
}

// SearchResponse is the full §6.1 success payload.
type SearchResponse struct {
	QueryCompany QueryCompany    `json:"query_company"`
	Metadata     Metadata        `json:"metadata"`
	Results      []ResultCompany `json:"results"`
}

// FromTypes projects the internal SearchResponse onto the wire shape.
func FromTypes(resp types.SearchResponse) SearchResponse {
	results := make([]ResultCompany, len(resp.Results))
	for i, r := range resp.Results {
		concepts := make([]MatchedConcept, len(r.MatchedConcepts))
		for j, m := range r.MatchedConcepts {
			concepts[j] = MatchedConcept{Name: m.Name, SimilarityScore: m.SimilarityScore}
		}
		results[i] = ResultCompany{
			CompanyName:     r.CompanyName,
			CompanyCode:     r.CompanyCode,
			RelevanceScore:  r.RelevanceScore,
			MatchedConcepts: concepts,
		}
		if r.Justification != nil {
			results[i].Justification = &Justification{
				Summary:            r.Justification.Summary,
				SupportingEvidence: r.Justification.SupportingEvidence,
			}
		}
	}

	return SearchResponse{
		QueryCompany: QueryCompany{Name: resp.QueryCompany.Name, Code: resp.QueryCompany.Code},
		Metadata: Metadata{
			TotalResultsBeforeLimit: resp.Metadata.TotalResultsBeforeLimit,
			FiltersApplied: FiltersApplied{
				MaxMarketCapCNY:  resp.Metadata.FiltersApplied.MaxMarketCapCNY,
				Min5DayAvgVolume: resp.Metadata.FiltersApplied.Min5DayAvgVolume,
			},
			Note: resp.Metadata.Note,
		},
		Results: results,
	}
}

// ErrorBody is the payload of the §7 uniform error envelope.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// ErrorEnvelope wraps ErrorBody under the "error" key, per §7.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}
