package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/rerank"
	"github.com/ashareinsight/ashareinsight/pkg/store"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

type fakeStore struct {
	companies      map[string]*types.Company
	sourceConcepts map[string][]types.BusinessConcept
	hits           map[string][]store.SimilarityHit
	concepts       map[string]*types.BusinessConcept
}

func (f *fakeStore) GetCompany(_ context.Context, identifier string) (*types.Company, error) {
	if c, ok := f.companies[identifier]; ok {
		return c, nil
	}
	return nil, assert.AnError
}

func (f *fakeStore) ListActiveConcepts(_ context.Context, companyCode string) ([]types.BusinessConcept, error) {
	return f.sourceConcepts[companyCode], nil
}

func (f *fakeStore) SearchSimilar(_ context.Context, queryVector []float32, limit int, threshold float64) ([]store.SimilarityHit, error) {
	key := embeddingKey(queryVector)
	return f.hits[key], nil
}

func (f *fakeStore) GetCompaniesByCodes(_ context.Context, codes []string) (map[string]*types.Company, error) {
	out := make(map[string]*types.Company)
	for _, code := range codes {
		if c, ok := f.companies[code]; ok {
			out[code] = c
		}
	}
	return out, nil
}

func (f *fakeStore) GetConceptsByIDs(_ context.Context, conceptIDs []string) (map[string]*types.BusinessConcept, error) {
	out := make(map[string]*types.BusinessConcept)
	for _, id := range conceptIDs {
		if c, ok := f.concepts[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func embeddingKey(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	return string(rune(int(v[0] * 1000)))
}

type fakeMarketStore struct {
	current map[string]*types.MarketDataCurrent
}

func (f *fakeMarketStore) GetCurrentBatch(_ context.Context, codes []string) (map[string]*types.MarketDataCurrent, error) {
	return f.current, nil
}

type fakeReranker struct {
	results []rerank.Result
	err     error
}

func (f *fakeReranker) Rank(_ context.Context, _ string, _ []string, _ int) ([]rerank.Result, error) {
	return f.results, f.err
}

func TestSearch_NoSourceConcepts(t *testing.T) {
	queryCode := "300257"
	st := &fakeStore{
		companies:      map[string]*types.Company{queryCode: {CompanyCode: queryCode, ShortName: "QueryCo"}},
		sourceConcepts: map[string][]types.BusinessConcept{},
	}
	svc := New(Deps{Store: st}, config.RetrievalConfig{}, nil)

	resp, err := svc.Search(context.Background(), types.SearchRequest{QueryIdentifier: queryCode})
	require.NoError(t, err)
	assert.Equal(t, "QueryCo", resp.QueryCompany.Name)
	assert.Empty(t, resp.Results)
	assert.NotEmpty(t, resp.Metadata.Note)
}

func TestSearch_CompanyNotFound(t *testing.T) {
	st := &fakeStore{companies: map[string]*types.Company{}}
	svc := New(Deps{Store: st}, config.RetrievalConfig{}, nil)

	_, err := svc.Search(context.Background(), types.SearchRequest{QueryIdentifier: "unknown"})
	require.Error(t, err)
}

func TestSearch_RecallDedupAndScore(t *testing.T) {
	queryCode := "300257"
	matchCode := "000001"
	sourceConceptEmbedding := []float32{0.5, 0.1}
	sourceConcept := types.BusinessConcept{
		ConceptID:   "src-1",
		CompanyCode: queryCode,
		ConceptName: "螺杆空气压缩机",
		Embedding:   sourceConceptEmbedding,
	}

	hit := store.SimilarityHit{
		ConceptID:       "match-1",
		CompanyCode:     matchCode,
		ConceptName:     "磁悬浮鼓风机",
		ConceptCategory: types.ConceptCategoryCore,
		ImportanceScore: 0.8,
		SimilarityScore: 0.9,
	}

	st := &fakeStore{
		companies: map[string]*types.Company{
			queryCode: {CompanyCode: queryCode, ShortName: "QueryCo"},
			matchCode: {CompanyCode: matchCode, ShortName: "MatchCo"},
		},
		sourceConcepts: map[string][]types.BusinessConcept{queryCode: {sourceConcept}},
		hits:           map[string][]store.SimilarityHit{embeddingKey(sourceConceptEmbedding): {hit}},
		concepts:       map[string]*types.BusinessConcept{},
	}

	svc := New(Deps{Store: st}, config.RetrievalConfig{RerankWeight: 0.7, ImportanceWeight: 0.3}, nil)

	resp, err := svc.Search(context.Background(), types.SearchRequest{QueryIdentifier: queryCode, TopK: 10})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "MatchCo", resp.Results[0].CompanyName)
	assert.InDelta(t, 0.8, resp.Results[0].RelevanceScore, 1e-9)
}

func TestDedupHits_KeepsMaxSimilarity(t *testing.T) {
	docs := []types.Document{
		{ConceptID: "a", SimilarityScore: 0.5},
		{ConceptID: "a", SimilarityScore: 0.9},
		{ConceptID: "b", SimilarityScore: 0.3},
	}
	out := dedupHits(docs)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ConceptID)
	assert.InDelta(t, 0.9, out[0].SimilarityScore, 1e-9)
}

func TestDropSelfMatches(t *testing.T) {
	docs := []types.Document{
		{ConceptID: "a", CompanyCode: "300257"},
		{ConceptID: "b", CompanyCode: "000001"},
	}
	out := dropSelfMatches(docs, "300257")
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ConceptID)
}

func TestScoreDocuments_FallsBackToImportanceWithoutRerank(t *testing.T) {
	docs := []types.Document{{ConceptID: "a", ImportanceScore: 0.4}}
	scoreDocuments(docs, 0.7, 0.3)
	assert.InDelta(t, 0.4, docs[0].FinalScore, 1e-9)
}

func TestScoreDocuments_UsesRerankWhenPresent(t *testing.T) {
	rerankScore := 0.9
	docs := []types.Document{{ConceptID: "a", ImportanceScore: 0.4, RerankScore: &rerankScore}}
	scoreDocuments(docs, 0.7, 0.3)
	assert.InDelta(t, 0.7*0.9+0.3*0.4, docs[0].FinalScore, 1e-9)
}

func TestAggregateByCompany_MaxMode(t *testing.T) {
	docs := []types.Document{
		{ConceptID: "a", CompanyCode: "000001", FinalScore: 0.9},
		{ConceptID: "b", CompanyCode: "000001", FinalScore: 0.5},
	}
	out := aggregateByCompany(docs, map[string]string{"000001": "MatchCo"}, 5, config.AggregationModeMax)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.9, out[0].RelevanceScore, 1e-9)
	assert.Len(t, out[0].MatchedConcepts, 2)
}

func TestAggregateByCompany_MeanMode(t *testing.T) {
	docs := []types.Document{
		{ConceptID: "a", CompanyCode: "000001", FinalScore: 0.9},
		{ConceptID: "b", CompanyCode: "000001", FinalScore: 0.5},
	}
	out := aggregateByCompany(docs, map[string]string{"000001": "MatchCo"}, 5, config.AggregationModeMean)
	require.Len(t, out, 1)
	assert.InDelta(t, 0.7, out[0].RelevanceScore, 1e-9)
}
