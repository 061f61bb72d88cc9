// Package retrieval implements C9: the online search-then-rerank-then-filter
// pipeline described in SPEC_FULL.md §4.8. Service.Search runs the thirteen
// numbered steps of that section in order: resolve the query company, fetch
// its source concepts, probe the cache, fan out parallel vector recall,
// dedup, drop self-matches, optionally rerank, score, aggregate by company,
// apply the market filter, paginate, attach justification, and cache the
// result.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/cache"
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/marketfilter"
	"github.com/ashareinsight/ashareinsight/pkg/rerank"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
	"github.com/ashareinsight/ashareinsight/pkg/store"
	"github.com/ashareinsight/ashareinsight/pkg/types"
	"github.com/ashareinsight/ashareinsight/pkg/utils"
)

// conceptStore is the subset of *store.ConceptStore Service depends on.
type conceptStore interface {
	GetCompany(ctx context.Context, identifier string) (*types.Company, error)
	ListActiveConcepts(ctx context.Context, companyCode string) ([]types.BusinessConcept, error)
	SearchSimilar(ctx context.Context, queryVector []float32, limit int, threshold float64) ([]store.SimilarityHit, error)
	GetCompaniesByCodes(ctx context.Context, codes []string) (map[string]*types.Company, error)
	GetConceptsByIDs(ctx context.Context, conceptIDs []string) (map[string]*types.BusinessConcept, error)
}

// marketStore is the subset of *market.Store Service depends on.
type marketStore interface {
	GetCurrentBatch(ctx context.Context, codes []string) (map[string]*types.MarketDataCurrent, error)
}

// reranker is the subset of rerank.Client Service depends on. A nil
// reranker (or one behind an open breaker) means C9 proceeds unreranked,
// per §4.4's degradation policy.
type reranker interface {
	Rank(ctx context.Context, query string, documents []string, topK int) ([]rerank.Result, error)
}

// Service orchestrates the C9 pipeline.
type Service struct {
	store         conceptStore
	market        marketStore
	reranker      reranker
	rerankBreaker *resilience.Breaker
	filter        *marketfilter.Service
	cache         *cache.Cache[string, types.SearchResponse]
	cacheTTL      time.Duration
	cfg           config.RetrievalConfig
	log           *slog.Logger
}

// Deps bundles Service's collaborators; any of Reranker/RerankBreaker/Cache
// may be nil to disable that optional stage.
type Deps struct {
	Store         conceptStore
	Market        marketStore
	Reranker      reranker
	RerankBreaker *resilience.Breaker
	Filter        *marketfilter.Service
	Cache         *cache.Cache[string, types.SearchResponse]
	CacheTTL      time.Duration
}

// New builds a Service from cfg and deps, applying §4.8's defaults for any
// zero-valued tunable. log may be nil, in which case slog.Default is used.
func New(deps Deps, cfg config.RetrievalConfig, log *slog.Logger) *Service {
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = 20
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = 100
	}
	if cfg.RecallLimit <= 0 {
		cfg.RecallLimit = 50
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = 0.7
	}
	if cfg.RecallConcurrency <= 0 {
		cfg.RecallConcurrency = utils.DefaultSemaphoreLimit
	}
	if cfg.RerankWeight == 0 && cfg.ImportanceWeight == 0 {
		cfg.RerankWeight, cfg.ImportanceWeight = 0.7, 0.3
	}
	if cfg.MaxMatchedConcepts <= 0 {
		cfg.MaxMatchedConcepts = 5
	}
	if cfg.JustificationMaxEvidence <= 0 {
		cfg.JustificationMaxEvidence = 3
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:         deps.Store,
		market:        deps.Market,
		reranker:      deps.Reranker,
		rerankBreaker: deps.RerankBreaker,
		filter:        deps.Filter,
		cache:         deps.Cache,
		cacheTTL:      deps.CacheTTL,
		cfg:           cfg,
		log:           log,
	}
}

// Search runs the full §4.8 pipeline for req.
func (s *Service) Search(ctx context.Context, req types.SearchRequest) (types.SearchResponse, error) {
	req = applyRequestDefaults(req, s.cfg)
	log := s.log.With("query_identifier", req.QueryIdentifier)

	// Step 1: resolve query company.
	queryCompany, err := s.store.GetCompany(ctx, req.QueryIdentifier)
	if err != nil {
		if errors.Is(err, apperr.ErrCompanyNotFound) || errors.Is(err, apperr.ErrNotFound) {
			return types.SearchResponse{}, fmt.Errorf("%w: %q", apperr.ErrCompanyNotFound, req.QueryIdentifier)
		}
		return types.SearchResponse{}, fmt.Errorf("resolve query company: %w", err)
	}
	queryView := types.QueryCompanyView{Name: queryCompany.DisplayName(), Code: queryCompany.CompanyCode}

	// Step 2: fetch source concepts.
	sourceConcepts, err := s.store.ListActiveConcepts(ctx, queryCompany.CompanyCode)
	if err != nil {
		return types.SearchResponse{}, fmt.Errorf("list source concepts: %w", err)
	}
	if len(sourceConcepts) == 0 {
		return types.SearchResponse{
			QueryCompany: queryView,
			Metadata: types.SearchMetadata{
				Note: "query company has no active business concepts on file",
			},
			Results: []types.SearchResultCompany{},
		}, nil
	}

	// Step 3: cache probe.
	cacheKey := buildCacheKey(req)
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			log.Debug("retrieval cache hit", "cache_key", cacheKey)
			return cached, nil
		}
	}

	// Step 4: parallel vector recall, one fan-out task per embedded source concept.
	hits := s.recall(ctx, sourceConcepts, req.SimilarityThreshold)

	// Step 5: dedup by concept_id, keeping max similarity.
	documents := dedupHits(hits)

	// Step 6: drop self-matches.
	documents = dropSelfMatches(documents, queryCompany.CompanyCode)

	// Step 7: optional rerank.
	documents = s.maybeRerank(ctx, documents, sourceConcepts, log)

	// Step 8: final per-concept score, sorted descending (concept_id tiebreak).
	scoreDocuments(documents, s.cfg.RerankWeight, s.cfg.ImportanceWeight)

	// Step 9: aggregate by company.
	companyNames, err := s.companyNames(ctx, documents)
	if err != nil {
		return types.SearchResponse{}, fmt.Errorf("resolve matched company names: %w", err)
	}
	aggregated := aggregateByCompany(documents, companyNames, s.cfg.MaxMatchedConcepts, s.cfg.AggregationMode)

	// Step 10: market filter.
	filtersApplied, filtered := s.applyMarketFilter(ctx, aggregated, req.MarketFilters, log)

	// Step 11: pagination. total_results_before_limit counts companies after
	// filtering, before top-K truncation (§9 Open Question resolution).
	totalBeforeLimit := len(filtered)
	if len(filtered) > req.TopK {
		filtered = filtered[:req.TopK]
	}

	// Step 12: optional justification, drawing up to K source sentences per
	// company from its matched concepts' source_sentences.
	if req.IncludeJustification {
		if err := s.attachSourceSentences(ctx, filtered); err != nil {
			log.Warn("justification evidence lookup failed, falling back to summary-only", "error", err)
		}
	}
	results := buildResultCompanies(filtered, req.IncludeJustification, s.cfg.JustificationMaxEvidence)

	resp := types.SearchResponse{
		QueryCompany: queryView,
		Metadata: types.SearchMetadata{
			TotalResultsBeforeLimit: totalBeforeLimit,
			FiltersApplied:          filtersApplied,
		},
		Results: results,
	}

	// Step 13: cache write.
	if s.cache != nil {
		ttl := s.cacheTTL
		if ttl <= 0 {
			ttl = 5 * time.Minute
		}
		s.cache.SetWithTTL(cacheKey, resp, ttl)
	}

	return resp, nil
}

func applyRequestDefaults(req types.SearchRequest, cfg config.RetrievalConfig) types.SearchRequest {
	if req.TopK <= 0 {
		req.TopK = cfg.DefaultTopK
	}
	if req.TopK > cfg.MaxTopK {
		req.TopK = cfg.MaxTopK
	}
	if req.SimilarityThreshold <= 0 {
		req.SimilarityThreshold = cfg.DefaultThreshold
	}
	req.QueryIdentifier = strings.TrimSpace(req.QueryIdentifier)
	return req
}

// companyNames resolves every distinct company_code among documents to a
// display name in one batch round-trip (§4.8 step 9 needs a name per
// company; this avoids one query per matched company).
func (s *Service) companyNames(ctx context.Context, documents []types.Document) (map[string]string, error) {
	seen := make(map[string]struct{})
	codes := make([]string, 0)
	for _, d := range documents {
		if _, ok := seen[d.CompanyCode]; !ok {
			seen[d.CompanyCode] = struct{}{}
			codes = append(codes, d.CompanyCode)
		}
	}
	companies, err := s.store.GetCompaniesByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(companies))
	for code, c := range companies {
		out[code] = c.DisplayName()
	}
	return out, nil
}

// buildCacheKey computes a deterministic key from (identifier, top_k,
// similarity_threshold, filters_signature, include_justification), per
// §4.8 step 3.
func buildCacheKey(req types.SearchRequest) string {
	var filters string
	if req.MarketFilters != nil {
		filters = fmt.Sprintf("cap=%s|vol=%s", ptrString(req.MarketFilters.MaxMarketCapCNY), ptrString(req.MarketFilters.Min5DayAvgVolume))
	}
	raw := fmt.Sprintf("%s|%d|%.4f|%s|%t",
		strings.ToLower(req.QueryIdentifier), req.TopK, req.SimilarityThreshold, filters, req.IncludeJustification)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func ptrString(p *int64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatInt(*p, 10)
}
