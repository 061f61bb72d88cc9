package retrieval

import (
	"context"
	"log/slog"

	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// applyMarketFilter implements §4.8 step 10: fetch a market-data snapshot
// for every aggregated company and delegate scoring/filtering to C10. When
// market is nil (market-data store not configured) or filters is empty, the
// companies pass through unfiltered.
func (s *Service) applyMarketFilter(ctx context.Context, companies []types.AggregatedCompany, filters *types.MarketFilters, log *slog.Logger) (types.FiltersApplied, []types.AggregatedCompany) {
	applied := types.FiltersApplied{MarketFilterRequested: !filters.IsEmpty()}
	if filters.IsEmpty() || s.market == nil || s.filter == nil || len(companies) == 0 {
		return applied, companies
	}

	codes := make([]string, len(companies))
	for i, c := range companies {
		codes[i] = c.CompanyCode
	}

	current, err := s.market.GetCurrentBatch(ctx, codes)
	if err != nil {
		log.Warn("market data lookup failed, proceeding without market filter", "error", err)
		return applied, companies
	}

	result := s.filter.Apply(companies, current, filters)
	applied.MarketFilterApplied = result.Applied
	applied.MaxMarketCapCNY = result.EffectiveMaxCap
	applied.Min5DayAvgVolume = result.EffectiveMaxVolume

	if result.ExcludedByCap > 0 || result.ExcludedByVolume > 0 || result.ExcludedNoData > 0 {
		log.Debug("market filter excluded companies",
			"excluded_by_cap", result.ExcludedByCap,
			"excluded_by_volume", result.ExcludedByVolume,
			"excluded_no_data", result.ExcludedNoData)
	}

	return applied, result.Companies
}
