// Package marketfilter implements C10: the market-informed final ranking
// stage of online retrieval. It applies the §4.9 tiered L = X*(S+V) scoring
// and the configurable max-market-cap / max-average-volume thresholds to
// the companies C9 aggregated in §4.8 step 9, degrading gracefully to
// "requested but not applied" whenever the market-data store has nothing
// to offer for the candidate set.
package marketfilter

import (
	"log/slog"
	"sort"

	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// Service scores and filters aggregated companies against market-cap and
// turnover tiers, per §4.9.
type Service struct {
	cfg config.MarketFilterConfig
	log *slog.Logger
}

// New builds a Service from cfg. log may be nil, in which case
// slog.Default is used.
func New(cfg config.MarketFilterConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{cfg: cfg, log: log}
}

// Result is Apply's output: the (possibly re-scored and re-sorted)
// surviving companies plus the bookkeeping §4.8 step 10 asks C9 to record
// in the response metadata.
type Result struct {
	Companies          []types.AggregatedCompany
	Applied            bool
	ExcludedByCap      int
	ExcludedByVolume   int
	ExcludedNoData     int
	EffectiveMaxCap    *int64
	EffectiveMaxVolume *int64
}

// Apply runs §4.8 step 10 / §4.9's scoring and filtering. current is the
// market-data snapshot already fetched by C9 for the candidate companies
// (possibly empty, if the store had nothing for any of them). filters is
// the caller's requested thresholds; a nil/empty filters degrades to a
// pass-through with Applied=false and companies returned unmodified and
// unsorted by L (C9's pre-filter ordering is preserved).
func (s *Service) Apply(companies []types.AggregatedCompany, current map[string]*types.MarketDataCurrent, filters *types.MarketFilters) Result {
	if filters.IsEmpty() {
		return Result{Companies: companies, Applied: false}
	}

	if len(current) == 0 {
		s.log.Warn("market filter requested but no market data available for any candidate; proceeding unfiltered")
		return Result{Companies: companies, Applied: false}
	}

	maxCap := s.cfg.MaxMarketCapCNY
	if filters.MaxMarketCapCNY != nil {
		maxCap = float64(*filters.MaxMarketCapCNY)
	}
	maxVolume := s.cfg.MaxAvgVolume5DCNY
	if filters.Min5DayAvgVolume != nil {
		// §3's types.MarketFilters doc: the wire field's name is kept for
		// compatibility, but it is applied as the §4.9 max-average-volume
		// exclusion threshold, same polarity as MaxMarketCapCNY.
		maxVolume = float64(*filters.Min5DayAvgVolume)
	}

	res := Result{Applied: true}
	res.EffectiveMaxCap = float64ToInt64Ptr(maxCap)
	res.EffectiveMaxVolume = float64ToInt64Ptr(maxVolume)

	survivors := make([]types.AggregatedCompany, 0, len(companies))
	for _, company := range companies {
		m, hasData := current[company.CompanyCode]
		if !hasData {
			// §4.9: "excluded only if at least one of the two thresholds
			// was specified AND market data is otherwise available" — both
			// conditions already hold here (filters is non-empty and
			// current is non-empty), so a missing row is a conservative
			// exclusion, not a pass-through.
			res.ExcludedNoData++
			continue
		}

		if maxCap > 0 && m.CurrentMarketCap > maxCap {
			res.ExcludedByCap++
			continue
		}
		if maxVolume > 0 && m.Avg5DayVolume > maxVolume {
			res.ExcludedByVolume++
			continue
		}

		sScore, sOK := tierScore(s.cfg.MarketCapTiers, m.CurrentMarketCap)
		vScore, vOK := tierScore(s.cfg.VolumeTiers, m.Avg5DayVolume)
		if !sOK || !vOK {
			// Falls outside every configured tier band (e.g. tiers configured
			// more narrowly than the thresholds): conservative exclusion.
			res.ExcludedNoData++
			continue
		}

		x := company.RelevanceScore
		if s.cfg.RelevanceMappingEnabled {
			if tier, ok := tierScore(s.cfg.RelevanceTiers, company.RelevanceScore); ok {
				x = tier
			}
		}

		// L = X*(S+V) orders survivors but is never returned as
		// relevance_score: it ranges up to max(S)+max(V), well outside the
		// §6.1/§8 documented 0..1 range. RelevanceScore is left untouched.
		scored := company
		scored.MarketRankScore = x * (sScore + vScore)
		survivors = append(survivors, scored)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].MarketRankScore != survivors[j].MarketRankScore {
			return survivors[i].MarketRankScore > survivors[j].MarketRankScore
		}
		return survivors[i].CompanyCode < survivors[j].CompanyCode
	})

	res.Companies = survivors
	return res
}

// tierScore returns the score of the tier band containing value, and
// whether a band matched. Bands are [Min, Max) except the implicit last
// open-ended band when Max <= 0.
func tierScore(tiers []config.TierSpec, value float64) (float64, bool) {
	for _, t := range tiers {
		if value < t.Min {
			continue
		}
		if t.Max > 0 && value >= t.Max {
			continue
		}
		return t.Score, true
	}
	return 0, false
}

func float64ToInt64Ptr(v float64) *int64 {
	i := int64(v)
	return &i
}
