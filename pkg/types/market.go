package types

import "time"

// MarketDataDaily is one append-only daily snapshot for a company. See §3/§4.2.
type MarketDataDaily struct {
	CompanyCode        string
	TradingDate        time.Time
	TotalMarketCap     float64 // CNY
	CirculatingCap     float64 // CNY
	TurnoverAmount     float64 // CNY
}

// MarketDataCurrent is the derived "latest snapshot + rolling 5-day average
// turnover" view projected per company by C3's get_current operation.
type MarketDataCurrent struct {
	CompanyCode        string
	CurrentMarketCap   float64
	CurrentCirculating float64
	TodayVolume        float64
	Avg5DayVolume      float64
	LastUpdated        time.Time
}

// MarketFilters are the optional request-level thresholds from §6.1.
//
// Min5DayAvgVolume keeps the wire field's name ("min_5day_avg_volume", kept
// for compatibility per §6.1) but is applied as the §4.9 max_avg_volume_5d
// exclusion threshold: companies at or above it are excluded, same as
// MaxMarketCapCNY. The field name is a historical misnomer, not a different
// semantic.
type MarketFilters struct {
	MaxMarketCapCNY  *int64
	Min5DayAvgVolume *int64
}

// IsEmpty reports whether no filter was requested.
func (f *MarketFilters) IsEmpty() bool {
	return f == nil || (f.MaxMarketCapCNY == nil && f.Min5DayAvgVolume == nil)
}
