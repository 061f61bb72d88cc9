package market

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// currentQuery projects each requested company's latest snapshot plus its
// rolling 5-day average turnover in one round trip, per §4.2: the average
// is the mean of up to five most-recent snapshots strictly older than the
// latest available date, bounded to a 7-day lookback to tolerate
// non-trading days; with no prior snapshot it defaults to today_volume.
const currentQuery = `
	WITH latest AS (
		SELECT DISTINCT ON (company_code) company_code, trading_date,
			total_market_cap, circulating_cap, turnover_amount
		FROM market_data_daily
		WHERE company_code = ANY($1)
		ORDER BY company_code, trading_date DESC
	),
	ranked AS (
		SELECT m.company_code, m.turnover_amount,
			ROW_NUMBER() OVER (PARTITION BY m.company_code ORDER BY m.trading_date DESC) AS rn
		FROM market_data_daily m
		JOIN latest l ON l.company_code = m.company_code
		WHERE m.trading_date < l.trading_date
		  AND m.trading_date >= l.trading_date - INTERVAL '7 days'
	),
	prior AS (
		SELECT company_code, AVG(turnover_amount) AS avg_turnover, COUNT(*) AS n
		FROM ranked
		WHERE rn <= 5
		GROUP BY company_code
	)
	SELECT latest.company_code, latest.total_market_cap, latest.circulating_cap,
		latest.turnover_amount,
		CASE WHEN prior.n > 0 THEN prior.avg_turnover ELSE latest.turnover_amount END,
		latest.trading_date
	FROM latest
	LEFT JOIN prior ON prior.company_code = latest.company_code`

// GetCurrent projects companyCode's current market-data view, or
// apperr.ErrNotFound if no snapshot exists for it.
func (s *Store) GetCurrent(ctx context.Context, companyCode string) (*types.MarketDataCurrent, error) {
	all, err := s.GetCurrentBatch(ctx, []string{companyCode})
	if err != nil {
		return nil, err
	}
	m, ok := all[companyCode]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return m, nil
}

// GetCurrentBatch projects the current market-data view for every code in
// codes, per §4.2's get_current([codes]) contract: companies with no
// snapshot on file are simply omitted from the returned map rather than
// erroring — callers treat an absent key as "no data".
func (s *Store) GetCurrentBatch(ctx context.Context, codes []string) (map[string]*types.MarketDataCurrent, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	out := make(map[string]*types.MarketDataCurrent, len(codes))
	if len(codes) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx, currentQuery, pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("%w: get current batch: %v", apperr.ErrMarketData, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m types.MarketDataCurrent
		if err := rows.Scan(&m.CompanyCode, &m.CurrentMarketCap, &m.CurrentCirculating,
			&m.TodayVolume, &m.Avg5DayVolume, &m.LastUpdated); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", apperr.ErrMarketData, err)
		}
		out[m.CompanyCode] = &m
	}
	return out, rows.Err()
}

// Prune deletes snapshots older than the store's configured retention
// window, run periodically by the sync-market-data command per §4.2/§9's
// "bounded retention" concern.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM market_data_daily WHERE trading_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: prune: %v", apperr.ErrMarketData, err)
	}
	return res.RowsAffected()
}
