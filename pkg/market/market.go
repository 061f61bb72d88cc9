// Package market implements C3, the market-data store: append-only daily
// snapshots and a derived "current" view with a rolling 5-day average
// turnover, read by C10's market filter.
package market

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// Store is the C3 Postgres adapter. It shares the *sql.DB pool opened by
// pkg/store per §5's single-shared-pool policy; callers pass that pool in
// rather than opening a second one.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
	retention    int
}

// New wraps an already-open pool. queryTimeout bounds every call;
// retentionDays bounds Prune's cutoff.
func New(db *sql.DB, queryTimeout time.Duration, retentionDays int) *Store {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	if retentionDays <= 0 {
		retentionDays = 400
	}
	return &Store{db: db, queryTimeout: queryTimeout, retention: retentionDays}
}

// Initialize creates the market_data_daily table if it does not exist.
func (s *Store) Initialize(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS market_data_daily (
			company_code     VARCHAR(32) NOT NULL,
			trading_date     DATE NOT NULL,
			total_market_cap DOUBLE PRECISION NOT NULL,
			circulating_cap  DOUBLE PRECISION NOT NULL,
			turnover_amount  DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (company_code, trading_date)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create market_data_daily table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_market_data_daily_company_date
		ON market_data_daily (company_code, trading_date DESC)`)
	if err != nil {
		return fmt.Errorf("failed to create market_data_daily index: %w", err)
	}
	return nil
}

// SaveDailySnapshot upserts one day's snapshot, idempotent on
// (company_code, trading_date) so a re-synced feed never double-counts.
func (s *Store) SaveDailySnapshot(ctx context.Context, d types.MarketDataDaily) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_data_daily (company_code, trading_date, total_market_cap, circulating_cap, turnover_amount)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (company_code, trading_date) DO UPDATE SET
			total_market_cap = EXCLUDED.total_market_cap,
			circulating_cap  = EXCLUDED.circulating_cap,
			turnover_amount  = EXCLUDED.turnover_amount`,
		d.CompanyCode, d.TradingDate, d.TotalMarketCap, d.CirculatingCap, d.TurnoverAmount)
	if err != nil {
		return fmt.Errorf("%w: save daily snapshot: %v", apperr.ErrMarketData, err)
	}
	return nil
}

// BatchSaveDailySnapshots upserts many snapshots in one transaction, for
// bulk sync-market-data runs.
func (s *Store) BatchSaveDailySnapshots(ctx context.Context, snapshots []types.MarketDataDaily) error {
	if len(snapshots) == 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrMarketData, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO market_data_daily (company_code, trading_date, total_market_cap, circulating_cap, turnover_amount)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (company_code, trading_date) DO UPDATE SET
			total_market_cap = EXCLUDED.total_market_cap,
			circulating_cap  = EXCLUDED.circulating_cap,
			turnover_amount  = EXCLUDED.turnover_amount`)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrMarketData, err)
	}
	defer stmt.Close()

	for _, d := range snapshots {
		if _, err := stmt.ExecContext(ctx, d.CompanyCode, d.TradingDate, d.TotalMarketCap, d.CirculatingCap, d.TurnoverAmount); err != nil {
			return fmt.Errorf("%w: batch save: %v", apperr.ErrMarketData, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrMarketData, err)
	}
	return nil
}

// Ping verifies the shared connection pool is reachable, for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}
