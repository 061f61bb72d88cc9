package ashareinsight

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashareinsight/ashareinsight/pkg/apperr"
	"github.com/ashareinsight/ashareinsight/pkg/marketdata"
	"github.com/ashareinsight/ashareinsight/pkg/types"
)

// backfillTradingDays bounds how far --init looks back when seeding an
// empty market_data_daily table.
const backfillTradingDays = 30

var syncMarketInit bool

var syncMarketCmd = &cobra.Command{
	Use:   "sync-market-data",
	Short: "Pull today's snapshot from the market-data provider into C3",
	Long: `Sync-market-data calls the market-data provider at most once per
trading date and upserts the resulting snapshots. --init backfills the last
several trading days instead of just today, for seeding a fresh store.`,
	Args: cobra.NoArgs,
	RunE: runSyncMarket,
}

func init() {
	syncMarketCmd.Flags().BoolVar(&syncMarketInit, "init", false, "backfill recent trading days instead of just today")
	rootCmd.AddCommand(syncMarketCmd)
}

func runSyncMarket(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.store.Close()

	dates := []time.Time{time.Now().UTC()}
	if syncMarketInit {
		dates = recentTradingDays(time.Now().UTC(), backfillTradingDays)
	}

	var synced, failed int
	for _, date := range dates {
		n, err := syncOneDay(ctx, a, date)
		if err != nil {
			a.log.Error("market-data sync failed", "date", date.Format("2006-01-02"), "error", err)
			failed++
			continue
		}
		a.log.Info("market-data synced", "date", date.Format("2006-01-02"), "snapshots", n)
		synced++
	}

	if _, err := a.market.Prune(ctx); err != nil {
		a.log.Warn("market-data retention prune failed", "error", err)
	}

	a.log.Info("sync-market-data run complete", "synced_days", synced, "failed_days", failed)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d days failed to sync", apperr.ErrPartialFailure, failed, len(dates))
	}
	return nil
}

func syncOneDay(ctx context.Context, a *app, date time.Time) (int, error) {
	snapshots, err := a.marketData.FetchDaily(ctx, date)
	if err != nil {
		return 0, fmt.Errorf("fetch daily snapshot: %w", err)
	}
	if len(snapshots) == 0 {
		return 0, nil
	}

	rows := make([]types.MarketDataDaily, len(snapshots))
	for i, s := range snapshots {
		rows[i] = marketdata.ToMarketDataDaily(s, date)
	}
	if err := a.market.BatchSaveDailySnapshots(ctx, rows); err != nil {
		return 0, fmt.Errorf("save daily snapshots: %w", err)
	}
	return len(rows), nil
}

// recentTradingDays returns the last n weekdays up to and including from,
// oldest first, skipping weekends (§6.3: "non-trading days are skipped").
func recentTradingDays(from time.Time, n int) []time.Time {
	var days []time.Time
	for d := from; len(days) < n; d = d.AddDate(0, 0, -1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	for i, j := 0, len(days)-1; i < j; i, j = i+1, j-1 {
		days[i], days[j] = days[j], days[i]
	}
	return days
}
