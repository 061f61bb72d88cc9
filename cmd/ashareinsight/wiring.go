package ashareinsight

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashareinsight/ashareinsight/pkg/alert"
	"github.com/ashareinsight/ashareinsight/pkg/archival"
	"github.com/ashareinsight/ashareinsight/pkg/cache"
	"github.com/ashareinsight/ashareinsight/pkg/checkpoint"
	"github.com/ashareinsight/ashareinsight/pkg/config"
	"github.com/ashareinsight/ashareinsight/pkg/embedder"
	"github.com/ashareinsight/ashareinsight/pkg/fusion"
	"github.com/ashareinsight/ashareinsight/pkg/logger"
	"github.com/ashareinsight/ashareinsight/pkg/market"
	"github.com/ashareinsight/ashareinsight/pkg/marketdata"
	"github.com/ashareinsight/ashareinsight/pkg/marketfilter"
	"github.com/ashareinsight/ashareinsight/pkg/rerank"
	"github.com/ashareinsight/ashareinsight/pkg/resilience"
	"github.com/ashareinsight/ashareinsight/pkg/retrieval"
	"github.com/ashareinsight/ashareinsight/pkg/store"
	"github.com/ashareinsight/ashareinsight/pkg/telemetry"
	"github.com/ashareinsight/ashareinsight/pkg/types"
	"github.com/ashareinsight/ashareinsight/pkg/vectorize"
)

// app bundles every use-case service the CLI subcommands can wire from, all
// built from the same *config.Config so archive/fuse/vectorize/sync-market/
// serve share one composition path instead of five bespoke ones.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	alerter alert.Alerter

	store  *store.ConceptStore
	market *market.Store

	archival   *archival.Service
	fusion     *fusion.Service
	vectorize  *vectorize.Service
	retrieval  *retrieval.Service
	marketData *marketdata.HTTPProvider
}

// newLogger builds the application logger from cfg.Log, wrapping it with the
// Parquet audit handler when telemetry is enabled.
func newLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.Log.Level)
	log := logger.New(cfg.Log.Format, level)
	if !cfg.Telemetry.Enabled || cfg.Telemetry.ParquetPath == "" {
		return log
	}
	handler, err := telemetry.NewParquetHandler(log.Handler(), cfg.Telemetry.ParquetPath)
	if err != nil {
		log.Warn("telemetry handler unavailable, continuing without audit sink", "error", err)
		return log
	}
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newAlerter(cfg *config.Config) alert.Alerter {
	if !cfg.Alert.Enabled {
		return &alert.NoOpAlerter{}
	}
	return alert.NewEmailAlerter(cfg.Alert)
}

// openStore opens and initializes the shared Postgres pool that both
// pkg/store and pkg/market read/write against (§5's single-pool policy).
// dbBreaker guards store.SearchSimilar, the sole DB call on C9's online
// critical path.
func openStore(ctx context.Context, cfg *config.Config, dbBreaker *resilience.Breaker) (*store.ConceptStore, *market.Store, error) {
	conceptStore, err := store.New(cfg.Database, dbBreaker)
	if err != nil {
		return nil, nil, err
	}
	if err := conceptStore.Initialize(ctx); err != nil {
		return nil, nil, err
	}

	marketStore := market.New(conceptStore.DB(), time.Duration(cfg.Database.QueryTimeout)*time.Second, cfg.Database.MarketRetentionDays)
	if err := marketStore.Initialize(ctx); err != nil {
		return nil, nil, err
	}
	return conceptStore, marketStore, nil
}

// newApp wires every use-case service, opening the shared DB pool. Callers
// (individual subcommands) are responsible for closing app.store.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg)
	alerter := newAlerter(cfg)

	retryPolicy := resilience.PolicyFromConfig(cfg.Retry)

	var dbBreaker, embeddingBreaker, marketProviderBreaker *resilience.Breaker
	if cfg.CircuitBreaker.Enabled {
		dbBreaker = resilience.New("database", cfg.CircuitBreaker, alerter)
		embeddingBreaker = resilience.New("embedding", cfg.CircuitBreaker, alerter)
		marketProviderBreaker = resilience.New("market-provider", cfg.CircuitBreaker, alerter)
	}

	conceptStore, marketStore, err := openStore(ctx, cfg, dbBreaker)
	if err != nil {
		return nil, err
	}

	fusionSvc := fusion.New(conceptStore, cfg.Fusion, log)
	archivalSvc := archival.New(conceptStore, fusionSvc, log)

	embedderClient, err := embedder.New(cfg.Embedding, retryPolicy, embeddingBreaker)
	if err != nil {
		return nil, err
	}
	checkpoints, err := checkpoint.NewManager(cfg.Vectorization.CheckpointPath)
	if err != nil {
		return nil, err
	}
	vectorizeSvc := vectorize.New(conceptStore, embedderClient, checkpoints, vectorize.Config{
		MaxTextChars: cfg.Vectorization.MaxTextChars,
		BatchSize:    cfg.Embedding.BatchSize,
	}, log)

	retrievalSvc := buildRetrieval(cfg, conceptStore, marketStore, alerter, retryPolicy, log)
	marketDataProvider := marketdata.New(cfg.MarketData, retryPolicy, marketProviderBreaker)

	return &app{
		cfg:        cfg,
		log:        log,
		alerter:    alerter,
		store:      conceptStore,
		market:     marketStore,
		archival:   archivalSvc,
		fusion:     fusionSvc,
		vectorize:  vectorizeSvc,
		retrieval:  retrievalSvc,
		marketData: marketDataProvider,
	}, nil
}

// buildRetrieval wires C9 with an optional reranker/breaker (rerank.New
// returns nil when disabled, meaning C9 degrades to importance-only scoring)
// and an optional response cache.
func buildRetrieval(cfg *config.Config, conceptStore *store.ConceptStore, marketStore *market.Store, alerter alert.Alerter, retryPolicy resilience.Policy, log *slog.Logger) *retrieval.Service {
	rerankClient := rerank.New(cfg.Rerank, retryPolicy)

	var rerankBreaker *resilience.Breaker
	if rerankClient != nil && cfg.CircuitBreaker.Enabled {
		rerankBreaker = resilience.New("rerank", cfg.CircuitBreaker, alerter)
	}

	filterSvc := marketfilter.New(cfg.MarketFilter, log)

	var respCache *cache.Cache[string, types.SearchResponse]
	if cfg.Cache.Capacity > 0 {
		c, err := cache.New[string, types.SearchResponse](cfg.Cache.Capacity, time.Duration(cfg.Cache.TTLSec)*time.Second)
		if err != nil {
			log.Warn("retrieval cache unavailable, continuing without it", "error", err)
		} else {
			respCache = c
		}
	}

	return retrieval.New(retrieval.Deps{
		Store:         conceptStore,
		Market:        marketStore,
		Reranker:      rerankClient,
		RerankBreaker: rerankBreaker,
		Filter:        filterSvc,
		Cache:         respCache,
		CacheTTL:      time.Duration(cfg.Cache.TTLSec) * time.Second,
	}, cfg.Retrieval, log)
}
