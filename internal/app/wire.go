package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "polyarb/internal/blob/s3"
	"polyarb/internal/cache/redis"
	"polyarb/internal/config"
	"polyarb/internal/detect"
	"polyarb/internal/domain"
	"polyarb/internal/feed"
	"polyarb/internal/ledger"
	"polyarb/internal/notify"
	"polyarb/internal/platform/polymarket"
	"polyarb/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Feed     *feed.MarketDataFeed
	Scanner  *polymarket.Scanner
	Executor domain.OrderExecutor
	Detector *detect.Detector
	Book     *detect.Book
	Ledger   *ledger.Ledger

	PriceCache domain.PriceCache
	SignalBus  domain.SignalBus
	Archiver   *s3blob.Archiver
	Notifier   *notify.Notifier
}

// needsPostgres reports whether the mode persists ledger snapshots.
func needsPostgres(mode string) bool {
	return strings.ToLower(mode) == "trade"
}

// Wire constructs the concrete dependency graph from the configuration and
// returns it with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	var ledgerStore domain.LedgerStore
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		ledgerStore = postgres.NewLedgerStore(pgClient.Pool())
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, cfg.S3)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.Archiver = s3blob.NewArchiver(s3Client, logger)
	}

	deps.Notifier = notify.FromConfig(cfg.Notify, logger)

	deps.Feed = feed.NewMarketDataFeed(feed.Options{
		Assets:   cfg.Feeds.Assets,
		Binance:  cfg.Feeds.Binance,
		Coinbase: cfg.Feeds.Coinbase,
		Kraken:   cfg.Feeds.Kraken,
	}, logger)

	deps.Scanner = polymarket.NewScanner(cfg.Polymarket.GammaHost, cfg.Polymarket.ScanLimit, logger)
	deps.Executor = polymarket.NewExecutor(polymarket.ExecutorConfig{
		BaseURL:      cfg.Polymarket.ClobHost,
		ApiKey:       cfg.Polymarket.ApiKey,
		PaperTrading: cfg.Polymarket.PaperTrading,
		Logger:       logger,
	})

	multipliers := make(map[domain.ContractClass]float64, len(cfg.Multiplier))
	for class, m := range cfg.Multiplier {
		multipliers[domain.ContractClass(class)] = m
	}
	deps.Detector = detect.NewDetector(detect.Params{
		MinEdgePercent: cfg.Trading.MinEdgePercent,
		BaseSize:       cfg.Trading.DefaultPositionSize,
		MaxSize:        cfg.Trading.MaxPositionSize,
		Multipliers:    multipliers,
	}, logger)
	deps.Book = detect.NewBook()
	deps.Ledger = ledger.New(cfg.Trading, ledgerStore, logger)

	return deps, cleanup, nil
}
