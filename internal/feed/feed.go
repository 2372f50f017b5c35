package feed

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Monitor is one long-lived exchange stream. Run blocks until the context is
// cancelled; transient failures are handled internally with reconnects.
type Monitor interface {
	Run(ctx context.Context) error
}

// MarketDataFeed owns the price aggregator and the set of enabled exchange
// monitors feeding it.
type MarketDataFeed struct {
	Aggregator *PriceAggregator
	monitors   []Monitor
	logger     *slog.Logger
}

// Options selects which exchange monitors to run.
type Options struct {
	Assets   []string
	Binance  bool
	Coinbase bool
	Kraken   bool
}

// NewMarketDataFeed builds a feed with a fresh aggregator and one monitor per
// enabled exchange.
func NewMarketDataFeed(opts Options, logger *slog.Logger) *MarketDataFeed {
	agg := NewPriceAggregator()
	f := &MarketDataFeed{
		Aggregator: agg,
		logger:     logger.With(slog.String("component", "market_data_feed")),
	}
	if opts.Binance {
		f.monitors = append(f.monitors, NewBinanceMonitor(agg, opts.Assets, logger))
	}
	if opts.Coinbase {
		f.monitors = append(f.monitors, NewCoinbaseMonitor(agg, opts.Assets, logger))
	}
	if opts.Kraken {
		f.monitors = append(f.monitors, NewKrakenMonitor(agg, opts.Assets, logger))
	}
	return f
}

// Run starts every monitor and blocks until ctx is cancelled. Monitors only
// return on cancellation, so the first return tears the group down.
func (f *MarketDataFeed) Run(ctx context.Context) error {
	f.logger.Info("starting market data feed", slog.Int("monitors", len(f.monitors)))
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range f.monitors {
		g.Go(func() error {
			return m.Run(ctx)
		})
	}
	return g.Wait()
}
