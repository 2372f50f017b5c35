package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"polyarb/internal/cache/redis"
	"polyarb/internal/domain"
	"polyarb/internal/ledger"
)

const (
	scanInterval     = 60 * time.Second
	tradeInterval    = 3 * time.Second
	positionInterval = 2 * time.Second
	publishInterval  = 5 * time.Second

	// Back off the trading loop after a failed scan so a venue outage does
	// not turn into a hot loop of errors.
	errorBackoff = 10 * time.Second
)

// TradeMode runs the full pipeline: price feeds, market scanning, detection,
// execution, and position management.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	deps.Ledger.Restore(ctx)
	deps.Ledger.OnClose = func(ctx context.Context, p *domain.Position) {
		deps.Notifier.PositionClosed(ctx, p)
		a.publish(ctx, deps, redis.ChannelPositionClosed, p)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Feed.Run(ctx)
	})

	contracts := newContractSet()
	g.Go(func() error {
		return a.scanLoop(ctx, deps, contracts)
	})

	g.Go(func() error {
		return a.tradeLoop(ctx, deps, contracts)
	})

	g.Go(func() error {
		return a.positionLoop(ctx, deps)
	})

	if deps.PriceCache != nil {
		g.Go(func() error {
			return a.publishPrices(ctx, deps)
		})
	}

	return g.Wait()
}

// MonitorMode runs feeds, scanning, and detection but never places orders or
// opens positions.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode, execution disabled")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Feed.Run(ctx)
	})

	contracts := newContractSet()
	g.Go(func() error {
		return a.scanLoop(ctx, deps, contracts)
	})

	g.Go(func() error {
		ticker := time.NewTicker(tradeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				a.detectAll(ctx, deps, contracts.All())
				deps.Detector.SweepExpired(time.Now())
			}
		}
	})

	if deps.PriceCache != nil {
		g.Go(func() error {
			return a.publishPrices(ctx, deps)
		})
	}

	return g.Wait()
}

// contractSet is the shared contract snapshot between the scan loop and the
// trading loop.
type contractSet struct {
	mu   sync.RWMutex
	list []domain.Contract
}

func newContractSet() *contractSet {
	return &contractSet{}
}

func (c *contractSet) Replace(list []domain.Contract) {
	c.mu.Lock()
	c.list = list
	c.mu.Unlock()
}

func (c *contractSet) All() []domain.Contract {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Contract, len(c.list))
	copy(out, c.list)
	return out
}

// scanLoop refreshes the venue contract snapshot. The first scan runs
// immediately so the trading loop has markets from the start.
func (a *App) scanLoop(ctx context.Context, deps *Dependencies, contracts *contractSet) error {
	scan := func() {
		list, err := deps.Scanner.ListContracts(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "market scan failed", slog.String("error", err.Error()))
			deps.Notifier.Error(ctx, "market scan", err)
			select {
			case <-ctx.Done():
			case <-time.After(errorBackoff):
			}
			return
		}
		contracts.Replace(list)
	}

	scan()
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			scan()
		}
	}
}

// tradeLoop detects mispricings against the latest contract snapshot and
// executes the best ones within the risk limits.
func (a *App) tradeLoop(ctx context.Context, deps *Dependencies, contracts *contractSet) error {
	ticker := time.NewTicker(tradeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.detectAll(ctx, deps, contracts.All())
			a.executeTop(ctx, deps)
			deps.Detector.SweepExpired(time.Now())
		}
	}
}

// detectAll runs the detector over every contract that has a reference price
// and books the resulting opportunities.
func (a *App) detectAll(ctx context.Context, deps *Dependencies, contracts []domain.Contract) {
	now := time.Now().UTC()
	for _, contract := range contracts {
		if !contract.Class.IsCrypto() {
			continue
		}
		asset := assetFor(contract.Question)
		if asset == "" {
			continue
		}
		price, err := deps.Feed.Aggregator.BestPrice(asset)
		if err != nil {
			continue
		}

		sample := domain.PriceSample{
			Source:    "aggregate",
			Symbol:    asset,
			Price:     price,
			Timestamp: now,
		}
		opp, err := deps.Detector.Detect(contract, sample)
		if err != nil {
			a.logger.WarnContext(ctx, "detection failed",
				slog.String("contract_id", contract.ID),
				slog.String("error", err.Error()))
			continue
		}
		if opp == nil {
			continue
		}

		deps.Book.Add(*opp)
		deps.Notifier.Opportunity(ctx, *opp)
		a.publish(ctx, deps, redis.ChannelOpportunities, opp)
		a.logger.InfoContext(ctx, "opportunity detected",
			slog.String("contract_id", contract.ID),
			slog.String("side", string(opp.Side)),
			slog.Float64("edge_pct", opp.EdgePercent),
			slog.Float64("size", opp.RecommendedSize))
	}
}

// executeTop walks the ranked opportunity book and opens positions while the
// risk limits allow.
func (a *App) executeTop(ctx context.Context, deps *Dependencies) {
	if deps.Ledger.DailyLossLimitReached() {
		return
	}

	open := make(map[string]bool)
	for _, p := range deps.Ledger.OpenPositions() {
		open[p.Contract.ID] = true
	}

	for _, opp := range deps.Book.TopN(a.cfg.Trading.MaxConcurrent) {
		if open[opp.Contract.ID] {
			continue
		}
		if !deps.Ledger.CanOpen(opp.RecommendedSize) {
			return
		}

		orderID, err := deps.Executor.PlaceOrder(ctx, opp.Contract, opp.Side, opp.RecommendedSize, opp.VenuePrice)
		if err != nil {
			a.logger.ErrorContext(ctx, "order failed",
				slog.String("contract_id", opp.Contract.ID),
				slog.String("error", err.Error()))
			deps.Notifier.Error(ctx, "order execution", err)
			continue
		}

		pos := domain.NewPosition(opp, orderID, time.Now().UTC())
		if err := deps.Ledger.Open(ctx, pos); err != nil {
			a.logger.ErrorContext(ctx, "ledger open failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()))
			continue
		}
		open[opp.Contract.ID] = true
		deps.Notifier.PositionOpened(ctx, pos)
		a.publish(ctx, deps, redis.ChannelPositionOpened, pos)
	}
}

// positionLoop refreshes marks, applies exit conditions, rolls the daily risk
// window, and archives each completed day.
func (a *App) positionLoop(ctx context.Context, deps *Dependencies) error {
	quote := func(contractID string, side domain.Side) (ledger.Quote, bool) {
		c, ok := deps.Scanner.Contract(contractID)
		if !ok {
			return ledger.Quote{}, false
		}
		return ledger.Quote{Price: c.PriceFor(side), EndTime: c.EndTime}, true
	}

	ticker := time.NewTicker(positionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			closed := deps.Ledger.EvaluateAll(ctx, quote)
			for _, p := range closed {
				deps.Detector.Forget(p.Contract.ID)
			}
			if deps.Ledger.MaybeResetDaily(ctx) {
				a.archiveDay(ctx, deps, time.Now().UTC().AddDate(0, 0, -1))
			}
		}
	}
}

// archiveDay uploads the day's closed positions when S3 is enabled. Archive
// failures are operational noise, never fatal.
func (a *App) archiveDay(ctx context.Context, deps *Dependencies, day time.Time) {
	if deps.Archiver == nil {
		return
	}
	done, err := deps.Archiver.Archived(ctx, day)
	if err == nil && done {
		return
	}
	count, err := deps.Archiver.ArchivePositions(ctx, day, deps.Ledger.ClosedPositions())
	if err != nil {
		a.logger.WarnContext(ctx, "position archive failed", slog.String("error", err.Error()))
		deps.Notifier.Error(ctx, "position archive", err)
		return
	}
	if count > 0 {
		a.logger.InfoContext(ctx, "daily archive complete",
			slog.String("day", day.Format("2006-01-02")),
			slog.Int("positions", count))
	}
}

// publishPrices mirrors the aggregated reference prices into the shared
// cache for external consumers.
func (a *App) publishPrices(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().UTC()
			for _, asset := range a.cfg.Feeds.Assets {
				price, err := deps.Feed.Aggregator.BestPrice(asset)
				if err != nil {
					continue
				}
				if err := deps.PriceCache.SetPrice(ctx, asset, price, now); err != nil {
					a.logger.DebugContext(ctx, "price cache write failed",
						slog.String("asset", asset),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

// publish sends an event to the signal bus as JSON when Redis is enabled.
func (a *App) publish(ctx context.Context, deps *Dependencies, channel string, v any) {
	if deps.SignalBus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := deps.SignalBus.Publish(ctx, channel, payload); err != nil {
		a.logger.DebugContext(ctx, "signal publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()))
	}
}

// assetFor maps a market question to the reference asset symbol tracked by
// the feeds.
func assetFor(question string) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "bitcoin") || strings.Contains(q, "btc"):
		return "BTC"
	case strings.Contains(q, "ethereum") || strings.Contains(q, "eth"):
		return "ETH"
	case strings.Contains(q, "xrp") || strings.Contains(q, "ripple"):
		return "XRP"
	case strings.Contains(q, "solana") || strings.Contains(q, "sol"):
		return "SOL"
	default:
		return ""
	}
}
