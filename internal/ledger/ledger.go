// Package ledger owns the set of open and closed positions, evaluates exit
// conditions against live venue prices, and enforces portfolio-level risk
// limits.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"polyarb/internal/config"
	"polyarb/internal/domain"
)

// Quote is the live venue price for one open position's side, plus the
// contract end time used for the resolution check.
type Quote struct {
	Price   float64
	EndTime time.Time
}

// QuoteFunc resolves the current quote for a position's contract and side.
// Returning false means no fresh quote is available; the position is then
// evaluated at its last known mark.
type QuoteFunc func(contractID string, side domain.Side) (Quote, bool)

// Ledger is the stateful position engine. All exported methods are safe for
// concurrent use; the ledger is the only writer of its positions and metrics.
type Ledger struct {
	cfg    config.TradingConfig
	store  domain.LedgerStore
	logger *slog.Logger
	now    func() time.Time

	// OnClose, when set, is invoked after a position is closed and booked.
	// It must not block; failures are the callee's problem.
	OnClose func(ctx context.Context, p *domain.Position)

	mu             sync.Mutex
	open           map[string]*domain.Position
	closed         []*domain.Position
	metrics        *domain.PerformanceMetrics
	dailyLoss      float64
	lastDailyReset time.Time
}

// New creates an empty ledger. store may be nil, in which case snapshots are
// kept in memory only.
func New(cfg config.TradingConfig, store domain.LedgerStore, logger *slog.Logger) *Ledger {
	now := time.Now().UTC()
	return &Ledger{
		cfg:            cfg,
		store:          store,
		logger:         logger.With(slog.String("component", "ledger")),
		now:            time.Now,
		open:           make(map[string]*domain.Position),
		metrics:        domain.NewPerformanceMetrics(now),
		lastDailyReset: now,
	}
}

// Restore loads persisted state from the store. A store with no saved state
// yields an empty ledger; load failures are logged and likewise yield an
// empty ledger, never an error.
func (l *Ledger) Restore(ctx context.Context) {
	if l.store == nil {
		return
	}
	snap, err := l.store.LoadSnapshot(ctx)
	if err != nil {
		l.logger.Warn("ledger restore failed, starting empty", slog.String("error", err.Error()))
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range snap.OpenPositions {
		p := snap.OpenPositions[i]
		l.open[p.ID] = &p
	}
	for i := range snap.ClosedPositions {
		p := snap.ClosedPositions[i]
		l.closed = append(l.closed, &p)
	}
	if snap.Metrics.LastReset.IsZero() {
		l.metrics = domain.NewPerformanceMetrics(l.now().UTC())
	} else {
		m := snap.Metrics
		l.metrics = &m
	}
	l.dailyLoss = snap.DailyLoss
	if !snap.LastDailyReset.IsZero() {
		l.lastDailyReset = snap.LastDailyReset
	}
	l.logger.Info("ledger restored",
		slog.Int("open", len(l.open)),
		slog.Int("closed", len(l.closed)))
}

// Snapshot returns a deep copy of the persistable ledger state.
func (l *Ledger) Snapshot() domain.LedgerSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() domain.LedgerSnapshot {
	snap := domain.LedgerSnapshot{
		OpenPositions:   make([]domain.Position, 0, len(l.open)),
		ClosedPositions: make([]domain.Position, 0, len(l.closed)),
		Metrics:         l.metrics.Clone(),
		DailyLoss:       l.dailyLoss,
		LastDailyReset:  l.lastDailyReset,
	}
	for _, p := range l.open {
		snap.OpenPositions = append(snap.OpenPositions, *p)
	}
	for _, p := range l.closed {
		snap.ClosedPositions = append(snap.ClosedPositions, *p)
	}
	return snap
}

// persistLocked saves a snapshot; failures are logged, never propagated.
func (l *Ledger) persistLocked(ctx context.Context) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveSnapshot(ctx, l.snapshotLocked()); err != nil {
		l.logger.Warn("ledger persist failed", slog.String("error", err.Error()))
	}
}

// Open registers a freshly executed position.
func (l *Ledger) Open(ctx context.Context, p *domain.Position) error {
	if p.Status != domain.PositionOpen {
		return fmt.Errorf("ledger: open: position %s has status %s", p.ID, p.Status)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.open[p.ID]; exists {
		return fmt.Errorf("ledger: open: duplicate position id %s", p.ID)
	}
	l.open[p.ID] = p
	l.metrics.TotalInvested += p.CostBasis

	l.logger.Info("opened position",
		slog.String("position_id", p.ID),
		slog.String("side", string(p.Side)),
		slog.Float64("cost_basis", p.CostBasis),
		slog.String("question", p.Contract.Question))

	l.persistLocked(ctx)
	return nil
}

// CanOpen reports whether a new position of the given size passes the
// portfolio risk gates: concurrency, total exposure, and daily loss.
func (l *Ledger) CanOpen(size float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.open) >= l.cfg.MaxConcurrent {
		return false
	}
	if l.exposureLocked()+size > l.cfg.MaxTotalExposure {
		return false
	}
	if l.dailyLoss >= l.cfg.DailyLossLimit {
		return false
	}
	return true
}

// TotalExposure returns the summed current mark value of all open positions.
func (l *Ledger) TotalExposure() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exposureLocked()
}

func (l *Ledger) exposureLocked() float64 {
	total := 0.0
	for _, p := range l.open {
		total += p.CurrentValue
	}
	return total
}

// EvaluateAll runs one evaluation pass over every open position: refresh the
// mark from the quote, then close the position if an exit condition fires.
// Returns the positions closed during this pass.
func (l *Ledger) EvaluateAll(ctx context.Context, quote QuoteFunc) []*domain.Position {
	now := l.now().UTC()

	l.mu.Lock()
	ids := make([]string, 0, len(l.open))
	for id := range l.open {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	var closed []*domain.Position
	for _, id := range ids {
		l.mu.Lock()
		p, ok := l.open[id]
		if !ok {
			l.mu.Unlock()
			continue
		}

		marketEnd := p.Contract.EndTime
		if quote != nil {
			if q, ok := quote(p.Contract.ID, p.Side); ok {
				p.UpdateCurrentPrice(q.Price)
				if !q.EndTime.IsZero() {
					marketEnd = q.EndTime
				}
			}
		}

		reason, exit := l.exitReason(p, marketEnd, now)
		if !exit {
			l.mu.Unlock()
			continue
		}
		l.closeLocked(ctx, p, reason, now)
		l.mu.Unlock()

		if l.OnClose != nil {
			l.OnClose(ctx, p)
		}
		closed = append(closed, p)
	}
	return closed
}

// exitReason applies the exit conditions in fixed priority order; the first
// satisfied condition wins.
func (l *Ledger) exitReason(p *domain.Position, marketEnd, now time.Time) (domain.ExitReason, bool) {
	if l.cfg.ProfitTargetPct > 0 && p.HitProfitTarget(l.cfg.ProfitTargetPct) {
		return domain.ExitProfitTarget, true
	}
	if l.cfg.StopLossPct > 0 && p.HitStopLoss(l.cfg.StopLossPct) {
		return domain.ExitStopLoss, true
	}
	if l.cfg.TimeLimitMinutes > 0 && p.HitTimeLimit(l.cfg.TimeLimitMinutes, now) {
		return domain.ExitTimeLimit, true
	}
	if l.cfg.SmartExitEnabled {
		if p.EVSell() > p.EVHold()*l.cfg.SellPriceThreshold {
			return domain.ExitSmart, true
		}
	}
	if !marketEnd.IsZero() && marketEnd.Before(now) {
		return domain.ExitResolved, true
	}
	return "", false
}

// Close force-closes one open position, used for manual exits.
func (l *Ledger) Close(ctx context.Context, positionID string, reason domain.ExitReason) (*domain.Position, error) {
	now := l.now().UTC()

	l.mu.Lock()
	p, ok := l.open[positionID]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("ledger: close %s: %w", positionID, domain.ErrNotFound)
	}
	l.closeLocked(ctx, p, reason, now)
	l.mu.Unlock()

	if l.OnClose != nil {
		l.OnClose(ctx, p)
	}
	return p, nil
}

// closeLocked performs the one-time exit transition: freeze exit fields,
// classify the terminal status, book metrics and daily loss, persist.
func (l *Ledger) closeLocked(ctx context.Context, p *domain.Position, reason domain.ExitReason, now time.Time) {
	exitPrice := p.CurrentPrice
	p.ExitTime = &now
	p.ExitPrice = &exitPrice
	p.ExitReason = &reason
	p.RealizedPnL = p.UnrealizedPnL

	switch {
	case p.RealizedPnL > 0:
		p.Status = domain.PositionClosedWin
	case p.RealizedPnL < 0:
		p.Status = domain.PositionClosedLoss
	default:
		p.Status = domain.PositionClosedBreakEven
	}

	delete(l.open, p.ID)
	l.closed = append(l.closed, p)
	l.metrics.AddClosedPosition(p)
	if p.RealizedPnL < 0 {
		l.dailyLoss += -p.RealizedPnL
	}

	l.logger.Info("closed position",
		slog.String("position_id", p.ID),
		slog.String("reason", string(reason)),
		slog.Float64("realized_pnl", p.RealizedPnL),
		slog.Float64("roi_pct", p.ROI()))

	l.persistLocked(ctx)
}

// MaybeResetDaily resets the daily loss counter and per-day metrics when a
// 24-hour boundary has passed since the last reset. Checked, not scheduled;
// callers invoke it on every position-evaluation tick. Reports whether a
// reset happened.
func (l *Ledger) MaybeResetDaily(ctx context.Context) bool {
	now := l.now().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastDailyReset) < 24*time.Hour {
		return false
	}
	l.dailyLoss = 0
	l.lastDailyReset = now
	l.metrics.ResetDaily(now)
	l.logger.Info("daily stats reset")
	l.persistLocked(ctx)
	return true
}

// DailyLossLimitReached reports whether the accumulated daily loss has hit
// the configured limit.
func (l *Ledger) DailyLossLimitReached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dailyLoss >= l.cfg.DailyLossLimit
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

// OpenPositions returns a copy of the open position set.
func (l *Ledger) OpenPositions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, 0, len(l.open))
	for _, p := range l.open {
		out = append(out, *p)
	}
	return out
}

// ClosedPositions returns a copy of the closed position list in close order.
func (l *Ledger) ClosedPositions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Position, len(l.closed))
	for i, p := range l.closed {
		out[i] = *p
	}
	return out
}

// Metrics returns a copy of the aggregate performance metrics.
func (l *Ledger) Metrics() domain.PerformanceMetrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics.Clone()
}

// DailyLoss returns the loss accumulated since the last daily reset.
func (l *Ledger) DailyLoss() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dailyLoss
}
