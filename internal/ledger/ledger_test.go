package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyarb/internal/config"
	"polyarb/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testCfg() config.TradingConfig {
	cfg := config.Defaults().Trading
	return cfg
}

func newTestLedger(cfg config.TradingConfig, store domain.LedgerStore) *Ledger {
	l := New(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.now = func() time.Time { return t0 }
	l.lastDailyReset = t0
	return l
}

func openPosition(id string, entry float64, shares float64) *domain.Position {
	p := &domain.Position{
		ID:         id,
		Contract:   domain.Contract{ID: "cond-" + id, Question: "Will BTC hit $100k?", EndTime: t0.Add(time.Hour)},
		Side:       domain.SideYes,
		EntryPrice: entry,
		Shares:     shares,
		CostBasis:  entry * shares,
		EntryTime:  t0,
		Class:      domain.ClassCrypto5m,
		Status:     domain.PositionOpen,
	}
	p.UpdateCurrentPrice(entry)
	return p
}

func quoteAt(price float64) QuoteFunc {
	return func(string, domain.Side) (Quote, bool) {
		return Quote{Price: price}, true
	}
}

func TestOpenAndDuplicate(t *testing.T) {
	l := newTestLedger(testCfg(), nil)
	ctx := context.Background()

	p := openPosition("p1", 0.50, 100)
	require.NoError(t, l.Open(ctx, p))
	assert.Equal(t, 1, l.OpenCount())
	assert.Equal(t, 50.0, l.Metrics().TotalInvested)

	assert.Error(t, l.Open(ctx, openPosition("p1", 0.50, 100)))

	closed := openPosition("p2", 0.50, 100)
	closed.Status = domain.PositionClosedWin
	assert.Error(t, l.Open(ctx, closed))
}

func TestProfitTargetExit(t *testing.T) {
	l := newTestLedger(testCfg(), nil)
	ctx := context.Background()

	p := openPosition("p1", 0.50, 100)
	require.NoError(t, l.Open(ctx, p))

	var notified *domain.Position
	l.OnClose = func(_ context.Context, p *domain.Position) { notified = p }

	closed := l.EvaluateAll(ctx, quoteAt(0.75))
	require.Len(t, closed, 1)

	got := closed[0]
	assert.Equal(t, domain.PositionClosedWin, got.Status)
	require.NotNil(t, got.ExitReason)
	assert.Equal(t, domain.ExitProfitTarget, *got.ExitReason)
	assert.InDelta(t, 25.0, got.RealizedPnL, 1e-9)
	assert.InDelta(t, 50.0, got.ROI(), 1e-9)
	assert.Equal(t, 0.75, *got.ExitPrice)
	assert.Same(t, got, notified)

	assert.Zero(t, l.OpenCount())
	assert.Equal(t, 1, l.Metrics().WinningTrades)
	assert.Zero(t, l.DailyLoss(), "wins do not touch the daily loss counter")
}

func TestStopLossExitAccumulatesDailyLoss(t *testing.T) {
	l := newTestLedger(testCfg(), nil)
	ctx := context.Background()
	require.NoError(t, l.Open(ctx, openPosition("p1", 0.50, 100)))

	closed := l.EvaluateAll(ctx, quoteAt(0.40))
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitStopLoss, *closed[0].ExitReason)
	assert.Equal(t, domain.PositionClosedLoss, closed[0].Status)
	assert.InDelta(t, 10.0, l.DailyLoss(), 1e-9)
}

func TestSmartExit(t *testing.T) {
	l := newTestLedger(testCfg(), nil)
	ctx := context.Background()
	require.NoError(t, l.Open(ctx, openPosition("p1", 0.50, 100)))

	// +10% ROI: below profit target and stop loss, inside the time limit.
	// EV(hold) is 0 under the 50/50 model, EV(sell) is +5.
	closed := l.EvaluateAll(ctx, quoteAt(0.55))
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitSmart, *closed[0].ExitReason)
}

func TestTimeLimitExit(t *testing.T) {
	cfg := testCfg()
	cfg.SmartExitEnabled = false
	l := newTestLedger(cfg, nil)
	ctx := context.Background()
	require.NoError(t, l.Open(ctx, openPosition("p1", 0.50, 100)))

	// Flat price, 31 minutes later.
	l.now = func() time.Time { return t0.Add(31 * time.Minute) }
	closed := l.EvaluateAll(ctx, quoteAt(0.50))
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitTimeLimit, *closed[0].ExitReason)
	assert.Equal(t, domain.PositionClosedBreakEven, closed[0].Status)
}

func TestResolvedExit(t *testing.T) {
	cfg := testCfg()
	cfg.SmartExitEnabled = false
	l := newTestLedger(cfg, nil)
	ctx := context.Background()
	require.NoError(t, l.Open(ctx, openPosition("p1", 0.50, 100)))

	// Contract ended two minutes ago; all other conditions are quiet.
	l.now = func() time.Time { return t0.Add(10 * time.Minute) }
	quote := func(string, domain.Side) (Quote, bool) {
		return Quote{Price: 0.50, EndTime: t0.Add(8 * time.Minute)}, true
	}
	closed := l.EvaluateAll(ctx, quote)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitResolved, *closed[0].ExitReason)
}

func TestPositionStaysOpenWhenNothingFires(t *testing.T) {
	cfg := testCfg()
	cfg.SmartExitEnabled = false
	l := newTestLedger(cfg, nil)
	ctx := context.Background()
	require.NoError(t, l.Open(ctx, openPosition("p1", 0.50, 100)))

	closed := l.EvaluateAll(ctx, quoteAt(0.55))
	assert.Empty(t, closed)
	assert.Equal(t, 1, l.OpenCount())
	// The mark was still refreshed.
	assert.InDelta(t, 55.0, l.OpenPositions()[0].CurrentValue, 1e-9)
}

func TestCanOpenExposureGate(t *testing.T) {
	l := newTestLedger(testCfg(), nil)
	ctx := context.Background()

	// Two positions marking at 450 each: exposure 900 of the 1000 cap.
	require.NoError(t, l.Open(ctx, openPosition("p1", 0.45, 1000)))
	require.NoError(t, l.Open(ctx, openPosition("p2", 0.45, 1000)))
	require.InDelta(t, 900.0, l.TotalExposure(), 1e-9)

	assert.True(t, l.CanOpen(100))
	// Count and daily loss are fine; exposure alone rejects.
	assert.False(t, l.CanOpen(150))
}

func TestCanOpenConcurrencyGate(t *testing.T) {
	cfg := testCfg()
	cfg.MaxConcurrent = 2
	l := newTestLedger(cfg, nil)
	ctx := context.Background()

	require.NoError(t, l.Open(ctx, openPosition("p1", 0.10, 100)))
	require.NoError(t, l.Open(ctx, openPosition("p2", 0.10, 100)))
	assert.False(t, l.CanOpen(10))
}

func TestCanOpenDailyLossGate(t *testing.T) {
	cfg := testCfg()
	cfg.DailyLossLimit = 5
	l := newTestLedger(cfg, nil)
	ctx := context.Background()

	require.NoError(t, l.Open(ctx, openPosition("p1", 0.50, 100)))
	l.EvaluateAll(ctx, quoteAt(0.40)) // realize a 10 loss

	assert.True(t, l.DailyLossLimitReached())
	assert.False(t, l.CanOpen(10))
}

func TestMaybeResetDaily(t *testing.T) {
	l := newTestLedger(testCfg(), nil)
	ctx := context.Background()

	require.NoError(t, l.Open(ctx, openPosition("p1", 0.50, 100)))
	l.EvaluateAll(ctx, quoteAt(0.40))
	require.InDelta(t, 10.0, l.DailyLoss(), 1e-9)

	assert.False(t, l.MaybeResetDaily(ctx), "same day, no reset")

	l.now = func() time.Time { return t0.Add(25 * time.Hour) }
	assert.True(t, l.MaybeResetDaily(ctx))
	assert.Zero(t, l.DailyLoss())
	m := l.Metrics()
	assert.Zero(t, m.DailyPnL)
	assert.Equal(t, 1, m.TotalTrades, "lifetime metrics survive")
}

// memStore is an in-memory LedgerStore.
type memStore struct {
	snap  domain.LedgerSnapshot
	saved int
	err   error
}

func (s *memStore) SaveSnapshot(_ context.Context, snap domain.LedgerSnapshot) error {
	if s.err != nil {
		return s.err
	}
	s.snap = snap
	s.saved++
	return nil
}

func (s *memStore) LoadSnapshot(context.Context) (domain.LedgerSnapshot, error) {
	if s.err != nil {
		return domain.LedgerSnapshot{}, s.err
	}
	return s.snap, nil
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := &memStore{}
	l := newTestLedger(testCfg(), store)
	ctx := context.Background()

	require.NoError(t, l.Open(ctx, openPosition("p1", 0.50, 100)))
	require.NoError(t, l.Open(ctx, openPosition("p2", 0.30, 100)))
	l.EvaluateAll(ctx, quoteAt(0.20)) // closes both at a loss
	require.Greater(t, store.saved, 0)

	restored := newTestLedger(testCfg(), store)
	restored.Restore(ctx)

	assert.Equal(t, l.OpenCount(), restored.OpenCount())
	assert.Len(t, restored.ClosedPositions(), 2)
	assert.InDelta(t, l.DailyLoss(), restored.DailyLoss(), 1e-9)
	assert.Equal(t, l.Metrics().TotalTrades, restored.Metrics().TotalTrades)
}

func TestRestoreFailureYieldsEmptyLedger(t *testing.T) {
	store := &memStore{err: errors.New("connection refused")}
	l := newTestLedger(testCfg(), store)
	l.Restore(context.Background())

	assert.Zero(t, l.OpenCount())
	assert.Empty(t, l.ClosedPositions())
}

func TestManualClose(t *testing.T) {
	l := newTestLedger(testCfg(), nil)
	ctx := context.Background()
	require.NoError(t, l.Open(ctx, openPosition("p1", 0.50, 100)))

	p, err := l.Close(ctx, "p1", domain.ExitManual)
	require.NoError(t, err)
	assert.Equal(t, domain.ExitManual, *p.ExitReason)

	_, err = l.Close(ctx, "p1", domain.ExitManual)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
