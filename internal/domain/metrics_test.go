package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func closedWith(pnl float64, class ContractClass) *Position {
	return &Position{RealizedPnL: pnl, Class: class, Status: PositionClosedWin}
}

func TestMetricsAccumulation(t *testing.T) {
	m := NewPerformanceMetrics(time.Now())

	m.AddClosedPosition(closedWith(25, ClassCrypto5m))
	m.AddClosedPosition(closedWith(-10, ClassCrypto5m))
	m.AddClosedPosition(closedWith(0, ClassCrypto1h))
	m.AddClosedPosition(closedWith(40, ClassCrypto1h))

	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.WinningTrades)
	assert.Equal(t, 1, m.LosingTrades)
	assert.Equal(t, 1, m.BreakEvenTrades)
	assert.InDelta(t, 55.0, m.TotalPnL, 1e-9)
	assert.InDelta(t, 40.0, m.LargestWin, 1e-9)
	assert.InDelta(t, -10.0, m.LargestLoss, 1e-9)
	assert.InDelta(t, 15.0, m.PnLByClass[ClassCrypto5m], 1e-9)
	assert.Equal(t, 2, m.TradesByClass[ClassCrypto1h])
	assert.InDelta(t, 50.0, m.WinRate(), 1e-9)
}

func TestMetricsDailyReset(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewPerformanceMetrics(start)
	m.AddClosedPosition(closedWith(30, ClassCrypto15m))

	assert.InDelta(t, 30.0, m.DailyPnL, 1e-9)
	assert.Equal(t, 1, m.DailyTrades)

	next := start.Add(24 * time.Hour)
	m.ResetDaily(next)

	assert.Zero(t, m.DailyPnL)
	assert.Zero(t, m.DailyTrades)
	assert.Equal(t, next, m.LastReset)
	// Lifetime aggregates survive the reset.
	assert.Equal(t, 1, m.TotalTrades)
	assert.InDelta(t, 30.0, m.TotalPnL, 1e-9)
}

func TestMetricsROI(t *testing.T) {
	m := NewPerformanceMetrics(time.Now())
	assert.Zero(t, m.ROI())
	m.TotalInvested = 500
	m.TotalPnL = 50
	assert.InDelta(t, 10.0, m.ROI(), 1e-9)
}
