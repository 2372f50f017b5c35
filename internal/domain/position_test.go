package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPosition() *Position {
	return &Position{
		ID:         "pos-1",
		Contract:   Contract{ID: "c-1", Question: "Bitcoin Up or Down - 5PM ET"},
		Side:       SideYes,
		EntryPrice: 0.50,
		Shares:     100,
		CostBasis:  50,
		EntryTime:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Class:      ClassCrypto5m,
		Status:     PositionOpen,
	}
}

func TestUpdateCurrentPrice(t *testing.T) {
	p := newTestPosition()

	p.UpdateCurrentPrice(0.60)
	assert.Equal(t, 0.60, p.CurrentPrice)
	assert.InDelta(t, 60.0, p.CurrentValue, 1e-9)
	assert.InDelta(t, 10.0, p.UnrealizedPnL, 1e-9)
	assert.Equal(t, 0.60, p.MaxPrice)
	assert.Equal(t, 0.60, p.MinPrice)

	p.UpdateCurrentPrice(0.45)
	assert.Equal(t, 0.60, p.MaxPrice)
	assert.Equal(t, 0.45, p.MinPrice)
	assert.InDelta(t, -5.0, p.UnrealizedPnL, 1e-9)
}

func TestROIOpenVsClosed(t *testing.T) {
	p := newTestPosition()
	p.UpdateCurrentPrice(0.55)
	assert.InDelta(t, 10.0, p.ROI(), 1e-9)

	exit := 0.65
	reason := ExitProfitTarget
	now := p.EntryTime.Add(5 * time.Minute)
	p.Status = PositionClosedWin
	p.ExitTime = &now
	p.ExitPrice = &exit
	p.ExitReason = &reason
	p.RealizedPnL = 15

	assert.InDelta(t, 30.0, p.ROI(), 1e-9)
	assert.Equal(t, 5*time.Minute, p.HoldDuration(now.Add(time.Hour)))
}

func TestROIZeroCostBasis(t *testing.T) {
	p := &Position{Status: PositionOpen}
	assert.Zero(t, p.ROI())
}

func TestExitConditions(t *testing.T) {
	p := newTestPosition()

	p.UpdateCurrentPrice(0.75) // +50% ROI
	assert.True(t, p.HitProfitTarget(50))
	assert.False(t, p.HitStopLoss(20))

	p.UpdateCurrentPrice(0.40) // -20% ROI
	assert.False(t, p.HitProfitTarget(50))
	assert.True(t, p.HitStopLoss(20))

	limit := p.EntryTime.Add(30 * time.Minute)
	assert.False(t, p.HitTimeLimit(30, limit.Add(-time.Second)))
	assert.True(t, p.HitTimeLimit(30, limit))
}

func TestSmartExitExpectedValues(t *testing.T) {
	p := newTestPosition()
	p.UpdateCurrentPrice(0.80)

	// 0.5 * 100 * (1 - 0.5) - 0.5 * 50 = 0
	assert.InDelta(t, 0.0, p.EVHold(), 1e-9)
	assert.InDelta(t, 30.0, p.EVSell(), 1e-9)
	assert.Greater(t, p.EVSell(), p.EVHold())
}

func TestPositionStatusClosed(t *testing.T) {
	assert.False(t, PositionOpen.Closed())
	for _, s := range []PositionStatus{PositionClosedWin, PositionClosedLoss, PositionClosedBreakEven} {
		require.True(t, s.Closed(), "status %s", s)
	}
}
