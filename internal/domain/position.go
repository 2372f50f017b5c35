package domain

import (
	"fmt"
	"time"
)

// PositionStatus tracks the lifecycle of a position. A position is OPEN until
// exactly one exit transition moves it to a terminal closed status.
type PositionStatus string

const (
	PositionOpen            PositionStatus = "open"
	PositionClosedWin       PositionStatus = "closed_win"
	PositionClosedLoss      PositionStatus = "closed_loss"
	PositionClosedBreakEven PositionStatus = "closed_break_even"
)

// Closed reports whether the status is terminal.
func (s PositionStatus) Closed() bool {
	return s != PositionOpen
}

// ExitReason records which exit condition closed a position.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "profit_target"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTimeLimit    ExitReason = "time_limit"
	ExitSmart        ExitReason = "smart_exit"
	ExitManual       ExitReason = "manual"
	ExitResolved     ExitReason = "resolved"
)

// Position is an open or closed trading position. The ledger mutates the
// current-price fields on every tick and the exit fields exactly once; after
// the exit a position is immutable except for archival.
type Position struct {
	ID         string
	Contract   Contract
	Side       Side
	EntryPrice float64
	Shares     float64
	CostBasis  float64 // total currency spent

	EntryTime   time.Time
	EntryReason string
	Class       ContractClass

	Status        PositionStatus
	CurrentPrice  float64
	CurrentValue  float64
	UnrealizedPnL float64

	ExitTime    *time.Time
	ExitPrice   *float64
	ExitReason  *ExitReason
	RealizedPnL float64

	MaxPrice float64
	MinPrice float64
}

// NewPosition books a filled opportunity as an open position. orderID becomes
// the position id, so paper and live fills are distinguishable in the ledger.
func NewPosition(o Opportunity, orderID string, now time.Time) *Position {
	return &Position{
		ID:           orderID,
		Contract:     o.Contract,
		Side:         o.Side,
		EntryPrice:   o.VenuePrice,
		Shares:       o.RecommendedSize / o.VenuePrice,
		CostBasis:    o.RecommendedSize,
		EntryTime:    now,
		EntryReason:  fmt.Sprintf("edge %.1f%%, confidence %.2f", o.EdgePercent, o.Confidence),
		Class:        o.Contract.Class,
		Status:       PositionOpen,
		CurrentPrice: o.VenuePrice,
		CurrentValue: o.RecommendedSize,
		MaxPrice:     o.VenuePrice,
		MinPrice:     o.VenuePrice,
	}
}

// UpdateCurrentPrice refreshes the mark and recomputes value, unrealized P&L,
// and the running high/low water marks.
func (p *Position) UpdateCurrentPrice(price float64) {
	p.CurrentPrice = price
	p.CurrentValue = p.Shares * price
	p.UnrealizedPnL = p.CurrentValue - p.CostBasis

	if price > p.MaxPrice {
		p.MaxPrice = price
	}
	if p.MinPrice == 0 || price < p.MinPrice {
		p.MinPrice = price
	}
}

// ROI returns the position's return on cost basis as a percentage, using the
// unrealized P&L while open and the realized P&L after exit.
func (p *Position) ROI() float64 {
	if p.CostBasis == 0 {
		return 0
	}
	if p.Status == PositionOpen {
		return p.UnrealizedPnL / p.CostBasis * 100
	}
	return p.RealizedPnL / p.CostBasis * 100
}

// HitProfitTarget reports whether ROI has reached the target percentage.
func (p *Position) HitProfitTarget(targetPercent float64) bool {
	return p.ROI() >= targetPercent
}

// HitStopLoss reports whether ROI has fallen to or below the negative stop.
func (p *Position) HitStopLoss(stopPercent float64) bool {
	return p.ROI() <= -stopPercent
}

// HitTimeLimit reports whether the position has been open for at least
// limitMinutes at the given instant.
func (p *Position) HitTimeLimit(limitMinutes int, now time.Time) bool {
	return now.Sub(p.EntryTime) >= time.Duration(limitMinutes)*time.Minute
}

// EVHold is the expected value of continuing to hold under a fixed 50/50
// resolution assumption: half the maximum payout minus half the cost basis.
// Deliberately simplistic; see EVSell.
func (p *Position) EVHold() float64 {
	const winProb = 0.5
	maxProfit := p.Shares * (1.0 - p.EntryPrice)
	return winProb*maxProfit - (1-winProb)*p.CostBasis
}

// EVSell is the guaranteed value of selling now: the unrealized P&L.
func (p *Position) EVSell() float64 {
	return p.UnrealizedPnL
}

// HoldDuration returns how long the position has been (or was) held.
func (p *Position) HoldDuration(now time.Time) time.Duration {
	if p.ExitTime != nil {
		return p.ExitTime.Sub(p.EntryTime)
	}
	return now.Sub(p.EntryTime)
}
