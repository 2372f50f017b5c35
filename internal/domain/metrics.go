package domain

import "time"

// PerformanceMetrics accumulates aggregate results over all closed positions.
// Only the daily subset is ever reset; the rest grows monotonically.
type PerformanceMetrics struct {
	TotalTrades     int
	WinningTrades   int
	LosingTrades    int
	BreakEvenTrades int

	TotalPnL      float64
	TotalInvested float64
	LargestWin    float64
	LargestLoss   float64

	PnLByClass    map[ContractClass]float64
	TradesByClass map[ContractClass]int

	DailyPnL    float64
	DailyTrades int
	LastReset   time.Time
}

// NewPerformanceMetrics returns an empty metrics accumulator.
func NewPerformanceMetrics(now time.Time) *PerformanceMetrics {
	return &PerformanceMetrics{
		PnLByClass:    make(map[ContractClass]float64),
		TradesByClass: make(map[ContractClass]int),
		LastReset:     now,
	}
}

// AddClosedPosition folds one closed position into the aggregates.
func (m *PerformanceMetrics) AddClosedPosition(p *Position) {
	m.TotalTrades++
	m.TotalPnL += p.RealizedPnL
	m.DailyPnL += p.RealizedPnL
	m.DailyTrades++

	switch {
	case p.RealizedPnL > 0:
		m.WinningTrades++
		if p.RealizedPnL > m.LargestWin {
			m.LargestWin = p.RealizedPnL
		}
	case p.RealizedPnL < 0:
		m.LosingTrades++
		if p.RealizedPnL < m.LargestLoss {
			m.LargestLoss = p.RealizedPnL
		}
	default:
		m.BreakEvenTrades++
	}

	if m.PnLByClass == nil {
		m.PnLByClass = make(map[ContractClass]float64)
	}
	if m.TradesByClass == nil {
		m.TradesByClass = make(map[ContractClass]int)
	}
	m.PnLByClass[p.Class] += p.RealizedPnL
	m.TradesByClass[p.Class]++
}

// Clone returns a deep copy, detaching the per-class maps.
func (m *PerformanceMetrics) Clone() PerformanceMetrics {
	out := *m
	out.PnLByClass = make(map[ContractClass]float64, len(m.PnLByClass))
	for k, v := range m.PnLByClass {
		out.PnLByClass[k] = v
	}
	out.TradesByClass = make(map[ContractClass]int, len(m.TradesByClass))
	for k, v := range m.TradesByClass {
		out.TradesByClass[k] = v
	}
	return out
}

// WinRate returns the percentage of closed trades that were winners.
func (m *PerformanceMetrics) WinRate() float64 {
	if m.TotalTrades == 0 {
		return 0
	}
	return float64(m.WinningTrades) / float64(m.TotalTrades) * 100
}

// ROI returns total P&L over total invested, as a percentage.
func (m *PerformanceMetrics) ROI() float64 {
	if m.TotalInvested == 0 {
		return 0
	}
	return m.TotalPnL / m.TotalInvested * 100
}

// ResetDaily clears the per-day counters and stamps the reset time.
func (m *PerformanceMetrics) ResetDaily(now time.Time) {
	m.DailyPnL = 0
	m.DailyTrades = 0
	m.LastReset = now
}
