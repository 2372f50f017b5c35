// Package feed ingests real-time reference prices from exchange WebSocket
// streams and aggregates them into one robust price per asset.
package feed

import (
	"sort"
	"strings"
	"sync"
	"time"

	"polyarb/internal/domain"
)

// historyCapacity bounds the per-asset rolling sample history.
const historyCapacity = 100

// PriceAggregator merges price ticks from multiple exchanges for the same
// underlying asset. All methods are safe for concurrent use; each feed
// goroutine writes and the scan loops read.
type PriceAggregator struct {
	mu      sync.RWMutex
	latest  map[string]map[string]float64 // asset -> source -> last price
	history map[string][]domain.PriceSample
}

// NewPriceAggregator returns an empty aggregator.
func NewPriceAggregator() *PriceAggregator {
	return &PriceAggregator{
		latest:  make(map[string]map[string]float64),
		history: make(map[string][]domain.PriceSample),
	}
}

// Update records a price tick from one source. Non-positive prices are
// dropped silently. The raw symbol is normalized so that BTC-USD, BTCUSDT and
// XBT/USD all land on the same asset key.
func (a *PriceAggregator) Update(rawSymbol, source string, price float64) {
	if price <= 0 {
		return
	}
	asset := NormalizeSymbol(rawSymbol)

	a.mu.Lock()
	defer a.mu.Unlock()

	bySource, ok := a.latest[asset]
	if !ok {
		bySource = make(map[string]float64)
		a.latest[asset] = bySource
	}
	bySource[source] = price

	hist := append(a.history[asset], domain.PriceSample{
		Source:    source,
		Symbol:    asset,
		Price:     price,
		Timestamp: time.Now().UTC(),
	})
	if len(hist) > historyCapacity {
		hist = hist[len(hist)-historyCapacity:]
	}
	a.history[asset] = hist
}

// BestPrice returns the median of the latest price from each known source for
// the asset. One source returns its price directly; an even source count
// returns the mean of the two middle values. ErrNoPrice is returned when no
// source has reported yet.
func (a *PriceAggregator) BestPrice(symbol string) (float64, error) {
	asset := NormalizeSymbol(symbol)

	a.mu.RLock()
	defer a.mu.RUnlock()

	bySource := a.latest[asset]
	if len(bySource) == 0 {
		return 0, domain.ErrNoPrice
	}

	prices := make([]float64, 0, len(bySource))
	for _, p := range bySource {
		prices = append(prices, p)
	}
	if len(prices) == 1 {
		return prices[0], nil
	}

	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 0 {
		return (prices[mid-1] + prices[mid]) / 2, nil
	}
	return prices[mid], nil
}

// History returns up to count of the most recent prices for the asset in
// chronological order.
func (a *PriceAggregator) History(symbol string, count int) []float64 {
	if count <= 0 {
		return nil
	}
	asset := NormalizeSymbol(symbol)

	a.mu.RLock()
	defer a.mu.RUnlock()

	hist := a.history[asset]
	if count < len(hist) {
		hist = hist[len(hist)-count:]
	}
	out := make([]float64, len(hist))
	for i, s := range hist {
		out[i] = s.Price
	}
	return out
}

// knownAssets are the canonical asset keys; any raw symbol containing one of
// the listed substrings maps to the key.
var knownAssets = []struct {
	key     string
	matches []string
}{
	{"BTC", []string{"BTC", "XBT"}},
	{"ETH", []string{"ETH"}},
	{"XRP", []string{"XRP"}},
	{"SOL", []string{"SOL"}},
}

// NormalizeSymbol collapses exchange-specific symbols (BTC-USD, BTCUSDT,
// XBT/USD) onto a canonical asset key. Unrecognized symbols pass through
// uppercased.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	for _, a := range knownAssets {
		for _, m := range a.matches {
			if strings.Contains(s, m) {
				return a.key
			}
		}
	}
	return s
}
