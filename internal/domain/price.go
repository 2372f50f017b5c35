package domain

import "time"

// PriceSample is one observation from an external reference feed. Samples are
// immutable once created.
type PriceSample struct {
	Source    string // feed id, e.g. "binance"
	Symbol    string // raw feed symbol, e.g. "BTCUSDT"
	Price     float64
	Timestamp time.Time
	Metadata  map[string]string
}
