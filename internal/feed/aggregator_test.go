package feed

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polyarb/internal/domain"
)

func TestNormalizeSymbol(t *testing.T) {
	cases := map[string]string{
		"BTCUSDT": "BTC",
		"BTC-USD": "BTC",
		"XBT/USD": "BTC",
		"ethusdt": "ETH",
		"SOL-USD": "SOL",
		"XRP/USD": "XRP",
		"doge":    "DOGE",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeSymbol(raw), "raw %q", raw)
	}
}

func TestBestPriceSingleSource(t *testing.T) {
	a := NewPriceAggregator()
	a.Update("BTCUSDT", "binance", 97000.5)

	p, err := a.BestPrice("BTC")
	require.NoError(t, err)
	assert.Equal(t, 97000.5, p)
}

func TestBestPriceMedian(t *testing.T) {
	a := NewPriceAggregator()
	a.Update("BTCUSDT", "binance", 100)
	a.Update("BTC-USD", "coinbase", 104)
	a.Update("XBT/USD", "kraken", 90) // outlier

	p, err := a.BestPrice("BTC")
	require.NoError(t, err)
	assert.Equal(t, 100.0, p, "odd source count takes the middle value")

	// Even source count averages the two middle values.
	a.Update("BTC-PERP", "deribit", 102)
	p, err = a.BestPrice("BTC")
	require.NoError(t, err)
	assert.Equal(t, 101.0, p)
}

func TestBestPriceUnknownAsset(t *testing.T) {
	a := NewPriceAggregator()
	_, err := a.BestPrice("BTC")
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestUpdateRejectsNonPositive(t *testing.T) {
	a := NewPriceAggregator()
	a.Update("BTCUSDT", "binance", 0)
	a.Update("BTCUSDT", "binance", -5)

	_, err := a.BestPrice("BTC")
	assert.ErrorIs(t, err, domain.ErrNoPrice)
	assert.Empty(t, a.History("BTC", 10))
}

func TestHistoryBoundedAndChronological(t *testing.T) {
	a := NewPriceAggregator()
	for i := 1; i <= 150; i++ {
		a.Update("ETHUSDT", "binance", float64(i))
	}

	full := a.History("ETH", 200)
	require.Len(t, full, historyCapacity)
	assert.Equal(t, 51.0, full[0])
	assert.Equal(t, 150.0, full[len(full)-1])

	last5 := a.History("ETH", 5)
	assert.Equal(t, []float64{146, 147, 148, 149, 150}, last5)
}

func TestHistoryNonPositiveCount(t *testing.T) {
	a := NewPriceAggregator()
	a.Update("ETHUSDT", "binance", 4000)

	assert.Nil(t, a.History("ETH", 0))
	assert.Nil(t, a.History("ETH", -3))
}

func TestHistorySeparatePerAsset(t *testing.T) {
	a := NewPriceAggregator()
	a.Update("BTCUSDT", "binance", 100)
	a.Update("ETHUSDT", "binance", 4000)

	assert.Equal(t, []float64{100}, a.History("BTC", 10))
	assert.Equal(t, []float64{4000}, a.History("ETH", 10))
}

func TestParseBinanceTrade(t *testing.T) {
	price, ok := parseBinanceTrade([]byte(`{"e":"trade","p":"97123.45","q":"0.01","T":1700000000000}`))
	require.True(t, ok)
	assert.Equal(t, 97123.45, price)

	for _, msg := range []string{`{"p":"0"}`, `{"p":"abc"}`, `{}`, `not json`} {
		_, ok := parseBinanceTrade([]byte(msg))
		assert.False(t, ok, "msg %q", msg)
	}
}

func TestParseCoinbaseTicker(t *testing.T) {
	product, price, ok := parseCoinbaseTicker([]byte(`{"type":"ticker","product_id":"BTC-USD","price":"97100.10"}`))
	require.True(t, ok)
	assert.Equal(t, "BTC-USD", product)
	assert.Equal(t, 97100.10, price)

	_, _, ok = parseCoinbaseTicker([]byte(`{"type":"subscriptions"}`))
	assert.False(t, ok)
	_, _, ok = parseCoinbaseTicker([]byte(`{"type":"ticker","product_id":"BTC-USD","price":"-1"}`))
	assert.False(t, ok)
}

func TestParseKrakenTicker(t *testing.T) {
	frame := `[340,{"a":["97200.1","1","1.0"],"c":["97150.55","0.002"]},"ticker","XBT/USD"]`
	pair, price, ok := parseKrakenTicker([]byte(frame))
	require.True(t, ok)
	assert.Equal(t, "XBT/USD", pair)
	assert.Equal(t, 97150.55, price)

	for _, msg := range []string{
		`{"event":"heartbeat"}`,
		`[340,{"c":["1.0"]},"spread","XBT/USD"]`,
		`[340,{},"ticker","XBT/USD"]`,
	} {
		_, _, ok := parseKrakenTicker([]byte(msg))
		assert.False(t, ok, "msg %q", msg)
	}
}

func TestBestPriceMedianProperty(t *testing.T) {
	// With an odd number of sources the median must be one of the inputs.
	a := NewPriceAggregator()
	inputs := []float64{99.5, 101.25, 100.0, 98.75, 102.5}
	for i, p := range inputs {
		a.Update("SOL-USD", fmt.Sprintf("src%d", i), p)
	}
	p, err := a.BestPrice("SOL")
	require.NoError(t, err)
	assert.Contains(t, inputs, p)
	assert.Equal(t, 100.0, p)
}
