package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

const coinbaseWSURL = "wss://ws-feed.exchange.coinbase.com"

// CoinbaseMonitor subscribes to the ticker channel for each tracked asset on
// a single connection and feeds ticker prices into the aggregator.
type CoinbaseMonitor struct {
	aggregator *PriceAggregator
	assets     []string
	logger     *slog.Logger
}

// NewCoinbaseMonitor creates a monitor for the given canonical assets.
func NewCoinbaseMonitor(aggregator *PriceAggregator, assets []string, logger *slog.Logger) *CoinbaseMonitor {
	return &CoinbaseMonitor{
		aggregator: aggregator,
		assets:     assets,
		logger:     logger.With(slog.String("component", "coinbase_feed")),
	}
}

// Run connects, subscribes and blocks until ctx is cancelled, reconnecting
// with a fixed delay on any failure.
func (m *CoinbaseMonitor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delay, err := m.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn("coinbase stream dropped, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *CoinbaseMonitor) runConnection(ctx context.Context) (time.Duration, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, coinbaseWSURL, nil)
	if err != nil {
		return dialDelay, fmt.Errorf("feed: coinbase dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	products := make([]string, len(m.assets))
	for i, asset := range m.assets {
		products[i] = asset + "-USD"
	}
	sub := map[string]any{
		"type":        "subscribe",
		"product_ids": products,
		"channels":    []string{"ticker"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return dialDelay, fmt.Errorf("feed: coinbase subscribe: %w", err)
	}
	m.logger.Info("connected to coinbase stream", slog.Int("products", len(products)))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return readDelay, fmt.Errorf("feed: coinbase read: %w", err)
		}
		if product, price, ok := parseCoinbaseTicker(msg); ok {
			m.aggregator.Update(product, "coinbase", price)
		}
	}
}

// parseCoinbaseTicker extracts the product id and price from a ticker
// message. Non-ticker and malformed messages are dropped.
func parseCoinbaseTicker(msg []byte) (string, float64, bool) {
	var tick struct {
		Type      string `json:"type"`
		ProductID string `json:"product_id"`
		Price     string `json:"price"`
	}
	if err := json.Unmarshal(msg, &tick); err != nil {
		return "", 0, false
	}
	if tick.Type != "ticker" {
		return "", 0, false
	}
	price, err := strconv.ParseFloat(tick.Price, 64)
	if err != nil || price <= 0 {
		return "", 0, false
	}
	return tick.ProductID, price, true
}
