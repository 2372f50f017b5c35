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

const krakenWSURL = "wss://ws.kraken.com"

// krakenPair maps a canonical asset to Kraken's pair notation.
func krakenPair(asset string) string {
	if asset == "BTC" {
		return "XBT/USD"
	}
	return asset + "/USD"
}

// KrakenMonitor subscribes to the ticker channel for each tracked asset on a
// single connection and feeds last-trade prices into the aggregator.
type KrakenMonitor struct {
	aggregator *PriceAggregator
	assets     []string
	logger     *slog.Logger
}

// NewKrakenMonitor creates a monitor for the given canonical assets.
func NewKrakenMonitor(aggregator *PriceAggregator, assets []string, logger *slog.Logger) *KrakenMonitor {
	return &KrakenMonitor{
		aggregator: aggregator,
		assets:     assets,
		logger:     logger.With(slog.String("component", "kraken_feed")),
	}
}

// Run connects, subscribes and blocks until ctx is cancelled, reconnecting
// with a fixed delay on any failure.
func (m *KrakenMonitor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delay, err := m.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn("kraken stream dropped, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *KrakenMonitor) runConnection(ctx context.Context) (time.Duration, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, krakenWSURL, nil)
	if err != nil {
		return dialDelay, fmt.Errorf("feed: kraken dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	pairs := make([]string, len(m.assets))
	for i, asset := range m.assets {
		pairs[i] = krakenPair(asset)
	}
	sub := map[string]any{
		"event":        "subscribe",
		"pair":         pairs,
		"subscription": map[string]string{"name": "ticker"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return dialDelay, fmt.Errorf("feed: kraken subscribe: %w", err)
	}
	m.logger.Info("connected to kraken stream", slog.Int("pairs", len(pairs)))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return readDelay, fmt.Errorf("feed: kraken read: %w", err)
		}
		if pair, price, ok := parseKrakenTicker(msg); ok {
			m.aggregator.Update(pair, "kraken", price)
		}
	}
}

// parseKrakenTicker extracts the pair and last trade price from a Kraken
// ticker frame. Ticker frames are arrays:
// [channelID, {"c": ["price", ...], ...}, "ticker", "XBT/USD"].
// Event objects and malformed frames are dropped.
func parseKrakenTicker(msg []byte) (string, float64, bool) {
	var frame []json.RawMessage
	if err := json.Unmarshal(msg, &frame); err != nil || len(frame) < 4 {
		return "", 0, false
	}

	var channel string
	if err := json.Unmarshal(frame[2], &channel); err != nil || channel != "ticker" {
		return "", 0, false
	}
	var pair string
	if err := json.Unmarshal(frame[3], &pair); err != nil {
		return "", 0, false
	}

	var ticker struct {
		Close []string `json:"c"`
	}
	if err := json.Unmarshal(frame[1], &ticker); err != nil || len(ticker.Close) == 0 {
		return "", 0, false
	}
	price, err := strconv.ParseFloat(ticker.Close[0], 64)
	if err != nil || price <= 0 {
		return "", 0, false
	}
	return pair, price, true
}
