package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

const binanceWSBase = "wss://stream.binance.com:9443/ws"

// readDelay and dialDelay are the fixed reconnect waits after a dropped
// connection and after a failed dial respectively.
const (
	readDelay = 2 * time.Second
	dialDelay = 5 * time.Second
)

// BinanceMonitor subscribes to the per-symbol trade stream for each tracked
// asset and feeds every trade price into the aggregator.
type BinanceMonitor struct {
	aggregator *PriceAggregator
	assets     []string
	logger     *slog.Logger
}

// NewBinanceMonitor creates a monitor for the given canonical assets
// (e.g. BTC, ETH).
func NewBinanceMonitor(aggregator *PriceAggregator, assets []string, logger *slog.Logger) *BinanceMonitor {
	return &BinanceMonitor{
		aggregator: aggregator,
		assets:     assets,
		logger:     logger.With(slog.String("component", "binance_feed")),
	}
}

// Run opens one stream per asset and blocks until ctx is cancelled. Each
// stream reconnects independently with a fixed delay.
func (m *BinanceMonitor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, asset := range m.assets {
		symbol := strings.ToLower(asset) + "usdt"
		g.Go(func() error {
			return m.monitorSymbol(ctx, symbol)
		})
	}
	return g.Wait()
}

func (m *BinanceMonitor) monitorSymbol(ctx context.Context, symbol string) error {
	url := fmt.Sprintf("%s/%s@trade", binanceWSBase, symbol)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delay, err := m.runConnection(ctx, url, symbol)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn("binance stream dropped, reconnecting",
			slog.String("symbol", symbol), slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (m *BinanceMonitor) runConnection(ctx context.Context, url, symbol string) (time.Duration, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return dialDelay, fmt.Errorf("feed: binance dial: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	m.logger.Info("connected to binance stream", slog.String("symbol", symbol))

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return readDelay, fmt.Errorf("feed: binance read: %w", err)
		}
		if price, ok := parseBinanceTrade(msg); ok {
			m.aggregator.Update(symbol, "binance", price)
		}
	}
}

// parseBinanceTrade extracts the trade price from a binance trade stream
// message: {"p": "price", "q": "quantity", "T": timestamp}. Malformed
// messages are dropped.
func parseBinanceTrade(msg []byte) (float64, bool) {
	var trade struct {
		Price string `json:"p"`
	}
	if err := json.Unmarshal(msg, &trade); err != nil {
		return 0, false
	}
	price, err := strconv.ParseFloat(trade.Price, 64)
	if err != nil || price <= 0 {
		return 0, false
	}
	return price, true
}
