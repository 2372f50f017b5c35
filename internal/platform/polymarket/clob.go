package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"polyarb/internal/domain"
)

// ExecutorConfig configures the CLOB executor.
type ExecutorConfig struct {
	BaseURL      string
	ApiKey       string
	PaperTrading bool
	Logger       *slog.Logger
}

// Executor places orders on the Polymarket CLOB. In paper mode (or with no
// API key) orders are simulated: a paper_-prefixed order id is returned and
// the caller books the fill exactly like a real one.
type Executor struct {
	baseURL    string
	apiKey     string
	paper      bool
	httpClient *http.Client
	logger     *slog.Logger
}

// NewExecutor creates a CLOB executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.ApiKey,
		paper:   cfg.PaperTrading || cfg.ApiKey == "",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: cfg.Logger.With(slog.String("component", "clob_executor")),
	}
}

// orderRequest is the CLOB order payload. Market orders are used for speed;
// size and price travel as strings.
type orderRequest struct {
	TokenID string `json:"token_id"`
	Side    string `json:"side"`
	Type    string `json:"type"`
	Size    string `json:"size"`
	Price   string `json:"price"`
}

// PlaceOrder buys sizeUSD worth of the chosen side at the given price and
// returns the venue order id. Any error means no fill happened.
func (e *Executor) PlaceOrder(ctx context.Context, contract domain.Contract, side domain.Side, sizeUSD, price float64) (string, error) {
	if price <= 0 {
		return "", fmt.Errorf("polymarket/clob: place order: non-positive price %g", price)
	}
	shares := sizeUSD / price

	e.logger.Info("placing order",
		slog.String("contract_id", contract.ID),
		slog.String("side", string(side)),
		slog.Float64("shares", shares),
		slog.Float64("price", price))

	if e.paper {
		orderID := domain.PaperOrderPrefix + uuid.NewString()
		e.logger.Info("paper trade simulated", slog.String("order_id", orderID))
		return orderID, nil
	}

	payload, err := json.Marshal(orderRequest{
		TokenID: contract.TokenFor(side),
		Side:    "BUY",
		Type:    "MARKET",
		Size:    strconv.FormatFloat(shares, 'f', -1, 64),
		Price:   strconv.FormatFloat(price, 'f', -1, 64),
	})
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/order", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: place order: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("polymarket/clob: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("polymarket/clob: %w: status %d: %s",
			domain.ErrExecutionFailed, resp.StatusCode, truncate(body, 200))
	}

	var result struct {
		OrderID string `json:"orderID"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("polymarket/clob: decode response: %w", err)
	}
	if result.OrderID == "" {
		return "", fmt.Errorf("polymarket/clob: %w: empty order id", domain.ErrExecutionFailed)
	}

	e.logger.Info("order placed", slog.String("order_id", result.OrderID))
	return result.OrderID, nil
}
