// Package polymarket provides the venue clients: Gamma market discovery and
// CLOB order execution.
package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"polyarb/internal/domain"
)

// cryptoSearchTerms are queried individually because the sub-hour crypto
// markets rarely surface in the general listing.
var cryptoSearchTerms = []string{"bitcoin", "ethereum", "btc", "eth", "xrp", "solana"}

// Scanner discovers tradable contracts via the Gamma API. It keeps the last
// successful scan cached so a transient API failure degrades to slightly
// stale data instead of an empty market set.
type Scanner struct {
	baseURL    string
	limit      int
	httpClient *http.Client
	logger     *slog.Logger

	mu    sync.RWMutex
	cache map[string]domain.Contract
	now   func() time.Time
}

// NewScanner creates a Gamma scanner.
//
// baseURL is the Gamma API root, e.g. "https://gamma-api.polymarket.com".
// limit bounds the general market listing per scan.
func NewScanner(baseURL string, limit int, logger *slog.Logger) *Scanner {
	if limit <= 0 {
		limit = 1000
	}
	return &Scanner{
		baseURL: baseURL,
		limit:   limit,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With(slog.String("component", "gamma_scanner")),
		cache:  make(map[string]domain.Contract),
		now:    time.Now,
	}
}

// ListContracts scans the venue with three strategies: the general active
// listing, markets sorted by soonest end date, and per-asset crypto searches.
// Results are deduplicated by condition id. When every strategy fails the
// previous scan's contracts are returned.
func (s *Scanner) ListContracts(ctx context.Context) ([]domain.Contract, error) {
	seen := make(map[string]bool)
	var raw []APIMarket

	collect := func(markets []APIMarket) int {
		added := 0
		for _, m := range markets {
			if m.ConditionID == "" || seen[m.ConditionID] {
				continue
			}
			seen[m.ConditionID] = true
			raw = append(raw, m)
			added++
		}
		return added
	}

	general, err := s.fetchMarkets(ctx, url.Values{
		"active": {"true"},
		"closed": {"false"},
		"limit":  {strconv.Itoa(s.limit)},
	})
	if err != nil {
		s.logger.Warn("general market fetch failed", slog.String("error", err.Error()))
	} else {
		collect(general)
	}

	closingSoon, err := s.fetchMarkets(ctx, url.Values{
		"active": {"true"},
		"closed": {"false"},
		"limit":  {strconv.Itoa(s.limit / 2)},
		"order":  {"end_date_min"},
	})
	if err != nil {
		s.logger.Debug("closing-soon fetch failed", slog.String("error", err.Error()))
	} else {
		collect(closingSoon)
	}

	for _, term := range cryptoSearchTerms {
		results, err := s.fetchMarkets(ctx, url.Values{
			"active": {"true"},
			"closed": {"false"},
			"limit":  {"100"},
			"search": {term},
		})
		if err != nil {
			s.logger.Debug("crypto search failed",
				slog.String("term", term), slog.String("error", err.Error()))
			continue
		}
		collect(results)
	}

	if len(raw) == 0 {
		s.mu.RLock()
		cached := make([]domain.Contract, 0, len(s.cache))
		for _, c := range s.cache {
			cached = append(cached, c)
		}
		s.mu.RUnlock()
		s.logger.Warn("scan produced no markets, serving cache", slog.Int("cached", len(cached)))
		return cached, nil
	}

	now := s.now().UTC()
	contracts := make([]domain.Contract, 0, len(raw))
	s.mu.Lock()
	for i := range raw {
		c, ok := raw[i].ToContract(now)
		if !ok {
			continue
		}
		contracts = append(contracts, c)
		s.cache[c.ID] = c
	}
	s.mu.Unlock()

	s.logger.Info("scanned venue markets",
		slog.Int("fetched", len(raw)),
		slog.Int("monitored", len(contracts)))
	return contracts, nil
}

// Contract returns the cached contract for a condition id from the most
// recent scan.
func (s *Scanner) Contract(conditionID string) (domain.Contract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[conditionID]
	return c, ok
}

func (s *Scanner) fetchMarkets(ctx context.Context, params url.Values) ([]APIMarket, error) {
	path := s.baseURL + "/markets?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("polymarket/gamma: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var markets []APIMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}
	return markets, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
