package domain

import (
	"context"
	"strings"
	"time"
)

// PaperOrderPrefix marks order ids returned for simulated (paper) fills. The
// ledger books them exactly like real fills.
const PaperOrderPrefix = "paper_"

// IsPaperOrder reports whether an order id belongs to a simulated fill.
func IsPaperOrder(orderID string) bool {
	return strings.HasPrefix(orderID, PaperOrderPrefix)
}

// ContractSource supplies venue contract snapshots. Identity across polls is
// only guaranteed by Contract.ID.
type ContractSource interface {
	ListContracts(ctx context.Context) ([]Contract, error)
}

// OrderExecutor places orders on the venue. A returned error means no fill
// happened and no position may be created.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, contract Contract, side Side, sizeUSD, price float64) (string, error)
}

// LedgerSnapshot is the persisted state of the position ledger.
type LedgerSnapshot struct {
	OpenPositions   []Position
	ClosedPositions []Position
	Metrics         PerformanceMetrics
	DailyLoss       float64
	LastDailyReset  time.Time
}

// LedgerStore persists and restores ledger snapshots. A load with no saved
// state returns an empty snapshot and no error.
type LedgerStore interface {
	SaveSnapshot(ctx context.Context, snap LedgerSnapshot) error
	LoadSnapshot(ctx context.Context) (LedgerSnapshot, error)
}

// PriceCache shares the latest aggregated reference price per asset with
// other processes. Implementations are best-effort; the in-process aggregator
// remains the source of truth.
type PriceCache interface {
	SetPrice(ctx context.Context, asset string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
}

// SignalBus publishes bot events (detected opportunities, executed trades,
// closed positions) for external consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
