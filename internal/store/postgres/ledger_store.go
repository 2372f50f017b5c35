package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"polyarb/internal/domain"
)

// LedgerStore implements domain.LedgerStore. Each save replaces the full
// snapshot in one transaction, so a restart restores exactly the last
// persisted state.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const positionInsert = `
	INSERT INTO positions (
		id, contract, side, class,
		entry_price, shares, cost_basis, entry_time, entry_reason,
		status, current_price, current_value, unrealized_pnl,
		exit_time, exit_price, exit_reason, realized_pnl,
		max_price, min_price, updated_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8, $9,
		$10, $11, $12, $13,
		$14, $15, $16, $17,
		$18, $19, NOW()
	)`

// SaveSnapshot replaces the persisted ledger state with the given snapshot.
func (s *LedgerStore) SaveSnapshot(ctx context.Context, snap domain.LedgerSnapshot) error {
	metricsJSON, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("postgres: encode metrics: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM positions"); err != nil {
		return fmt.Errorf("postgres: clear positions: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range snap.OpenPositions {
		if err := queuePosition(batch, &snap.OpenPositions[i]); err != nil {
			return err
		}
	}
	for i := range snap.ClosedPositions {
		if err := queuePosition(batch, &snap.ClosedPositions[i]); err != nil {
			return err
		}
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert positions: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO ledger_state (id, metrics, daily_loss, last_daily_reset, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			metrics = EXCLUDED.metrics,
			daily_loss = EXCLUDED.daily_loss,
			last_daily_reset = EXCLUDED.last_daily_reset,
			updated_at = NOW()`,
		metricsJSON, snap.DailyLoss, snap.LastDailyReset,
	); err != nil {
		return fmt.Errorf("postgres: upsert ledger state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit snapshot: %w", err)
	}
	return nil
}

func queuePosition(batch *pgx.Batch, p *domain.Position) error {
	contractJSON, err := json.Marshal(p.Contract)
	if err != nil {
		return fmt.Errorf("postgres: encode contract %s: %w", p.Contract.ID, err)
	}

	var exitReason *string
	if p.ExitReason != nil {
		r := string(*p.ExitReason)
		exitReason = &r
	}

	batch.Queue(positionInsert,
		p.ID, contractJSON, string(p.Side), string(p.Class),
		p.EntryPrice, p.Shares, p.CostBasis, p.EntryTime, p.EntryReason,
		string(p.Status), p.CurrentPrice, p.CurrentValue, p.UnrealizedPnL,
		p.ExitTime, p.ExitPrice, exitReason, p.RealizedPnL,
		p.MaxPrice, p.MinPrice,
	)
	return nil
}

// LoadSnapshot restores the last persisted snapshot. A fresh database yields
// an empty snapshot and no error.
func (s *LedgerStore) LoadSnapshot(ctx context.Context) (domain.LedgerSnapshot, error) {
	var snap domain.LedgerSnapshot

	var metricsJSON []byte
	err := s.pool.QueryRow(ctx,
		"SELECT metrics, daily_loss, last_daily_reset FROM ledger_state WHERE id = 1",
	).Scan(&metricsJSON, &snap.DailyLoss, &snap.LastDailyReset)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.LedgerSnapshot{}, nil
	case err != nil:
		return domain.LedgerSnapshot{}, fmt.Errorf("postgres: load ledger state: %w", err)
	}

	if err := json.Unmarshal(metricsJSON, &snap.Metrics); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("postgres: decode metrics: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, contract, side, class,
			entry_price, shares, cost_basis, entry_time, entry_reason,
			status, current_price, current_value, unrealized_pnl,
			exit_time, exit_price, exit_reason, realized_pnl,
			max_price, min_price
		FROM positions ORDER BY entry_time`)
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("postgres: load positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return domain.LedgerSnapshot{}, fmt.Errorf("postgres: scan position: %w", err)
		}
		if p.Status.Closed() {
			snap.ClosedPositions = append(snap.ClosedPositions, p)
		} else {
			snap.OpenPositions = append(snap.OpenPositions, p)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("postgres: read positions: %w", err)
	}

	return snap, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p            domain.Position
		contractJSON []byte
		side, class  string
		status       string
		exitTime     *time.Time
		exitPrice    *float64
		exitReason   *string
	)

	if err := row.Scan(
		&p.ID, &contractJSON, &side, &class,
		&p.EntryPrice, &p.Shares, &p.CostBasis, &p.EntryTime, &p.EntryReason,
		&status, &p.CurrentPrice, &p.CurrentValue, &p.UnrealizedPnL,
		&exitTime, &exitPrice, &exitReason, &p.RealizedPnL,
		&p.MaxPrice, &p.MinPrice,
	); err != nil {
		return domain.Position{}, err
	}

	if err := json.Unmarshal(contractJSON, &p.Contract); err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Class = domain.ContractClass(class)
	p.Status = domain.PositionStatus(status)
	p.ExitTime = exitTime
	p.ExitPrice = exitPrice
	if exitReason != nil {
		r := domain.ExitReason(*exitReason)
		p.ExitReason = &r
	}
	return p, nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
