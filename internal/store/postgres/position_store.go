package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. It holds
// the latest position snapshot we fetched for each watched trader; the
// settlement path reads it when a live positions fetch fails.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `wallet, condition_id, asset, size, avg_price,
	initial_value, current_value, cash_pnl, percent_pnl, cur_price,
	redeemable, title, slug, event_slug, updated_at`

func scanTraderPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.Wallet, &p.ConditionID, &p.Asset, &p.Size, &p.AvgPrice,
			&p.InitialValue, &p.CurrentValue, &p.CashPnL, &p.PercentPnL,
			&p.CurPrice, &p.Redeemable, &p.Title, &p.Slug, &p.EventSlug,
			&p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpsertBatch replaces position snapshots using a pgx Batch keyed on
// (wallet, asset). Positions the trader closed since the last snapshot are
// left behind; PortfolioValue tolerates them because their current value
// goes to zero on the next refresh that still sees them.
func (s *PositionStore) UpsertBatch(ctx context.Context, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trader_positions (
			wallet, condition_id, asset, size, avg_price,
			initial_value, current_value, cash_pnl, percent_pnl, cur_price,
			redeemable, title, slug, event_slug, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, NOW()
		) ON CONFLICT (wallet, asset) DO UPDATE SET
			condition_id  = EXCLUDED.condition_id,
			size          = EXCLUDED.size,
			avg_price     = EXCLUDED.avg_price,
			initial_value = EXCLUDED.initial_value,
			current_value = EXCLUDED.current_value,
			cash_pnl      = EXCLUDED.cash_pnl,
			percent_pnl   = EXCLUDED.percent_pnl,
			cur_price     = EXCLUDED.cur_price,
			redeemable    = EXCLUDED.redeemable,
			title         = EXCLUDED.title,
			slug          = EXCLUDED.slug,
			event_slug    = EXCLUDED.event_slug,
			updated_at    = NOW()`

	for _, p := range positions {
		batch.Queue(query,
			p.Wallet, p.ConditionID, p.Asset, p.Size, p.AvgPrice,
			p.InitialValue, p.CurrentValue, p.CashPnL, p.PercentPnL,
			p.CurPrice, p.Redeemable, p.Title, p.Slug, p.EventSlug,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range positions {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert position batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByWallet returns the stored position snapshot for a wallet, largest
// current value first.
func (s *PositionStore) ListByWallet(ctx context.Context, wallet string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM trader_positions
		 WHERE wallet = $1
		 ORDER BY current_value DESC`, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for %s: %w", wallet, err)
	}
	defer rows.Close()

	positions, err := scanTraderPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan positions for %s: %w", wallet, err)
	}
	return positions, nil
}
