package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL.
//
// Claim state is stored as two columns: a claimed flag and a claim_seq
// counter. An activity is unclaimed while both are zero; the winning worker
// bumps claim_seq via a conditional update, and settlement flips claimed.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates a new ActivityStore backed by the given pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

const activitySelectCols = `id, trader_address, condition_id, asset, side,
	size, usdc_size, price, timestamp, slug, event_slug, tx_hash,
	claimed, claim_seq, created_at`

func scanActivityRows(rows pgx.Rows) ([]domain.Activity, error) {
	var activities []domain.Activity
	for rows.Next() {
		var (
			a        domain.Activity
			claimed  bool
			claimSeq int
		)
		if err := rows.Scan(
			&a.ID, &a.TraderAddress, &a.ConditionID, &a.Asset, &a.Side,
			&a.Size, &a.UsdcSize, &a.Price, &a.Timestamp,
			&a.Slug, &a.EventSlug, &a.TxHash,
			&claimed, &claimSeq, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		a.ClaimState = claimState(claimed, claimSeq)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func claimState(claimed bool, claimSeq int) domain.ClaimState {
	switch {
	case claimed:
		return domain.ClaimStateProcessed
	case claimSeq > 0:
		return domain.ClaimStateClaiming
	default:
		return domain.ClaimStateUnclaimed
	}
}

// InsertBatch inserts activities as unclaimed using a pgx Batch. Duplicates
// (same trader, tx hash, asset, and side) are silently skipped via
// ON CONFLICT DO NOTHING. Returns the number of rows actually inserted.
func (s *ActivityStore) InsertBatch(ctx context.Context, activities []domain.Activity) (int64, error) {
	if len(activities) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO activities (
			trader_address, condition_id, asset, side,
			size, usdc_size, price, timestamp,
			slug, event_slug, tx_hash
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11
		) ON CONFLICT (trader_address, tx_hash, asset, side) DO NOTHING`

	for _, a := range activities {
		batch.Queue(query,
			a.TraderAddress, a.ConditionID, a.Asset, a.Side,
			a.Size, a.UsdcSize, a.Price, a.Timestamp,
			a.Slug, a.EventSlug, a.TxHash,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	var inserted int64
	for i := range activities {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("postgres: insert activity batch item %d: %w", i, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// FindUnclaimed returns all unclaimed activities for a trader.
func (s *ActivityStore) FindUnclaimed(ctx context.Context, trader string) ([]domain.Activity, error) {
	query := `SELECT ` + activitySelectCols + `
		FROM activities
		WHERE trader_address = $1 AND claimed = false AND claim_seq = 0`
	rows, err := s.pool.Query(ctx, query, trader)
	if err != nil {
		return nil, fmt.Errorf("postgres: find unclaimed activities: %w", err)
	}
	defer rows.Close()

	activities, err := scanActivityRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan unclaimed activities: %w", err)
	}
	return activities, nil
}

// Claim atomically moves one activity from unclaimed to claiming. The
// conditional update succeeds for exactly one caller per row; everyone else
// sees zero rows affected and must drop the record.
func (s *ActivityStore) Claim(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE activities
		SET claim_seq = claim_seq + 1
		WHERE id = $1 AND claimed = false AND claim_seq = 0`, id)
	if err != nil {
		return false, fmt.Errorf("postgres: claim activity %d: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkProcessed finalizes an activity after settlement. Idempotent.
func (s *ActivityStore) MarkProcessed(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE activities SET claimed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark activity %d processed: %w", id, err)
	}
	return nil
}

// MarkSkipped finalizes an activity that was dropped without execution.
// Skipped rows are still terminal; the flag only distinguishes them for
// archival and reporting.
func (s *ActivityStore) MarkSkipped(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE activities SET claimed = true, skipped = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark activity %d skipped: %w", id, err)
	}
	return nil
}

// MarkAllProcessed finalizes every unclaimed activity for a trader. Returns
// the number of rows updated.
func (s *ActivityStore) MarkAllProcessed(ctx context.Context, trader string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE activities
		SET claimed = true, claim_seq = claim_seq + 1
		WHERE trader_address = $1 AND claimed = false AND claim_seq = 0`, trader)
	if err != nil {
		return 0, fmt.Errorf("postgres: mark all processed for %s: %w", trader, err)
	}
	return tag.RowsAffected(), nil
}

// CountByTrader returns the total number of stored activities for a trader,
// in any claim state.
func (s *ActivityStore) CountByTrader(ctx context.Context, trader string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM activities WHERE trader_address = $1`, trader,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count activities for %s: %w", trader, err)
	}
	return count, nil
}

// ListProcessedBefore returns processed activities observed strictly before
// the cutoff, oldest first (for archival).
func (s *ActivityStore) ListProcessedBefore(ctx context.Context, before time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activitySelectCols + `
		FROM activities
		WHERE claimed = true AND timestamp < $1
		ORDER BY timestamp ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list processed activities before: %w", err)
	}
	defer rows.Close()
	return scanActivityRows(rows)
}

// DeleteProcessedBefore removes processed activities observed strictly before
// the cutoff. Returns the number deleted.
func (s *ActivityStore) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM activities
		WHERE claimed = true AND timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete processed activities before: %w", err)
	}
	return tag.RowsAffected(), nil
}
