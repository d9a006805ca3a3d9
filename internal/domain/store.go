package domain

import (
	"context"
	"io"
	"time"
)

// ActivityStore persists observed trader activities and owns the two-phase
// claim protocol that guarantees each activity is settled at most once.
type ActivityStore interface {
	// InsertBatch inserts activities as Unclaimed. Rows whose
	// (trader, tx_hash, asset, side) tuple already exists are silently
	// skipped. Returns the number of rows actually inserted.
	InsertBatch(ctx context.Context, activities []Activity) (int64, error)

	// FindUnclaimed returns all Unclaimed activities for a trader, in
	// arbitrary order.
	FindUnclaimed(ctx context.Context, trader string) ([]Activity, error)

	// Claim atomically moves one activity from Unclaimed to Claiming and
	// reports whether the caller won. A false result means another worker
	// holds the record; callers must drop it, not retry.
	Claim(ctx context.Context, id int64) (bool, error)

	// MarkProcessed finalizes an activity after settlement. Idempotent.
	MarkProcessed(ctx context.Context, id int64) error

	// MarkSkipped finalizes an activity without execution (e.g. an
	// aggregation that never reached its minimum total). Idempotent.
	MarkSkipped(ctx context.Context, id int64) error

	// MarkAllProcessed finalizes every unclaimed activity for a trader.
	// Used on first run so only trades observed from now on are copied.
	MarkAllProcessed(ctx context.Context, trader string) (int64, error)

	// CountByTrader returns the total number of stored activities.
	CountByTrader(ctx context.Context, trader string) (int64, error)

	// ListProcessedBefore returns processed activities observed strictly
	// before the cutoff, for archival.
	ListProcessedBefore(ctx context.Context, before time.Time) ([]Activity, error)

	// DeleteProcessedBefore removes processed activities observed strictly
	// before the cutoff. Returns the number deleted.
	DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
}

// PositionStore keeps per-trader position snapshots written by the ingestor.
// The settlement path reads them as a fallback when the live positions fetch
// fails.
type PositionStore interface {
	UpsertBatch(ctx context.Context, positions []Position) error
	ListByWallet(ctx context.Context, wallet string) ([]Position, error)
}

// OrderBackend is the capability through which the pipeline reaches the
// venue. Any conforming implementation (real CLOB client, simulator, test
// double) is acceptable.
type OrderBackend interface {
	FetchOrderBook(ctx context.Context, asset string) (OrderBook, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderReceipt, error)
}

// BalanceSource reports the operator's spendable quote (USDC) balance.
type BalanceSource interface {
	QuoteBalance(ctx context.Context, address string) (float64, error)
}

// PositionSource reports current open positions for any wallet.
type PositionSource interface {
	Positions(ctx context.Context, address string) ([]Position, error)
}

// BlobWriter uploads a blob to object storage under the given path.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// LockManager provides distributed locks so that at most one executor
// instance runs against a trader set at a time.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles outbound API calls across all pollers sharing a key.
type RateLimiter interface {
	// Allow reports whether a request under key is permitted right now and
	// counts it if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request under key is permitted or ctx is done.
	Wait(ctx context.Context, key string) error
}

// SnapshotCache is a short-TTL cache for balance and position snapshots so
// that a burst of settlements does not hammer the data API and the chain RPC.
type SnapshotCache interface {
	GetBalance(ctx context.Context, address string) (float64, error)
	SetBalance(ctx context.Context, address string, balance float64) error
	GetPositions(ctx context.Context, address string) ([]Position, error)
	SetPositions(ctx context.Context, address string, positions []Position) error
	// Invalidate drops both entries for an address, called after an order
	// fills and the cached numbers go stale.
	Invalidate(ctx context.Context, address string) error
}
