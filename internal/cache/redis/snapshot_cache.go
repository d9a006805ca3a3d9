package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// SnapshotCache implements domain.SnapshotCache with plain TTL'd keys.
// Balances are stored as strings, position lists as JSON. The TTL is short
// (seconds) so the settlement path mostly pays one fetch per drain instead
// of one per constituent.
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

func balanceKey(address string) string   { return "balance:" + address }
func positionsKey(address string) string { return "positions:" + address }

// GetBalance returns the cached quote balance for an address, or
// domain.ErrNotFound when the entry is missing or expired.
func (sc *SnapshotCache) GetBalance(ctx context.Context, address string) (float64, error) {
	val, err := sc.rdb.Get(ctx, balanceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get balance %s: %w", address, err)
	}
	balance, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse balance %s: %w", address, err)
	}
	return balance, nil
}

// SetBalance caches the quote balance for an address.
func (sc *SnapshotCache) SetBalance(ctx context.Context, address string, balance float64) error {
	val := strconv.FormatFloat(balance, 'f', -1, 64)
	if err := sc.rdb.Set(ctx, balanceKey(address), val, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set balance %s: %w", address, err)
	}
	return nil
}

// GetPositions returns the cached position list for an address, or
// domain.ErrNotFound when the entry is missing or expired.
func (sc *SnapshotCache) GetPositions(ctx context.Context, address string) ([]domain.Position, error) {
	val, err := sc.rdb.Get(ctx, positionsKey(address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get positions %s: %w", address, err)
	}

	var positions []domain.Position
	if err := json.Unmarshal(val, &positions); err != nil {
		return nil, fmt.Errorf("redis: decode positions %s: %w", address, err)
	}
	return positions, nil
}

// SetPositions caches the position list for an address.
func (sc *SnapshotCache) SetPositions(ctx context.Context, address string, positions []domain.Position) error {
	data, err := json.Marshal(positions)
	if err != nil {
		return fmt.Errorf("redis: encode positions %s: %w", address, err)
	}
	if err := sc.rdb.Set(ctx, positionsKey(address), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set positions %s: %w", address, err)
	}
	return nil
}

// Invalidate drops the cached balance and positions for an address.
func (sc *SnapshotCache) Invalidate(ctx context.Context, address string) error {
	if err := sc.rdb.Del(ctx, balanceKey(address), positionsKey(address)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate snapshots %s: %w", address, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
