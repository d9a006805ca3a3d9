// Package pipeline contains the copy pipeline: the ingestor that mirrors
// trader activity into the store, the executor loop that claims and settles
// it, and the archiver that retires old rows to object storage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// ActivityFetcher is the slice of the data API client the ingestor needs.
type ActivityFetcher interface {
	Activities(ctx context.Context, address string, limit int) ([]domain.Activity, error)
}

// IngestorConfig tunes the ingest loop.
type IngestorConfig struct {
	Traders       []string
	FetchInterval time.Duration
	TooOld        time.Duration // activities older than this are never ingested
	FetchLimit    int
}

// Ingestor polls the data API for each watched trader and mirrors new
// activities and position snapshots into the store. It never executes
// anything; writing unclaimed rows is its entire job.
type Ingestor struct {
	fetcher   ActivityFetcher
	positions domain.PositionSource
	store     domain.ActivityStore
	posStore  domain.PositionStore
	cfg       IngestorConfig
	logger    *slog.Logger

	// wake is pulsed by the live feed so a poll runs immediately instead
	// of waiting out the ticker.
	wake chan struct{}
}

// NewIngestor creates an Ingestor.
func NewIngestor(
	fetcher ActivityFetcher,
	positions domain.PositionSource,
	store domain.ActivityStore,
	posStore domain.PositionStore,
	cfg IngestorConfig,
	logger *slog.Logger,
) *Ingestor {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 100
	}
	return &Ingestor{
		fetcher:   fetcher,
		positions: positions,
		store:     store,
		posStore:  posStore,
		cfg:       cfg,
		logger:    logger,
		wake:      make(chan struct{}, 1),
	}
}

// Wake nudges the ingestor to poll now. Safe to call from any goroutine;
// redundant nudges coalesce.
func (in *Ingestor) Wake() {
	select {
	case in.wake <- struct{}{}:
	default:
	}
}

// Bootstrap prepares the store for traders we have never seen before: their
// visible history is ingested and immediately finalized, so only activity
// observed from now on gets copied. Idempotent across restarts.
func (in *Ingestor) Bootstrap(ctx context.Context) error {
	for _, trader := range in.cfg.Traders {
		count, err := in.store.CountByTrader(ctx, trader)
		if err != nil {
			return fmt.Errorf("pipeline: bootstrap count for %s: %w", trader, err)
		}
		if count > 0 {
			continue
		}

		activities, err := in.fetcher.Activities(ctx, trader, in.cfg.FetchLimit)
		if err != nil {
			return fmt.Errorf("pipeline: bootstrap fetch for %s: %w", trader, err)
		}
		if _, err := in.store.InsertBatch(ctx, activities); err != nil {
			return fmt.Errorf("pipeline: bootstrap insert for %s: %w", trader, err)
		}

		marked, err := in.store.MarkAllProcessed(ctx, trader)
		if err != nil {
			return fmt.Errorf("pipeline: bootstrap finalize for %s: %w", trader, err)
		}
		in.logger.Info("bootstrapped new trader",
			slog.String("trader", trader),
			slog.Int("history", len(activities)),
			slog.Int64("finalized", marked),
		)
	}
	return nil
}

// Run polls every trader on the fetch interval (or sooner on a Wake nudge)
// until the context is cancelled.
func (in *Ingestor) Run(ctx context.Context) error {
	in.logger.Info("ingestor starting",
		slog.Int("traders", len(in.cfg.Traders)),
		slog.Duration("interval", in.cfg.FetchInterval),
	)

	ticker := time.NewTicker(in.cfg.FetchInterval)
	defer ticker.Stop()

	// First poll immediately so a fresh start does not sit idle.
	in.pollAll(ctx)

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("ingestor stopped")
			return ctx.Err()
		case <-ticker.C:
			in.pollAll(ctx)
		case <-in.wake:
			in.pollAll(ctx)
		}
	}
}

func (in *Ingestor) pollAll(ctx context.Context) {
	for _, trader := range in.cfg.Traders {
		if ctx.Err() != nil {
			return
		}
		if err := in.pollTrader(ctx, trader); err != nil {
			in.logger.Error("trader poll failed",
				slog.String("trader", trader),
				slog.String("error", err.Error()),
			)
		}
	}
}

// pollTrader ingests one trader's recent activities and refreshes their
// position snapshot. Too-old activities are dropped before insert so a long
// outage never produces a burst of stale copies.
func (in *Ingestor) pollTrader(ctx context.Context, trader string) error {
	activities, err := in.fetcher.Activities(ctx, trader, in.cfg.FetchLimit)
	if err != nil {
		return fmt.Errorf("fetch activities: %w", err)
	}

	cutoff := time.Now().UTC().Add(-in.cfg.TooOld)
	fresh := activities[:0]
	for _, a := range activities {
		if in.cfg.TooOld > 0 && a.Timestamp.Before(cutoff) {
			continue
		}
		fresh = append(fresh, a)
	}

	inserted, err := in.store.InsertBatch(ctx, fresh)
	if err != nil {
		return fmt.Errorf("insert activities: %w", err)
	}
	if inserted > 0 {
		in.logger.Info("ingested new activities",
			slog.String("trader", trader),
			slog.Int64("count", inserted),
		)
	}

	positions, err := in.positions.Positions(ctx, trader)
	if err != nil {
		// Position snapshots are advisory; the settler has a live fetch
		// of its own.
		in.logger.Warn("position snapshot refresh failed",
			slog.String("trader", trader),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := in.posStore.UpsertBatch(ctx, positions); err != nil {
		return fmt.Errorf("upsert positions: %w", err)
	}
	return nil
}
