package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polycopy/internal/buffer"
	"github.com/alanyoungcy/polycopy/internal/domain"
)

// ExecutorConfig tunes the claim-and-settle loop.
type ExecutorConfig struct {
	Traders      []string
	PollInterval time.Duration
	TooOld       time.Duration // claimed activities older than this are skipped, not copied
}

// Executor drives the settle side of the pipeline: it claims unclaimed
// activities, routes them through the aggregation buffer, and hands
// executable units to the Settler. Claiming before routing is what makes
// concurrent executors safe: a row in the buffer is already ours.
type Executor struct {
	store   domain.ActivityStore
	settler *Settler
	buf     *buffer.Buffer
	cfg     ExecutorConfig
	logger  *slog.Logger
}

// NewExecutor creates an Executor. buf may be nil to disable aggregation;
// every activity then settles individually.
func NewExecutor(
	store domain.ActivityStore,
	settler *Settler,
	buf *buffer.Buffer,
	cfg ExecutorConfig,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		store:   store,
		settler: settler,
		buf:     buf,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run polls for unclaimed activities until the context is cancelled. On the
// way out it flushes the aggregation buffer so claimed rows never strand.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor starting",
		slog.Int("traders", len(e.cfg.Traders)),
		slog.Duration("interval", e.cfg.PollInterval),
		slog.Bool("aggregation", e.buf != nil),
	)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.flush()
			e.logger.Info("executor stopped")
			return ctx.Err()
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick runs one poll cycle: claim fresh work, route it, then drain whatever
// the buffer has finished with.
func (e *Executor) tick(ctx context.Context) {
	for _, trader := range e.cfg.Traders {
		if ctx.Err() != nil {
			return
		}
		e.claimAndRoute(ctx, trader)
	}
	e.drain(ctx)
}

func (e *Executor) claimAndRoute(ctx context.Context, trader string) {
	activities, err := e.store.FindUnclaimed(ctx, trader)
	if err != nil {
		e.logger.Error("find unclaimed failed",
			slog.String("trader", trader),
			slog.String("error", err.Error()),
		)
		return
	}

	cutoff := time.Now().UTC().Add(-e.cfg.TooOld)
	for _, a := range activities {
		won, err := e.store.Claim(ctx, a.ID)
		if err != nil {
			e.logger.Error("claim failed",
				slog.Int64("id", a.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !won {
			// Another executor instance got there first.
			continue
		}

		if e.cfg.TooOld > 0 && a.Timestamp.Before(cutoff) {
			e.skip(ctx, a.ID, "too old")
			continue
		}

		if e.buf != nil && e.buf.Offer(a) == buffer.Aggregated {
			e.logger.Debug("activity buffered",
				slog.Int64("id", a.ID),
				slog.String("market", a.Market()),
				slog.Float64("usd", a.UsdcSize),
			)
			continue
		}

		if err := e.settler.Settle(ctx, a, []int64{a.ID}); err != nil {
			e.logger.Error("settlement failed",
				slog.Int64("id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// drain settles aggregations whose window elapsed at or above their minimum
// and skips the ones that expired below it.
func (e *Executor) drain(ctx context.Context) {
	if e.buf == nil {
		return
	}
	ready, skipped := e.buf.DrainReady()
	e.settleGroups(ctx, ready)
	e.skipGroups(ctx, skipped)
}

// flush empties the buffer on shutdown using a short grace context, settling
// what is executable and skipping the rest.
func (e *Executor) flush() {
	if e.buf == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ready, skipped := e.buf.Flush()
	e.settleGroups(ctx, ready)
	e.skipGroups(ctx, skipped)
}

func (e *Executor) settleGroups(ctx context.Context, groups []domain.AggregatedTrade) {
	for _, g := range groups {
		e.logger.Info("aggregation ready",
			slog.String("market", g.Synthetic().Market()),
			slog.Int("constituents", len(g.Activities)),
			slog.Float64("total_usd", g.TotalUsdcSize),
			slog.Float64("avg_price", g.AvgPrice),
		)
		if err := e.settler.Settle(ctx, g.Synthetic(), g.IDs()); err != nil {
			e.logger.Error("aggregated settlement failed",
				slog.String("market", g.Synthetic().Market()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (e *Executor) skipGroups(ctx context.Context, groups []domain.AggregatedTrade) {
	for _, g := range groups {
		e.logger.Info("aggregation skipped below minimum",
			slog.String("market", g.Synthetic().Market()),
			slog.Int("constituents", len(g.Activities)),
			slog.Float64("total_usd", g.TotalUsdcSize),
		)
		for _, id := range g.IDs() {
			e.skip(ctx, id, "aggregation below minimum")
		}
	}
}

func (e *Executor) skip(ctx context.Context, id int64, reason string) {
	if err := e.store.MarkSkipped(ctx, id); err != nil {
		e.logger.Error("mark skipped failed",
			slog.Int64("id", id),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
}
