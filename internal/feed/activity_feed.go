// Package feed bridges the Polymarket real-time data stream to the polling
// pipeline so followed-trader trades are picked up ahead of the next tick.
package feed

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/polycopy/internal/platform/polymarket"
)

// Waker is nudged whenever a followed trader appears on the live stream.
// The poller then fetches immediately instead of waiting for its ticker.
type Waker interface {
	Wake()
}

// ActivityFeed subscribes to the public trade stream and wakes the poller
// whenever one of the followed traders shows up. The stream is advisory: the
// polling pipeline remains the source of truth, so a dropped connection only
// costs latency, never trades.
type ActivityFeed struct {
	wsURL     string
	traders   map[string]struct{}
	waker     Waker
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewActivityFeed creates a feed watching the given trader addresses.
func NewActivityFeed(wsURL string, traders []string, waker Waker, logger *slog.Logger) *ActivityFeed {
	set := make(map[string]struct{}, len(traders))
	for _, t := range traders {
		set[strings.ToLower(t)] = struct{}{}
	}
	return &ActivityFeed{
		wsURL:   wsURL,
		traders: set,
		waker:   waker,
		logger:  logger.With(slog.String("component", "activity_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects, subscribes to the activity trade stream, and runs until ctx
// is cancelled. Reconnects with backoff on disconnect.
func (f *ActivityFeed) Run(ctx context.Context) error {
	if len(f.traders) == 0 {
		f.logger.Info("no traders to watch, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("activity stream disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *ActivityFeed) runConnection(ctx context.Context) error {
	client := polymarket.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnTrade(func(act polymarket.APIActivity) {
		if _, followed := f.traders[strings.ToLower(act.ProxyWallet)]; !followed {
			return
		}
		f.logger.Debug("live trade from followed trader",
			slog.String("trader", act.ProxyWallet),
			slog.String("side", act.Side),
			slog.Float64("usdc", float64(act.UsdcSize)),
		)
		f.waker.Wake()
	})

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(dialCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.Subscribe(ctx, "activity", "trades"); err != nil {
		return err
	}
	f.logger.Info("activity stream subscribed", slog.Int("traders", len(f.traders)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	}
}

// Close stops the feed.
func (f *ActivityFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
