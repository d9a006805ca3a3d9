// Package buffer accumulates small same-market buys so dust trades become
// one executable order instead of many unfillable ones.
package buffer

import (
	"sync"
	"time"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// Decision is the routing outcome for one offered activity.
type Decision int

const (
	// Immediate means the activity bypassed the buffer and should be
	// settled on its own.
	Immediate Decision = iota
	// Aggregated means the activity was folded into a pending aggregation
	// and will surface later via DrainReady or Flush.
	Aggregated
)

// Buffer groups sub-threshold BUY activities by (trader, condition, asset,
// side) and holds each group for a full aggregation window. A group leaves
// the buffer only when its window elapses: ready if the total reached the
// minimum by then, skipped otherwise. Until expiry the group keeps absorbing
// same-key dust, even past the minimum, so one window produces one batch.
//
// All methods are safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	window   time.Duration
	minTotal float64
	pending  map[domain.AggregationKey]*domain.AggregatedTrade

	now func() time.Time // stubbed in tests
}

// New creates a Buffer with the given aggregation window and minimum
// executable total.
func New(window time.Duration, minTotal float64) *Buffer {
	return &Buffer{
		window:   window,
		minTotal: minTotal,
		pending:  make(map[domain.AggregationKey]*domain.AggregatedTrade),
		now:      time.Now,
	}
}

// Offer routes one activity. SELLs and BUYs at or above the minimum total
// settle immediately; sub-threshold BUYs are absorbed into their group.
func (b *Buffer) Offer(a domain.Activity) Decision {
	if a.Side != domain.SideBuy || a.UsdcSize >= b.minTotal {
		return Immediate
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	key := domain.KeyOf(a)
	g, ok := b.pending[key]
	if !ok {
		g = &domain.AggregatedTrade{
			Key:         key,
			Slug:        a.Slug,
			EventSlug:   a.EventSlug,
			FirstSeenAt: now,
		}
		b.pending[key] = g
	}
	g.Add(a, now)
	return Aggregated
}

// DrainReady removes and returns finished groups. Only groups whose window
// has elapsed are evaluated: at or above the minimum total they return as
// ready, below it as skipped. Groups still inside their window stay pending
// regardless of total and are re-evaluated on the next call.
func (b *Buffer) DrainReady() (ready, skipped []domain.AggregatedTrade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for key, g := range b.pending {
		if now.Sub(g.FirstSeenAt) < b.window {
			continue
		}
		if g.TotalUsdcSize >= b.minTotal {
			ready = append(ready, *g)
		} else {
			skipped = append(skipped, *g)
		}
		delete(b.pending, key)
	}
	return ready, skipped
}

// Flush removes and returns every pending group regardless of window state,
// split by whether it reached the minimum. Called on shutdown so nothing is
// silently dropped.
func (b *Buffer) Flush() (ready, skipped []domain.AggregatedTrade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, g := range b.pending {
		if g.TotalUsdcSize >= b.minTotal {
			ready = append(ready, *g)
		} else {
			skipped = append(skipped, *g)
		}
		delete(b.pending, key)
	}
	return ready, skipped
}

// Len reports how many groups are currently pending.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
