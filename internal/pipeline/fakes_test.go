package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// fakeActivityStore is an in-memory domain.ActivityStore with the same claim
// semantics as the Postgres implementation: the first Claim on an unclaimed
// row wins, every later one loses.
type fakeActivityStore struct {
	mu   sync.Mutex
	rows map[int64]*fakeRow
}

type fakeRow struct {
	act      domain.Activity
	claimed  bool
	claimSeq int
	skipped  bool
}

func newFakeActivityStore(activities ...domain.Activity) *fakeActivityStore {
	s := &fakeActivityStore{rows: make(map[int64]*fakeRow)}
	for _, a := range activities {
		s.rows[a.ID] = &fakeRow{act: a}
	}
	return s
}

func (s *fakeActivityStore) InsertBatch(_ context.Context, activities []domain.Activity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted int64
	for _, a := range activities {
		dup := false
		for _, r := range s.rows {
			if r.act.TraderAddress == a.TraderAddress && r.act.TxHash == a.TxHash &&
				r.act.Asset == a.Asset && r.act.Side == a.Side {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		a.ID = int64(len(s.rows) + 1)
		s.rows[a.ID] = &fakeRow{act: a}
		inserted++
	}
	return inserted, nil
}

func (s *fakeActivityStore) FindUnclaimed(_ context.Context, trader string) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Activity
	for _, r := range s.rows {
		if r.act.TraderAddress == trader && !r.claimed && r.claimSeq == 0 {
			out = append(out, r.act)
		}
	}
	return out, nil
}

func (s *fakeActivityStore) Claim(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok || r.claimed || r.claimSeq != 0 {
		return false, nil
	}
	r.claimSeq++
	return true, nil
}

func (s *fakeActivityStore) MarkProcessed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		r.claimed = true
	}
	return nil
}

func (s *fakeActivityStore) MarkSkipped(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		r.claimed = true
		r.skipped = true
	}
	return nil
}

func (s *fakeActivityStore) MarkAllProcessed(_ context.Context, trader string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		if r.act.TraderAddress == trader && !r.claimed && r.claimSeq == 0 {
			r.claimed = true
			r.claimSeq++
			n++
		}
	}
	return n, nil
}

func (s *fakeActivityStore) CountByTrader(_ context.Context, trader string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.rows {
		if r.act.TraderAddress == trader {
			n++
		}
	}
	return n, nil
}

func (s *fakeActivityStore) ListProcessedBefore(_ context.Context, before time.Time) ([]domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Activity
	for _, r := range s.rows {
		if r.claimed && r.act.Timestamp.Before(before) {
			out = append(out, r.act)
		}
	}
	return out, nil
}

func (s *fakeActivityStore) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.rows {
		if r.claimed && r.act.Timestamp.Before(before) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeActivityStore) row(id int64) fakeRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

// fakePositionStore returns canned snapshots per wallet.
type fakePositionStore struct {
	mu        sync.Mutex
	snapshots map[string][]domain.Position
	upserted  int
}

func (s *fakePositionStore) UpsertBatch(_ context.Context, positions []domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted += len(positions)
	return nil
}

func (s *fakePositionStore) ListByWallet(_ context.Context, wallet string) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[wallet], nil
}

// fakeBackend records submissions and returns a configurable result.
type fakeBackend struct {
	mu       sync.Mutex
	requests []domain.OrderRequest
	err      error
	book     domain.OrderBook
}

func (b *fakeBackend) FetchOrderBook(_ context.Context, asset string) (domain.OrderBook, error) {
	return b.book, nil
}

func (b *fakeBackend) SubmitOrder(_ context.Context, req domain.OrderRequest) (domain.OrderReceipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return domain.OrderReceipt{}, b.err
	}
	b.requests = append(b.requests, req)
	return domain.OrderReceipt{
		OrderID:      "order-1",
		Success:      true,
		FilledAmount: req.Amount,
		AvgFillPrice: req.Price,
	}, nil
}

func (b *fakeBackend) submissions() []domain.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.OrderRequest(nil), b.requests...)
}

// fakeBalance is a fixed BalanceSource.
type fakeBalance struct{ balance float64 }

func (f *fakeBalance) QuoteBalance(context.Context, string) (float64, error) {
	return f.balance, nil
}

// fakePositionSource returns positions per address, optionally erroring for
// specific addresses to exercise the snapshot fallback.
type fakePositionSource struct {
	positions map[string][]domain.Position
	errFor    map[string]error
}

func (f *fakePositionSource) Positions(_ context.Context, address string) ([]domain.Position, error) {
	if err := f.errFor[address]; err != nil {
		return nil, err
	}
	return f.positions[address], nil
}

// fakeNotifier records notification events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}
