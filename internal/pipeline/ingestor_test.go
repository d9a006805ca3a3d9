package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

type fakeFetcher struct {
	activities []domain.Activity
}

func (f *fakeFetcher) Activities(context.Context, string, int) ([]domain.Activity, error) {
	return f.activities, nil
}

func testIngestor(store *fakeActivityStore, posStore *fakePositionStore, fetcher *fakeFetcher) *Ingestor {
	return NewIngestor(
		fetcher,
		&fakePositionSource{positions: map[string][]domain.Position{
			traderAddr: {{Wallet: traderAddr, Asset: testAsset, Size: 10}},
		}},
		store,
		posStore,
		IngestorConfig{
			Traders:       []string{traderAddr},
			FetchInterval: 10 * time.Millisecond,
			TooOld:        24 * time.Hour,
		},
		slog.Default(),
	)
}

func TestBootstrap_FinalizesVisibleHistory(t *testing.T) {
	history := []domain.Activity{buyActivity(0, 10), buyActivity(0, 20)}
	history[0].TxHash = "0xaaa"
	history[1].TxHash = "0xbbb"
	history[0].Timestamp = time.Now().UTC()
	history[1].Timestamp = time.Now().UTC()

	store := newFakeActivityStore()
	in := testIngestor(store, &fakePositionStore{}, &fakeFetcher{activities: history})

	require.NoError(t, in.Bootstrap(context.Background()))

	// Nothing from the pre-existing history is claimable.
	unclaimed, err := store.FindUnclaimed(context.Background(), traderAddr)
	require.NoError(t, err)
	assert.Empty(t, unclaimed)

	count, err := store.CountByTrader(context.Background(), traderAddr)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestBootstrap_SkipsKnownTraders(t *testing.T) {
	seeded := buyActivity(1, 10)
	store := newFakeActivityStore(seeded)

	fetcher := &fakeFetcher{activities: []domain.Activity{buyActivity(0, 99)}}
	in := testIngestor(store, &fakePositionStore{}, fetcher)

	require.NoError(t, in.Bootstrap(context.Background()))

	// The trader was already known, so the fetched history was not inserted.
	count, err := store.CountByTrader(context.Background(), traderAddr)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestPollTrader_InsertsFreshDropsStaleAndDuplicates(t *testing.T) {
	fresh := buyActivity(0, 10)
	fresh.TxHash = "0xfresh"
	fresh.Timestamp = time.Now().UTC()

	stale := buyActivity(0, 20)
	stale.TxHash = "0xstale"
	stale.Timestamp = time.Now().UTC().Add(-48 * time.Hour)

	store := newFakeActivityStore()
	posStore := &fakePositionStore{}
	fetcher := &fakeFetcher{activities: []domain.Activity{fresh, stale}}
	in := testIngestor(store, posStore, fetcher)

	require.NoError(t, in.pollTrader(context.Background(), traderAddr))

	unclaimed, err := store.FindUnclaimed(context.Background(), traderAddr)
	require.NoError(t, err)
	require.Len(t, unclaimed, 1)
	assert.Equal(t, "0xfresh", unclaimed[0].TxHash)

	// Re-polling the same feed inserts nothing new.
	require.NoError(t, in.pollTrader(context.Background(), traderAddr))
	count, err := store.CountByTrader(context.Background(), traderAddr)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// The position snapshot was refreshed on both polls.
	assert.Equal(t, 2, posStore.upserted)
}

func TestWake_Coalesces(t *testing.T) {
	in := testIngestor(newFakeActivityStore(), &fakePositionStore{}, &fakeFetcher{})
	in.Wake()
	in.Wake()
	in.Wake()
	assert.Len(t, in.wake, 1)
}
