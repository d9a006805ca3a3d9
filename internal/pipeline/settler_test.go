package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polycopy/internal/config"
	"github.com/alanyoungcy/polycopy/internal/domain"
	"github.com/alanyoungcy/polycopy/internal/sizing"
)

const (
	ownAddr    = "0x9999999999999999999999999999999999999999"
	traderAddr = "0x1111111111111111111111111111111111111111"
	testAsset  = "71321045679252212594626385532706912750332728571942532289631379312455583992563"
)

func testEngine(t *testing.T) *sizing.Engine {
	t.Helper()
	engine, err := sizing.New(config.StrategyConfig{
		Mode:            "PERCENTAGE",
		CopySize:        1.0,
		MinOrderSizeUsd: 1.0,
		MaxOrderSizeUsd: 100.0,
	})
	require.NoError(t, err)
	return engine
}

func testSettler(t *testing.T, store *fakeActivityStore, backend domain.OrderBackend, dryRun bool) (*Settler, *fakeNotifier) {
	t.Helper()
	notifier := &fakeNotifier{}
	posSrc := &fakePositionSource{
		positions: map[string][]domain.Position{
			ownAddr: {
				{Wallet: ownAddr, Asset: testAsset, ConditionID: "0xc1", Size: 100, CurrentValue: 50},
			},
			traderAddr: {
				{Wallet: traderAddr, Asset: testAsset, ConditionID: "0xc1", Size: 60, CurrentValue: 30},
				{Wallet: traderAddr, Asset: "other", ConditionID: "0xc2", CurrentValue: 970},
			},
		},
	}
	s := NewSettler(
		store,
		&fakePositionStore{},
		backend,
		&fakeBalance{balance: 100},
		posSrc,
		nil,
		testEngine(t),
		notifier,
		SettlerConfig{OwnAddress: ownAddr, DryRun: dryRun, RetryLimit: 1},
		slog.Default(),
	)
	return s, notifier
}

func buyActivity(id int64, usdc float64) domain.Activity {
	return domain.Activity{
		ID:            id,
		TraderAddress: traderAddr,
		ConditionID:   "0xc1",
		Asset:         testAsset,
		Side:          domain.SideBuy,
		UsdcSize:      usdc,
		Price:         0.5,
		Size:          usdc / 0.5,
		TxHash:        "0xaaa",
	}
}

func TestSettle_BuySizedByPortfolioShare(t *testing.T) {
	act := buyActivity(1, 50)
	store := newFakeActivityStore(act)
	backend := &fakeBackend{}
	s, notifier := testSettler(t, store, backend, false)

	require.NoError(t, s.Settle(context.Background(), act, []int64{1}))

	// 50 * (100 / 1000) * 1.0 = 5 USD.
	subs := backend.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, domain.SideBuy, subs[0].Side)
	assert.InDelta(t, 5.0, subs[0].Amount, 1e-9)

	row := store.row(1)
	assert.True(t, row.claimed)
	assert.False(t, row.skipped)
	assert.Contains(t, notifier.events, "trade_executed")
}

func TestSettle_DryRunSubmitsNothing(t *testing.T) {
	act := buyActivity(1, 50)
	store := newFakeActivityStore(act)
	s, notifier := testSettler(t, store, nil, true)

	require.NoError(t, s.Settle(context.Background(), act, []int64{1}))

	assert.True(t, store.row(1).claimed)
	assert.NotContains(t, notifier.events, "trade_executed")
}

func TestSettle_TinyBuyRaisedToMinimum(t *testing.T) {
	// 0.5 * (100/1000) = 0.05 USD, below the 1 USD minimum.
	act := buyActivity(1, 0.5)
	store := newFakeActivityStore(act)
	backend := &fakeBackend{}
	s, _ := testSettler(t, store, backend, false)

	require.NoError(t, s.Settle(context.Background(), act, []int64{1}))

	// Raised to the minimum rather than dropped: balance allows it.
	subs := backend.submissions()
	require.Len(t, subs, 1)
	assert.InDelta(t, 1.0, subs[0].Amount, 1e-9)
}

func TestSettle_SellMirrorsFraction(t *testing.T) {
	// Trader sold 40 tokens out of a 100-token stake (60 remain), so we
	// sell 40% of our own 100 tokens.
	act := domain.Activity{
		ID:            1,
		TraderAddress: traderAddr,
		ConditionID:   "0xc1",
		Asset:         testAsset,
		Side:          domain.SideSell,
		Size:          40,
		UsdcSize:      20,
		Price:         0.5,
	}
	store := newFakeActivityStore(act)
	backend := &fakeBackend{}
	s, _ := testSettler(t, store, backend, false)

	require.NoError(t, s.Settle(context.Background(), act, []int64{1}))

	subs := backend.submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, domain.SideSell, subs[0].Side)
	assert.InDelta(t, 40.0, subs[0].Amount, 1e-9)
}

func TestSettle_SellWithoutPositionDoesNothing(t *testing.T) {
	act := domain.Activity{
		ID:            1,
		TraderAddress: traderAddr,
		ConditionID:   "0xzzz",
		Asset:         "unknown-asset",
		Side:          domain.SideSell,
		Size:          10,
		UsdcSize:      5,
		Price:         0.5,
	}
	store := newFakeActivityStore(act)
	backend := &fakeBackend{}
	s, _ := testSettler(t, store, backend, false)

	require.NoError(t, s.Settle(context.Background(), act, []int64{1}))
	assert.Empty(t, backend.submissions())
	assert.True(t, store.row(1).claimed)
}

func TestSettle_InsufficientFundsAbortsAndAlerts(t *testing.T) {
	act := buyActivity(1, 50)
	store := newFakeActivityStore(act)
	backend := &fakeBackend{err: domain.ErrInsufficientFunds}
	s, notifier := testSettler(t, store, backend, false)

	err := s.Settle(context.Background(), act, []int64{1})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// The constituent still ends terminal and the operator is alerted.
	assert.True(t, store.row(1).claimed)
	assert.Contains(t, notifier.events, "error")
}

func TestSettle_SlippageRejectionIsFinalNotAnError(t *testing.T) {
	act := buyActivity(1, 50)
	store := newFakeActivityStore(act)
	backend := &fakeBackend{err: domain.ErrSlippageExceeded}
	s, _ := testSettler(t, store, backend, false)

	require.NoError(t, s.Settle(context.Background(), act, []int64{1}))
	assert.True(t, store.row(1).claimed)
}

func TestSettle_TraderPositionsFallBackToSnapshot(t *testing.T) {
	act := buyActivity(1, 50)
	store := newFakeActivityStore(act)
	backend := &fakeBackend{}
	notifier := &fakeNotifier{}

	posSrc := &fakePositionSource{
		positions: map[string][]domain.Position{
			ownAddr: {{Wallet: ownAddr, Asset: testAsset, ConditionID: "0xc1", Size: 100}},
		},
		errFor: map[string]error{traderAddr: errors.New("data api down")},
	}
	posStore := &fakePositionStore{
		snapshots: map[string][]domain.Position{
			traderAddr: {{Wallet: traderAddr, Asset: "other", CurrentValue: 1000}},
		},
	}

	s := NewSettler(
		store, posStore, backend,
		&fakeBalance{balance: 100}, posSrc, nil,
		testEngine(t), notifier,
		SettlerConfig{OwnAddress: ownAddr, RetryLimit: 1},
		slog.Default(),
	)

	require.NoError(t, s.Settle(context.Background(), act, []int64{1}))

	// Portfolio value came from the stored snapshot: 50 * (100/1000) = 5.
	subs := backend.submissions()
	require.Len(t, subs, 1)
	assert.InDelta(t, 5.0, subs[0].Amount, 1e-9)
}
