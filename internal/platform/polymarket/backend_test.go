package polymarket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

func testBook() domain.OrderBook {
	return domain.OrderBook{
		AssetID: "123",
		Asks: []domain.PriceLevel{
			{Price: 0.55, Size: 100},
			{Price: 0.52, Size: 10}, // best ask, deliberately out of order
			{Price: 0.60, Size: 500},
		},
		Bids: []domain.PriceLevel{
			{Price: 0.48, Size: 50},
			{Price: 0.50, Size: 20}, // best bid
		},
	}
}

func TestPlanFill_BuyWalksAsksCheapestFirst(t *testing.T) {
	// Spend 15.40 USDC: 10 tokens at 0.52 (5.20), then 10.20 worth at 0.55.
	plan, err := planFill(testBook(), domain.OrderRequest{
		Side:   domain.SideBuy,
		Asset:  "123",
		Amount: 15.40,
	})
	require.NoError(t, err)

	assert.InDelta(t, 15.40, plan.quote, 1e-9)
	wantTokens := 10 + 10.20/0.55
	assert.InDelta(t, wantTokens, plan.tokens, 1e-9)
	assert.InDelta(t, 15.40/wantTokens, plan.avgPrice, 1e-9)
}

func TestPlanFill_SellWalksBidsDearestFirst(t *testing.T) {
	// Sell 30 tokens: 20 at 0.50, 10 at 0.48.
	plan, err := planFill(testBook(), domain.OrderRequest{
		Side:   domain.SideSell,
		Asset:  "123",
		Amount: 30,
	})
	require.NoError(t, err)

	assert.InDelta(t, 30, plan.tokens, 1e-9)
	assert.InDelta(t, 20*0.50+10*0.48, plan.quote, 1e-9)
}

func TestPlanFill_ShallowBookYieldsReducedFill(t *testing.T) {
	book := domain.OrderBook{
		Bids: []domain.PriceLevel{{Price: 0.50, Size: 5}},
	}
	plan, err := planFill(book, domain.OrderRequest{
		Side:   domain.SideSell,
		Amount: 30,
	})
	require.NoError(t, err)

	assert.InDelta(t, 5, plan.tokens, 1e-9)
	assert.InDelta(t, 2.5, plan.quote, 1e-9)
}

func TestPlanFill_EmptySideIsAnError(t *testing.T) {
	book := domain.OrderBook{
		Bids: []domain.PriceLevel{{Price: 0.50, Size: 5}},
	}
	_, err := planFill(book, domain.OrderRequest{
		Side:   domain.SideBuy,
		Amount: 10,
	})
	require.ErrorIs(t, err, domain.ErrEmptyOrderBook)
}

func TestPlanFill_ZeroPriceLevelsIgnored(t *testing.T) {
	book := domain.OrderBook{
		Asks: []domain.PriceLevel{{Price: 0, Size: 100}},
	}
	_, err := planFill(book, domain.OrderRequest{
		Side:   domain.SideBuy,
		Amount: 10,
	})
	require.ErrorIs(t, err, domain.ErrEmptyOrderBook)
}

func TestToFixed6(t *testing.T) {
	assert.Equal(t, "1000000", toFixed6(1))
	assert.Equal(t, "15400000", toFixed6(15.4))
	assert.Equal(t, "520000", toFixed6(0.52))
	assert.Equal(t, "1", toFixed6(0.0000009))
}

func TestIsBalanceError(t *testing.T) {
	assert.True(t, isBalanceError("not enough balance / allowance"))
	assert.True(t, isBalanceError("Insufficient funds"))
	assert.False(t, isBalanceError("order rejected: market closed"))
}
