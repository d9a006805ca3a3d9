package sizing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polycopy/internal/config"
)

func baseConfig() config.StrategyConfig {
	return config.StrategyConfig{
		Mode:            "PERCENTAGE",
		CopySize:        1.0,
		MinOrderSizeUsd: 1.0,
		MaxOrderSizeUsd: 100.0,
	}
}

func TestNew_RejectsInvalidBounds(t *testing.T) {
	cfg := baseConfig()
	cfg.MinOrderSizeUsd = 50
	cfg.MaxOrderSizeUsd = 10

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestNew_RejectsUnknownMode(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = "MARTINGALE"

	_, err := New(cfg)
	require.Error(t, err)
}

func TestSize_PercentageScalesByBalanceRatio(t *testing.T) {
	eng, err := New(baseConfig())
	require.NoError(t, err)

	// ownBalance=100, traderPortfolio=1000, factor=1.0, trade $50
	// => 50 * (100/1000) * 1.0 = $5
	d := eng.Size(Input{
		Side:                 "BUY",
		TradeUsdcSize:        50,
		OwnBalance:           100,
		TraderPortfolioValue: 1000,
	})
	assert.InDelta(t, 5.0, d.AmountUsd, 1e-9)
	assert.False(t, d.CappedByMax)
	assert.False(t, d.BelowMinimum)
}

func TestSize_PercentageZeroPortfolioIsNoTrade(t *testing.T) {
	eng, err := New(baseConfig())
	require.NoError(t, err)

	d := eng.Size(Input{TradeUsdcSize: 50, OwnBalance: 100, TraderPortfolioValue: 0})
	assert.Zero(t, d.AmountUsd)
}

func TestSize_FixedIgnoresTradeSize(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = "FIXED"
	cfg.CopySize = 25
	eng, err := New(cfg)
	require.NoError(t, err)

	for _, tradeSize := range []float64{1, 50, 5000} {
		d := eng.Size(Input{TradeUsdcSize: tradeSize, OwnBalance: 1000, TraderPortfolioValue: 1})
		assert.InDelta(t, 25.0, d.AmountUsd, 1e-9)
	}
}

func TestSize_AdaptiveIsDirectFraction(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = "ADAPTIVE"
	cfg.CopySize = 0.1
	eng, err := New(cfg)
	require.NoError(t, err)

	d := eng.Size(Input{TradeUsdcSize: 200, OwnBalance: 1000})
	assert.InDelta(t, 20.0, d.AmountUsd, 1e-9)
}

func TestSize_ClampsToBounds(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = "ADAPTIVE"
	cfg.CopySize = 1.0
	cfg.MinOrderSizeUsd = 5
	cfg.MaxOrderSizeUsd = 50
	eng, err := New(cfg)
	require.NoError(t, err)

	big := eng.Size(Input{TradeUsdcSize: 400, OwnBalance: 10_000})
	assert.InDelta(t, 50.0, big.AmountUsd, 1e-9)
	assert.True(t, big.CappedByMax)

	small := eng.Size(Input{TradeUsdcSize: 2, OwnBalance: 10_000})
	assert.InDelta(t, 5.0, small.AmountUsd, 1e-9)
}

func TestSize_BalanceCapLeavesSafetyBuffer(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = "FIXED"
	cfg.CopySize = 80
	eng, err := New(cfg)
	require.NoError(t, err)

	d := eng.Size(Input{TradeUsdcSize: 500, OwnBalance: 40})
	assert.InDelta(t, 40*0.99, d.AmountUsd, 1e-9)
	assert.True(t, d.ReducedByBalance)
}

func TestSize_BalanceTooSmallIsNoTrade(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = "FIXED"
	cfg.CopySize = 80
	cfg.MinOrderSizeUsd = 10
	eng, err := New(cfg)
	require.NoError(t, err)

	d := eng.Size(Input{TradeUsdcSize: 500, OwnBalance: 5})
	assert.Zero(t, d.AmountUsd)
	assert.True(t, d.BelowMinimum)
}

func TestSize_PositionCapShrinksOrder(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = "FIXED"
	cfg.CopySize = 50
	cfg.MaxPositionSizeUsd = 60
	eng, err := New(cfg)
	require.NoError(t, err)

	d := eng.Size(Input{TradeUsdcSize: 500, OwnBalance: 1000, CurrentPositionUsd: 30})
	assert.InDelta(t, 30.0, d.AmountUsd, 1e-9)

	full := eng.Size(Input{TradeUsdcSize: 500, OwnBalance: 1000, CurrentPositionUsd: 59.5})
	assert.Zero(t, full.AmountUsd)
	assert.True(t, full.BelowMinimum)
}

func TestMultiplier_Tiers(t *testing.T) {
	cfg := baseConfig()
	cfg.TieredMultipliers = "1-10:2.0,10-100:1.0,100-500:0.2,500+:0.1"
	eng, err := New(cfg)
	require.NoError(t, err)

	assert.Equal(t, 2.0, eng.Multiplier(5))
	assert.Equal(t, 1.0, eng.Multiplier(10))
	assert.Equal(t, 0.2, eng.Multiplier(499.99))
	assert.Equal(t, 0.1, eng.Multiplier(500))
	assert.Equal(t, 0.1, eng.Multiplier(1_000_000))
}

func TestParseTiers_Errors(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"missing multiplier", "1-10"},
		{"bad multiplier", "1-10:abc"},
		{"negative multiplier", "1-10:-1"},
		{"inverted range", "10-1:1.0"},
		{"overlap", "1-10:1.0,5-20:1.0"},
		{"unbounded not last", "10+:1.0,20-30:1.0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTiers(tc.in)
			assert.Error(t, err)
		})
	}
}

func TestParseTiers_Empty(t *testing.T) {
	tiers, err := ParseTiers("  ")
	require.NoError(t, err)
	assert.Empty(t, tiers)
}
