// Package sizing turns an observed trade into an order notional according to
// the configured copy strategy. The engine is pure: it never touches the
// network or the store, so every rule here is unit-testable.
package sizing

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/polycopy/internal/config"
)

// Mode selects how the copy notional is derived from the observed trade.
type Mode string

const (
	// ModePercentage scales the observed notional by the ratio of the two
	// capital bases: ownBalance / traderPortfolioValue.
	ModePercentage Mode = "PERCENTAGE"
	// ModeFixed copies a constant dollar amount regardless of trade size.
	ModeFixed Mode = "FIXED"
	// ModeAdaptive copies a direct fraction of the observed notional with
	// no portfolio normalization.
	ModeAdaptive Mode = "ADAPTIVE"
)

// balanceSafety keeps a small buffer of quote balance unspent so fees and
// rounding never push an order past the wallet's means.
const balanceSafety = 0.99

// Input carries everything the engine needs for one decision.
type Input struct {
	Side          string
	TradeUsdcSize float64 // observed (or aggregated) quote notional
	Price         float64

	OwnBalance           float64 // operator's spendable USDC
	TraderPortfolioValue float64 // Σ currentValue over the trader's positions
	CurrentPositionUsd   float64 // operator's existing exposure in this market
}

// Decision is the engine's output. AmountUsd == 0 means "do not trade"; it is
// a decision, not an error.
type Decision struct {
	AmountUsd        float64
	BaseAmount       float64
	Multiplier       float64
	CappedByMax      bool
	ReducedByBalance bool
	BelowMinimum     bool
	Reasoning        string
}

// Engine applies the configured strategy mode, tier multipliers, and safety
// bounds. Construct it with New, which validates the configuration.
type Engine struct {
	mode      Mode
	copySize  float64
	minOrder  float64
	maxOrder  float64
	maxPosUsd float64 // 0 disables the position cap
	tiers     []Tier
}

// New validates the strategy configuration and returns an Engine. Invalid
// bounds (min > max), unknown modes, non-positive copy size, and malformed
// tier definitions are configuration errors that must abort startup.
func New(cfg config.StrategyConfig) (*Engine, error) {
	mode := Mode(strings.ToUpper(cfg.Mode))
	switch mode {
	case ModePercentage, ModeFixed, ModeAdaptive:
	default:
		return nil, fmt.Errorf("sizing: unknown strategy mode %q", cfg.Mode)
	}
	if cfg.CopySize <= 0 {
		return nil, fmt.Errorf("sizing: copy_size must be positive, got %g", cfg.CopySize)
	}
	if cfg.MinOrderSizeUsd <= 0 || cfg.MaxOrderSizeUsd <= 0 {
		return nil, fmt.Errorf("sizing: order bounds must be positive (min=%g max=%g)",
			cfg.MinOrderSizeUsd, cfg.MaxOrderSizeUsd)
	}
	if cfg.MinOrderSizeUsd > cfg.MaxOrderSizeUsd {
		return nil, fmt.Errorf("sizing: min_order_size_usd %g exceeds max_order_size_usd %g",
			cfg.MinOrderSizeUsd, cfg.MaxOrderSizeUsd)
	}

	tiers, err := ParseTiers(cfg.TieredMultipliers)
	if err != nil {
		return nil, fmt.Errorf("sizing: %w", err)
	}

	return &Engine{
		mode:      mode,
		copySize:  cfg.CopySize,
		minOrder:  cfg.MinOrderSizeUsd,
		maxOrder:  cfg.MaxOrderSizeUsd,
		maxPosUsd: cfg.MaxPositionSizeUsd,
		tiers:     tiers,
	}, nil
}

// Size computes the quote notional to place for one observed trade.
func (e *Engine) Size(in Input) Decision {
	var base float64
	var reason string

	switch e.mode {
	case ModePercentage:
		if in.TraderPortfolioValue <= 0 {
			return Decision{Reasoning: "trader portfolio value is zero"}
		}
		ratio := in.OwnBalance / in.TraderPortfolioValue
		base = in.TradeUsdcSize * ratio * e.copySize
		reason = fmt.Sprintf("%.4f balance ratio x %g factor of $%.2f = $%.2f",
			ratio, e.copySize, in.TradeUsdcSize, base)
	case ModeFixed:
		base = e.copySize
		reason = fmt.Sprintf("fixed amount $%.2f", base)
	case ModeAdaptive:
		base = in.TradeUsdcSize * e.copySize
		reason = fmt.Sprintf("%g x trader's $%.2f = $%.2f", e.copySize, in.TradeUsdcSize, base)
	}

	if base <= 0 {
		return Decision{BaseAmount: base, Reasoning: reason + "; nothing to copy"}
	}

	d := Decision{BaseAmount: base, Multiplier: 1.0, Reasoning: reason}

	// Tier multiplier keyed by the trader's order size.
	if m := e.Multiplier(in.TradeUsdcSize); m != 1.0 {
		d.Multiplier = m
		d.Reasoning += fmt.Sprintf("; %gx tier multiplier", m)
	}
	amount := base * d.Multiplier

	// Clamp into the configured order bounds.
	if amount > e.maxOrder {
		amount = e.maxOrder
		d.CappedByMax = true
		d.Reasoning += fmt.Sprintf("; capped at max $%.2f", e.maxOrder)
	}
	if amount < e.minOrder {
		amount = e.minOrder
		d.Reasoning += fmt.Sprintf("; raised to min $%.2f", e.minOrder)
	}

	// Position cap: shrink the order to fit the remaining headroom.
	if e.maxPosUsd > 0 {
		headroom := e.maxPosUsd - in.CurrentPositionUsd
		if headroom < amount {
			if headroom < e.minOrder {
				d.BelowMinimum = true
				d.Reasoning += "; position limit reached"
				return d
			}
			amount = headroom
			d.Reasoning += "; reduced to fit position limit"
		}
	}

	// Balance cap: never spend the whole wallet.
	if affordable := in.OwnBalance * balanceSafety; amount > affordable {
		amount = affordable
		d.ReducedByBalance = true
		d.Reasoning += fmt.Sprintf("; reduced to fit balance ($%.2f)", affordable)
		if amount < e.minOrder {
			d.BelowMinimum = true
			d.AmountUsd = 0
			d.Reasoning += "; below minimum after balance cap"
			return d
		}
	}

	d.AmountUsd = amount
	return d
}

// Multiplier returns the tier multiplier matching the observed trade size, or
// 1.0 when no tiers are configured or none match. The SELL path uses this
// directly since sell sizing is position-fraction based rather than
// notional based.
func (e *Engine) Multiplier(tradeUsdcSize float64) float64 {
	if len(e.tiers) == 0 {
		return 1.0
	}
	for _, t := range e.tiers {
		if tradeUsdcSize >= t.Min && (t.Max == 0 || tradeUsdcSize < t.Max) {
			return t.Multiplier
		}
	}
	// Past the last bounded tier: use the final tier's multiplier.
	return e.tiers[len(e.tiers)-1].Multiplier
}
