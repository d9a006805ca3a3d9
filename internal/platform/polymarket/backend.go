package polymarket

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polycopy/internal/crypto"
	"github.com/alanyoungcy/polycopy/internal/domain"
)

// BackendConfig carries the order parameters the backend needs beyond the
// per-order request: whose wallet trades, how it signs, and how much the
// execution price may deviate from the copied price.
type BackendConfig struct {
	ProxyAddress  string  // funder wallet that holds positions and USDC
	SignatureType int     // 0 = EOA, 1 = POLY_PROXY, 2 = POLY_GNOSIS_SAFE
	MaxSlippage   float64 // e.g. 0.05 = 5%; 0 disables the check
}

// Backend implements domain.OrderBackend against the Polymarket CLOB. It
// prices each order by walking the current book, rejects fills that slip too
// far from the copied price, and submits Fill-Or-Kill so there is never a
// resting partial.
type Backend struct {
	clob   *ClobClient
	signer *crypto.Signer
	cfg    BackendConfig
}

// NewBackend creates an order backend on top of an authenticated ClobClient.
func NewBackend(clob *ClobClient, signer *crypto.Signer, cfg BackendConfig) *Backend {
	return &Backend{clob: clob, signer: signer, cfg: cfg}
}

// FetchOrderBook returns the current book snapshot for an asset.
func (b *Backend) FetchOrderBook(ctx context.Context, assetID string) (domain.OrderBook, error) {
	return b.clob.GetOrderBook(ctx, assetID)
}

// SubmitOrder prices req against the live book and submits a signed FOK
// order. For BUY, req.Amount is the quote notional to spend; for SELL it is
// the token quantity to unload. Returns domain.ErrEmptyOrderBook when there
// is no liquidity, domain.ErrSlippageExceeded when the walk-implied price
// deviates from req.Price beyond the configured tolerance, and
// domain.ErrInsufficientFunds when the venue rejects for balance.
func (b *Backend) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderReceipt, error) {
	book, err := b.clob.GetOrderBook(ctx, req.Asset)
	if err != nil {
		return domain.OrderReceipt{}, err
	}

	fill, err := planFill(book, req)
	if err != nil {
		return domain.OrderReceipt{}, err
	}

	if b.cfg.MaxSlippage > 0 && req.Price > 0 {
		slip := (fill.avgPrice - req.Price) / req.Price
		if req.Side == domain.SideSell {
			slip = -slip
		}
		if slip > b.cfg.MaxSlippage {
			return domain.OrderReceipt{}, fmt.Errorf(
				"polymarket/backend: fill price %.4f vs copied %.4f: %w",
				fill.avgPrice, req.Price, domain.ErrSlippageExceeded)
		}
	}

	payload := b.buildPayload(req, fill)
	sig, err := b.signer.SignOrder(payload)
	if err != nil {
		return domain.OrderReceipt{}, fmt.Errorf("polymarket/backend: sign order: %w", err)
	}

	result, err := b.clob.PostSignedOrder(ctx, payload, sig, string(domain.OrderTypeFOK))
	if err != nil {
		return domain.OrderReceipt{}, err
	}

	receipt := domain.OrderReceipt{
		OrderID:      result.OrderID,
		Success:      result.Success,
		AvgFillPrice: fill.avgPrice,
		FilledTokens: fill.tokens,
		Message:      result.ErrorMsg,
		SubmittedAt:  time.Now().UTC(),
	}
	if req.Side == domain.SideBuy {
		receipt.FilledAmount = fill.quote
	} else {
		receipt.FilledAmount = fill.tokens
	}

	if !result.Success {
		if isBalanceError(result.ErrorMsg) {
			return receipt, fmt.Errorf("polymarket/backend: %s: %w", result.ErrorMsg, domain.ErrInsufficientFunds)
		}
		return receipt, fmt.Errorf("polymarket/backend: order rejected: %s", result.ErrorMsg)
	}

	return receipt, nil
}

// --------------------------------------------------------------------------
// Book walking
// --------------------------------------------------------------------------

// fillPlan is the outcome of walking the book: how many tokens trade for how
// much quote, and the implied average price.
type fillPlan struct {
	tokens   float64
	quote    float64
	avgPrice float64
}

// planFill walks the opposing side of the book level by level until the
// requested amount is covered. A book with liquidity but not enough of it
// yields a reduced fill rather than an error; FOK semantics then apply to
// the reduced size.
func planFill(book domain.OrderBook, req domain.OrderRequest) (fillPlan, error) {
	var levels []domain.PriceLevel
	if req.Side == domain.SideBuy {
		levels = append([]domain.PriceLevel(nil), book.Asks...)
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	} else {
		levels = append([]domain.PriceLevel(nil), book.Bids...)
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	}
	if len(levels) == 0 {
		return fillPlan{}, fmt.Errorf("polymarket/backend: %s side for %s: %w",
			opposing(req.Side), req.Asset, domain.ErrEmptyOrderBook)
	}

	var plan fillPlan
	remaining := req.Amount

	for _, l := range levels {
		if remaining <= 0 || l.Price <= 0 || l.Size <= 0 {
			break
		}

		if req.Side == domain.SideBuy {
			levelQuote := l.Price * l.Size
			take := math.Min(levelQuote, remaining)
			plan.quote += take
			plan.tokens += take / l.Price
			remaining -= take
		} else {
			take := math.Min(l.Size, remaining)
			plan.tokens += take
			plan.quote += take * l.Price
			remaining -= take
		}
	}

	if plan.tokens <= 0 {
		return fillPlan{}, fmt.Errorf("polymarket/backend: no usable levels for %s: %w",
			req.Asset, domain.ErrEmptyOrderBook)
	}
	plan.avgPrice = plan.quote / plan.tokens
	return plan, nil
}

func opposing(side domain.Side) string {
	if side == domain.SideBuy {
		return "ask"
	}
	return "bid"
}

// buildPayload assembles the EIP-712 order struct. Amounts are 6-decimal
// fixed-point integers per the CTF Exchange convention.
func (b *Backend) buildPayload(req domain.OrderRequest, fill fillPlan) crypto.OrderPayload {
	signerAddr := b.signer.Address().Hex()
	maker := b.cfg.ProxyAddress
	if maker == "" {
		maker = signerAddr
	}

	quoteUnits := toFixed6(fill.quote)
	tokenUnits := toFixed6(fill.tokens)

	payload := crypto.OrderPayload{
		Salt:          strconv.FormatInt(rand.Int64N(math.MaxInt64), 10),
		Maker:         maker,
		Signer:        signerAddr,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       req.Asset,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		SignatureType: b.cfg.SignatureType,
	}

	if req.Side == domain.SideBuy {
		payload.Side = 0
		payload.MakerAmount = quoteUnits // spend USDC
		payload.TakerAmount = tokenUnits // receive tokens
	} else {
		payload.Side = 1
		payload.MakerAmount = tokenUnits // give tokens
		payload.TakerAmount = quoteUnits // receive USDC
	}
	return payload
}

// toFixed6 converts a float amount to a base-unit decimal string with six
// decimals of precision, rounding beyond that.
func toFixed6(v float64) string {
	return strconv.FormatInt(int64(math.Round(v*1e6)), 10)
}

func isBalanceError(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "not enough balance") ||
		strings.Contains(m, "insufficient") ||
		strings.Contains(m, "allowance")
}

// Compile-time interface check.
var _ domain.OrderBackend = (*Backend)(nil)
