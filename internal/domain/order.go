package domain

import "time"

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// OrderRequest is the instruction handed to the order backend. Amount is a
// quote (USDC) notional for BUY and a token quantity for SELL, matching the
// venue's market-order semantics. Price is the observed or weighted-average
// price being copied; the backend uses it for slippage protection only.
type OrderRequest struct {
	Side   Side
	Asset  string
	Amount float64
	Price  float64
}

// OrderReceipt reports the outcome of one backend submission.
type OrderReceipt struct {
	OrderID      string
	Success      bool
	FilledAmount float64 // quote for BUY, tokens for SELL
	FilledTokens float64
	AvgFillPrice float64
	Message      string
	SubmittedAt  time.Time
}

// PriceLevel is a single price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a snapshot of resting liquidity for one asset.
type OrderBook struct {
	AssetID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest-priced bid, or a zero level when empty.
func (b OrderBook) BestBid() PriceLevel {
	var best PriceLevel
	for _, l := range b.Bids {
		if l.Price > best.Price {
			best = l
		}
	}
	return best
}

// BestAsk returns the lowest-priced ask, or a zero level when empty.
func (b OrderBook) BestAsk() PriceLevel {
	var best PriceLevel
	for _, l := range b.Asks {
		if best.Price == 0 || (l.Price > 0 && l.Price < best.Price) {
			best = l
		}
	}
	return best
}
