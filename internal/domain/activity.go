package domain

import "time"

// Side indicates whether the observed trade bought or sold outcome tokens.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ClaimState is the lifecycle state of an activity record. Transitions only
// move forward: Unclaimed -> Claiming -> Processed.
type ClaimState string

const (
	ClaimStateUnclaimed ClaimState = "unclaimed"
	ClaimStateClaiming  ClaimState = "claiming"
	ClaimStateProcessed ClaimState = "processed"
)

// Activity is one observed trade made by a watched trader, as ingested from
// the Polymarket data API. The ingestor is the only writer of new rows; the
// execution pipeline is the only writer of claim state.
type Activity struct {
	ID            int64
	TraderAddress string
	ConditionID   string
	Asset         string // outcome token ID
	Side          Side
	Size          float64 // outcome tokens
	UsdcSize      float64 // quote notional
	Price         float64
	Timestamp     time.Time
	Slug          string
	EventSlug     string
	TxHash        string
	ClaimState    ClaimState
	CreatedAt     time.Time
}

// Market returns the display label for log lines: the market slug when the
// ingested activity carried one, otherwise the raw asset ID.
func (a Activity) Market() string {
	if a.Slug != "" {
		return a.Slug
	}
	return a.Asset
}
