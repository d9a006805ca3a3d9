package domain

import "time"

// Position is an open outcome-token position held by a wallet, as reported by
// the Polymarket data API (or the trader_positions snapshot table).
type Position struct {
	Wallet       string
	ConditionID  string
	Asset        string
	Size         float64 // outcome tokens
	AvgPrice     float64
	InitialValue float64
	CurrentValue float64
	CashPnL      float64
	PercentPnL   float64
	CurPrice     float64
	Redeemable   bool
	Title        string
	Slug         string
	EventSlug    string
	UpdatedAt    time.Time
}

// PortfolioValue sums the current value of a position list. It is the
// denominator of the PERCENTAGE sizing mode (the trader's capital base).
func PortfolioValue(positions []Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.CurrentValue
	}
	return total
}

// FindByCondition returns the first position for the given condition ID, or
// nil when the wallet holds none.
func FindByCondition(positions []Position, conditionID string) *Position {
	for i := range positions {
		if positions[i].ConditionID == conditionID {
			return &positions[i]
		}
	}
	return nil
}
