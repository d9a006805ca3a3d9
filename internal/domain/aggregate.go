package domain

import "time"

// AggregationKey identifies one in-flight aggregation. Two activities with the
// same key are economically fungible and may be batched into a single order.
type AggregationKey struct {
	TraderAddress string
	ConditionID   string
	Asset         string
	Side          Side
}

// KeyOf returns the aggregation key for an activity.
func KeyOf(a Activity) AggregationKey {
	return AggregationKey{
		TraderAddress: a.TraderAddress,
		ConditionID:   a.ConditionID,
		Asset:         a.Asset,
		Side:          a.Side,
	}
}

// AggregatedTrade accumulates small same-key activities until the aggregation
// window closes. TotalUsdcSize is always the sum of constituent sizes and
// AvgPrice the size-weighted mean price over all constituents seen so far.
type AggregatedTrade struct {
	Key           AggregationKey
	Activities    []Activity
	TotalUsdcSize float64
	AvgPrice      float64
	Slug          string
	EventSlug     string
	FirstSeenAt   time.Time
	LastUpdatedAt time.Time
}

// Add folds one more activity into the accumulator and recomputes the
// size-weighted average price. FirstSeenAt is fixed at creation; only
// LastUpdatedAt moves.
func (g *AggregatedTrade) Add(a Activity, now time.Time) {
	g.Activities = append(g.Activities, a)
	g.TotalUsdcSize += a.UsdcSize

	var weighted float64
	for _, c := range g.Activities {
		weighted += c.UsdcSize * c.Price
	}
	if g.TotalUsdcSize > 0 {
		g.AvgPrice = weighted / g.TotalUsdcSize
	} else {
		g.AvgPrice = 0
	}
	g.LastUpdatedAt = now
}

// Synthetic flattens the aggregation into a single activity carrying the
// combined notional and the weighted average price, suitable for settlement.
func (g *AggregatedTrade) Synthetic() Activity {
	return Activity{
		TraderAddress: g.Key.TraderAddress,
		ConditionID:   g.Key.ConditionID,
		Asset:         g.Key.Asset,
		Side:          g.Key.Side,
		UsdcSize:      g.TotalUsdcSize,
		Price:         g.AvgPrice,
		Slug:          g.Slug,
		EventSlug:     g.EventSlug,
		Timestamp:     g.FirstSeenAt,
	}
}

// IDs returns the store IDs of all constituent activities.
func (g *AggregatedTrade) IDs() []int64 {
	ids := make([]int64, 0, len(g.Activities))
	for _, a := range g.Activities {
		ids = append(ids, a.ID)
	}
	return ids
}
