package sizing

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tier maps a range of observed trade sizes to a multiplier. Max == 0 means
// an unbounded upper edge ("500+").
type Tier struct {
	Min        float64
	Max        float64
	Multiplier float64
}

// ParseTiers parses the "min-max:multiplier" list format, e.g.
// "1-10:2.0,10-100:1.0,100-500:0.2,500+:0.1". An empty string yields no
// tiers. Tiers are returned sorted by Min; overlaps and a non-final unbounded
// tier are rejected.
func ParseTiers(s string) ([]Tier, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var tiers []Tier
	for _, def := range strings.Split(s, ",") {
		def = strings.TrimSpace(def)
		if def == "" {
			continue
		}

		rangeStr, multStr, ok := strings.Cut(def, ":")
		if !ok {
			return nil, fmt.Errorf("invalid tier %q: expected \"min-max:multiplier\" or \"min+:multiplier\"", def)
		}

		mult, err := strconv.ParseFloat(strings.TrimSpace(multStr), 64)
		if err != nil || mult < 0 {
			return nil, fmt.Errorf("invalid multiplier in tier %q", def)
		}

		switch {
		case strings.HasSuffix(rangeStr, "+"):
			min, err := strconv.ParseFloat(strings.TrimSuffix(rangeStr, "+"), 64)
			if err != nil || min < 0 {
				return nil, fmt.Errorf("invalid minimum in tier %q", def)
			}
			tiers = append(tiers, Tier{Min: min, Multiplier: mult})
		case strings.Contains(rangeStr, "-"):
			minStr, maxStr, _ := strings.Cut(rangeStr, "-")
			min, errMin := strconv.ParseFloat(minStr, 64)
			max, errMax := strconv.ParseFloat(maxStr, 64)
			if errMin != nil || errMax != nil || min < 0 {
				return nil, fmt.Errorf("invalid range in tier %q", def)
			}
			if max <= min {
				return nil, fmt.Errorf("invalid range in tier %q: max must exceed min", def)
			}
			tiers = append(tiers, Tier{Min: min, Max: max, Multiplier: mult})
		default:
			return nil, fmt.Errorf("invalid range in tier %q: use \"min-max\" or \"min+\"", def)
		}
	}

	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Min < tiers[j].Min })

	for i := 0; i < len(tiers)-1; i++ {
		if tiers[i].Max == 0 {
			return nil, fmt.Errorf("unbounded tier %g+ must be last", tiers[i].Min)
		}
		if tiers[i].Max > tiers[i+1].Min {
			return nil, fmt.Errorf("overlapping tiers at %g", tiers[i+1].Min)
		}
	}

	return tiers, nil
}
