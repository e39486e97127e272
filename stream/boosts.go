package stream

import (
	"time"
)

// Boosts maps an event category to an additive priority weight in
// milliseconds. An event's priority is its emission time in unix
// milliseconds plus the weights of its categories, so weights compete
// directly with recency.
//
// Total ordering contract: every weight must be at least the stream's
// retention window in milliseconds. Unboosted events can differ by at
// most the retention window (older ones are swept), so any single boost
// strictly dominates recency — a boosted event always outranks every
// unboosted event still in the stream. Keeping distinct weights at least
// one retention window apart extends the same argument between
// categories: "critical" beats "emergency" beats "high" regardless of
// which was emitted first.
type Boosts map[string]int64

// DefaultBoosts returns the standard severity ladder for a given
// retention window, spaced per the total ordering contract.
func DefaultBoosts(retention time.Duration) Boosts {
	r := retention.Milliseconds()
	return Boosts{
		"high":      2 * r,
		"emergency": 4 * r,
		"critical":  6 * r,
	}
}

// weight sums the boost for each category, ignoring unknown ones.
func (b Boosts) weight(categories []string) int64 {
	var total int64
	for _, c := range categories {
		total += b[c]
	}
	return total
}

// violations lists categories whose weight is too small to dominate
// recency within the retention window.
func (b Boosts) violations(retention time.Duration) []string {
	r := retention.Milliseconds()
	var bad []string
	for cat, w := range b {
		if w < r {
			bad = append(bad, cat)
		}
	}
	return bad
}
