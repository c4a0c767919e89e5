package search

import (
	"math"
	"time"
)

// DecayHalfLife is the time-decay half-life applied to every candidate
// score (spec §4.5 step 5): a fact asserted 90 days ago scores half of an
// identical fact asserted now.
const DecayHalfLife = 90 * 24 * time.Hour

// timeDecay applies an exponential half-life decay to score based on the
// age of createdAt relative to now.
func timeDecay(score float64, createdAt, now time.Time) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return score
	}
	halfLives := float64(age) / float64(DecayHalfLife)
	return score * math.Pow(0.5, halfLives)
}
