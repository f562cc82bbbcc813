package ownership

import (
	"math"
	"time"
)

// DecayFunc ages a weight by the elapsed time. It must be non-increasing in
// elapsed and return weight unchanged for elapsed <= 0.
type DecayFunc func(weight float64, elapsed time.Duration) float64

// ContributionFunc converts a change's line counts into a weight delta
type ContributionFunc func(linesAdded, linesRemoved int) float64

// HalfLifeDecay halves a weight every halfLifeDays
func HalfLifeDecay(halfLifeDays float64) DecayFunc {
	return func(weight float64, elapsed time.Duration) float64 {
		if elapsed <= 0 || weight == 0 {
			return weight
		}
		days := elapsed.Hours() / 24
		return weight * math.Pow(0.5, days/halfLifeDays)
	}
}

// NoDecay keeps weights constant
func NoDecay() DecayFunc {
	return func(weight float64, _ time.Duration) float64 { return weight }
}

// LogContribution is log1p(added + c*removed): deletions count at coefficient
// c, and a single huge commit grows only logarithmically.
func LogContribution(deletionCoefficient float64) ContributionFunc {
	return func(added, removed int) float64 {
		return math.Log1p(float64(added) + deletionCoefficient*float64(removed))
	}
}

// LinearContribution is added + c*removed
func LinearContribution(deletionCoefficient float64) ContributionFunc {
	return func(added, removed int) float64 {
		return float64(added) + deletionCoefficient*float64(removed)
	}
}
