package risk

import "math"

// Score is a risk value in [0, 1]. Construct it with NewScore so it is
// always clamped.
type Score float64

const (
	// MinScore is the lowest representable risk
	MinScore Score = 0.0

	// MaxScore is the highest representable risk
	MaxScore Score = 1.0

	// NeutralScore is used when a channel degrades or has nothing to score
	NeutralScore Score = 0.5
)

// NewScore clamps v into [0, 1]. NaN maps to NeutralScore.
func NewScore(v float64) Score {
	return Score(Clamp(v, 0, 1))
}

// Float64 returns the raw value.
func (s Score) Float64() float64 {
	return float64(s)
}

// Exceeds reports whether the score is strictly above threshold.
func (s Score) Exceeds(threshold float64) bool {
	return float64(s) > threshold
}

// Clamp bounds v into [lo, hi]. NaN maps to the midpoint.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo + (hi-lo)/2
	}
	return math.Max(lo, math.Min(hi, v))
}
