package fraud

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// FusionEngine combines channel sub-scores into one decision.
type FusionEngine struct {
	threshold float64
	now       func() time.Time
}

// NewFusionEngine creates an engine with the given decision threshold.
func NewFusionEngine(threshold float64) *FusionEngine {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultDecisionThreshold
	}
	return &FusionEngine{threshold: threshold, now: time.Now}
}

// Threshold returns the configured decision threshold.
func (f *FusionEngine) Threshold() float64 {
	return f.threshold
}

// Fuse returns the weighted mean of the channel scores. Channels without a
// weight count as 1.0 and negative weights as 0; when weights is empty or
// every weight is zero the plain mean is used. Degraded channels contribute
// their neutral score. An empty input fuses to NeutralScore.
func (f *FusionEngine) Fuse(results []risk.ChannelResult, weights map[risk.Channel]float64) risk.FraudDecision {
	decision := risk.FraudDecision{
		ID:        uuid.New(),
		RiskScore: risk.NeutralScore,
		Threshold: f.threshold,
		Channels:  results,
		DecidedAt: f.now().UTC(),
	}
	if decision.Channels == nil {
		decision.Channels = []risk.ChannelResult{}
	}
	if len(results) == 0 {
		return decision
	}

	var sum, weightSum, plain float64
	for _, r := range results {
		s := r.RiskScore.Float64()
		plain += s

		w := 1.0
		if len(weights) > 0 {
			if v, ok := weights[r.Channel]; ok {
				w = v
			}
		}
		if w < 0 {
			w = 0
		}
		sum += w * s
		weightSum += w
	}

	fused := plain / float64(len(results))
	if weightSum > 0 {
		fused = sum / weightSum
	}

	decision.RiskScore = risk.NewScore(fused)
	decision.IsFraud = decision.RiskScore.Exceeds(f.threshold)
	return decision
}
