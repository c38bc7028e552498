package risk

import (
	"time"

	"github.com/google/uuid"
)

// FraudDecision is the fused outcome of one assessment. IsFraud is a pure
// function of RiskScore and Threshold.
type FraudDecision struct {
	ID        uuid.UUID       `json:"id"`
	RiskScore Score           `json:"risk_score"`
	IsFraud   bool            `json:"is_fraud"`
	Threshold float64         `json:"threshold"`
	Channels  []ChannelResult `json:"channels"`
	DecidedAt time.Time       `json:"decided_at"`
}

// DegradedChannels returns the names of channels that reported an error.
func (d FraudDecision) DegradedChannels() []Channel {
	var out []Channel
	for _, c := range d.Channels {
		if c.Failed() {
			out = append(out, c.Channel)
		}
	}
	return out
}
