package risk

import (
	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
)

// Channel names one independent source of fraud evidence
type Channel string

const (
	ChannelVoice       Channel = "voice"
	ChannelVideo       Channel = "video"
	ChannelBiometric   Channel = "biometric"
	ChannelTransaction Channel = "transaction"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelVoice, ChannelVideo, ChannelBiometric, ChannelTransaction:
		return true
	}
	return false
}

// ChannelResult is one channel's sub-score with its supporting evidence.
// A non-empty Error marks the channel as degraded; its RiskScore is then
// NeutralScore and it still takes part in fusion.
type ChannelResult struct {
	Channel   Channel                `json:"channel"`
	RiskScore Score                  `json:"risk_score"`
	Evidence  map[string]interface{} `json:"evidence,omitempty"`
	Error     string                 `json:"error,omitempty"`
	ErrorCode string                 `json:"error_code,omitempty"`
}

// NewChannelResult builds a healthy result with a clamped score.
func NewChannelResult(channel Channel, score float64, evidence map[string]interface{}) ChannelResult {
	if evidence == nil {
		evidence = make(map[string]interface{})
	}
	return ChannelResult{
		Channel:   channel,
		RiskScore: NewScore(score),
		Evidence:  evidence,
	}
}

// Degraded builds the neutral result used when a channel fails.
func Degraded(channel Channel, err error, evidence map[string]interface{}) ChannelResult {
	if evidence == nil {
		evidence = make(map[string]interface{})
	}
	res := ChannelResult{
		Channel:   channel,
		RiskScore: NeutralScore,
		Evidence:  evidence,
	}
	if err != nil {
		res.Error = err.Error()
		res.ErrorCode = errors.GetCode(err)
		if appErr, ok := errors.As(err); ok {
			res.Error = appErr.Message
		}
	}
	return res
}

// Failed reports whether the channel degraded.
func (r ChannelResult) Failed() bool {
	return r.Error != ""
}
