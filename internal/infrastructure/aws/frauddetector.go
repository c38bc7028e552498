package aws

import (
	"context"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/frauddetector"
	"github.com/aws/aws-sdk-go-v2/service/frauddetector/types"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

// modelScoreScale is the upper bound of Fraud Detector model scores
const modelScoreScale = 1000.0

type fraudDetectorAPI interface {
	GetEventPrediction(ctx context.Context, params *frauddetector.GetEventPredictionInput, optFns ...func(*frauddetector.Options)) (*frauddetector.GetEventPredictionOutput, error)
}

// DetectorConfig names the detector, event type and entity type
type DetectorConfig struct {
	DetectorID string
	EventType  string
	EntityType string
}

// FraudScoreService asks Amazon Fraud Detector for a transaction prediction.
type FraudScoreService struct {
	client fraudDetectorAPI
	cfg    DetectorConfig
}

func NewFraudScoreService(awsCfg awssdk.Config, cfg DetectorConfig) *FraudScoreService {
	return newFraudScoreService(frauddetector.NewFromConfig(awsCfg), cfg)
}

func newFraudScoreService(client fraudDetectorAPI, cfg DetectorConfig) *FraudScoreService {
	return &FraudScoreService{client: client, cfg: cfg}
}

// Predict returns the highest model score scaled to [0, 1] and the ids of
// the rules that matched.
func (s *FraudScoreService) Predict(ctx context.Context, event fraud.FraudEvent) (*fraud.Prediction, error) {
	out, err := s.client.GetEventPrediction(ctx, &frauddetector.GetEventPredictionInput{
		DetectorId:     awssdk.String(s.cfg.DetectorID),
		EventId:        awssdk.String(event.EventID),
		EventTypeName:  awssdk.String(s.cfg.EventType),
		EventTimestamp: awssdk.String(event.Timestamp.UTC().Format(time.RFC3339)),
		Entities: []types.Entity{{
			EntityType: awssdk.String(s.cfg.EntityType),
			EntityId:   awssdk.String(event.EntityID),
		}},
		EventVariables: event.Variables,
	})
	if err != nil {
		return nil, serviceError("frauddetector", "get event prediction", err)
	}

	var (
		best   float32
		scored bool
	)
	for _, ms := range out.ModelScores {
		for _, v := range ms.Scores {
			if !scored || v > best {
				best = v
			}
			scored = true
		}
	}

	rules := make([]string, 0, len(out.RuleResults))
	for _, r := range out.RuleResults {
		if id := awssdk.ToString(r.RuleId); id != "" {
			rules = append(rules, id)
		}
	}

	// rules-only detectors return no model score
	score := risk.NeutralScore.Float64()
	if scored {
		score = risk.Clamp(float64(best)/modelScoreScale, 0, 1)
	}

	return &fraud.Prediction{
		RiskScore: score,
		RuleIDs:   rules,
	}, nil
}
