package fraud

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// BiometricScorer combines a liveness verdict with face similarity.
type BiometricScorer struct {
	service   BiometricService
	threshold float64
	logger    *slog.Logger
}

// NewBiometricScorer creates a biometric scorer.
func NewBiometricScorer(service BiometricService, cfg BiometricConfig, logger *slog.Logger) *BiometricScorer {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BiometricScorer{service: service, threshold: cfg.SimilarityThreshold, logger: logger}
}

// Verify fetches the liveness result and compares the two faces concurrently.
func (s *BiometricScorer) Verify(ctx context.Context, sessionID string, reference, probe FaceImage) (risk.BiometricResult, error) {
	if sessionID == "" {
		return risk.BiometricResult{}, errors.NewValidationError("SESSION_REQUIRED", "liveness session id is required")
	}

	var (
		liveness   risk.LivenessResult
		similarity float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		liveness, err = s.service.GetLivenessResult(gctx, sessionID)
		if err != nil {
			return asExternal("rekognition", "get liveness result", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		similarity, err = s.service.CompareFaces(gctx, reference, probe)
		if err != nil {
			return asExternal("rekognition", "compare faces", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return risk.BiometricResult{}, err
	}

	return s.evaluate(liveness, similarity), nil
}

func (s *BiometricScorer) evaluate(liveness risk.LivenessResult, similarity float64) risk.BiometricResult {
	similarity = risk.Clamp(similarity, 0, 100)
	match := risk.FaceMatch{
		Similarity: similarity,
		Matched:    similarity > s.threshold,
	}
	return risk.BiometricResult{
		Liveness:  liveness,
		FaceMatch: match,
		Passed:    liveness.Status.IsLive() && match.Matched,
	}
}

// Score converts a biometric result into a channel sub-score. A live subject
// is scored on dissimilarity alone; otherwise low liveness confidence can
// raise the score further.
func (s *BiometricScorer) Score(res risk.BiometricResult) risk.ChannelResult {
	dissimilarity := 1 - res.FaceMatch.Similarity/100
	score := dissimilarity
	if !res.Liveness.Status.IsLive() {
		score = math.Max(dissimilarity, 1-res.Liveness.Confidence/100)
	}
	return risk.NewChannelResult(risk.ChannelBiometric, score, map[string]interface{}{
		"liveness_status":     string(res.Liveness.Status),
		"liveness_confidence": res.Liveness.Confidence,
		"similarity":          res.FaceMatch.Similarity,
		"matched":             res.FaceMatch.Matched,
		"passed":              res.Passed,
	})
}

// Degrade builds the neutral biometric result after a failed verification.
func (s *BiometricScorer) Degrade(ctx context.Context, err error) risk.ChannelResult {
	s.logger.WarnContext(ctx, "biometric channel degraded",
		"channel", risk.ChannelBiometric,
		"error", err)
	return risk.Degraded(risk.ChannelBiometric, err, nil)
}
