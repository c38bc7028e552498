package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

// Validate rejects values the scoring engine cannot work with
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port must be between 1 and 65535")
	check(c.Server.MaxUploadBytes > 0, "server.max_upload_bytes must be positive")
	check(c.Server.RequestTimeout > 0, "server.request_timeout must be positive")
	check(c.Server.WriteTimeout <= 0 || c.Server.RequestTimeout <= c.Server.WriteTimeout,
		"server.request_timeout must not exceed server.write_timeout")
	check(c.Transcription.MaxWait < c.Server.RequestTimeout,
		"transcription.max_wait must be shorter than server.request_timeout")

	check(inUnit(c.Scoring.DecisionThreshold) && c.Scoring.DecisionThreshold > 0 && c.Scoring.DecisionThreshold < 1,
		"scoring.decision_threshold must be in (0, 1)")
	for name, w := range c.Scoring.Weights {
		check(risk.Channel(name).Valid(), "scoring.weights: unknown channel %q", name)
		check(w >= 0, "scoring.weights.%s must not be negative", name)
	}

	check(c.Transcription.PollInterval > 0, "transcription.poll_interval must be positive")
	check(c.Transcription.MaxWait >= c.Transcription.PollInterval, "transcription.max_wait must be at least poll_interval")

	check(c.Video.FrameSkip >= 1, "video.frame_skip must be at least 1")
	check(c.Video.FrameSize >= 1, "video.frame_size must be at least 1")

	check(c.Biometric.SimilarityThreshold > 0 && c.Biometric.SimilarityThreshold <= 100,
		"biometric.similarity_threshold must be in (0, 100]")

	t := c.Transactions
	check(t.SmallAmount > 0, "transactions.small_amount must be positive")
	check(t.AccumulationCeiling > 0, "transactions.accumulation_ceiling must be positive")
	check(t.MaxLocations >= 1, "transactions.max_locations must be at least 1")
	check(t.BurstWindow > 0, "transactions.burst_window must be positive")
	check(t.BurstMinTransactions >= 2, "transactions.burst_min_transactions must be at least 2")
	check(inUnit(t.AccumulationFlag) && inUnit(t.DispersionFlag) && inUnit(t.BurstFlag),
		"transactions flags must be in [0, 1]")
	check(inUnit(t.DefaultUserRiskScore), "transactions.default_user_risk_score must be in [0, 1]")

	check(c.Voice.PatternBonus >= 0, "voice.pattern_bonus must not be negative")

	if c.AWS.Enabled {
		check(c.AWS.Region != "", "aws.region is required")
		check(c.Storage.Bucket != "", "storage.bucket is required when aws is enabled")
	}
	check(c.Telemetry.SamplingRate >= 0 && c.Telemetry.SamplingRate <= 1, "telemetry.sampling_rate must be in [0, 1]")

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

// Fraud converts the scoring sections into the orchestrator configuration
func (c *Config) Fraud() fraud.Config {
	cfg := fraud.DefaultConfig()
	cfg.Region = c.AWS.Region

	cfg.Scoring.DecisionThreshold = c.Scoring.DecisionThreshold
	if len(c.Scoring.Weights) > 0 {
		cfg.Scoring.Weights = make(map[risk.Channel]float64, len(c.Scoring.Weights))
		for name, w := range c.Scoring.Weights {
			cfg.Scoring.Weights[risk.Channel(strings.ToLower(name))] = w
		}
	}

	cfg.Voice.EnableHindiSupport = c.Voice.EnableHindiSupport
	cfg.Voice.EnableSentimentAnalysis = c.Voice.EnableSentimentAnalysis
	cfg.Voice.CanonicalLanguage = c.Voice.CanonicalLanguage
	cfg.Voice.PatternBonus = c.Voice.PatternBonus
	cfg.Voice.NegativeAdjustment = c.Voice.NegativeAdjustment
	cfg.Voice.PositiveAdjustment = c.Voice.PositiveAdjustment
	if len(c.Voice.Keywords) > 0 {
		cfg.Voice.Keywords = c.Voice.Keywords
	}

	cfg.Transcription.PollInterval = c.Transcription.PollInterval
	cfg.Transcription.MaxWait = c.Transcription.MaxWait

	cfg.Video.FrameSkip = c.Video.FrameSkip
	cfg.Video.FrameSize = c.Video.FrameSize

	cfg.Biometric.SimilarityThreshold = c.Biometric.SimilarityThreshold

	cfg.Transactions = fraud.TransactionConfig{
		SmallAmount:          c.Transactions.SmallAmount,
		AccumulationCeiling:  c.Transactions.AccumulationCeiling,
		AccumulationFlag:     c.Transactions.AccumulationFlag,
		MaxLocations:         c.Transactions.MaxLocations,
		DispersionFlag:       c.Transactions.DispersionFlag,
		BurstWindow:          c.Transactions.BurstWindow,
		BurstMinTransactions: c.Transactions.BurstMinTransactions,
		BurstFlag:            c.Transactions.BurstFlag,
		DefaultUserRiskScore: c.Transactions.DefaultUserRiskScore,
	}
	return cfg
}
