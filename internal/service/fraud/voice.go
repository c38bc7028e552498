package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// VoiceScorer turns an audio artifact into a voice-channel sub-score from
// transcript keywords, fraud-pattern categories and sentiment.
type VoiceScorer struct {
	normalizer  AudioNormalizer
	store       ObjectStore
	transcriber Transcriber
	text        TextAnalysisService
	matcher     *PatternMatcher
	cfg         VoiceConfig
	logger      *slog.Logger
}

// NewVoiceScorer creates a voice scorer.
func NewVoiceScorer(
	normalizer AudioNormalizer,
	store ObjectStore,
	transcriber Transcriber,
	text TextAnalysisService,
	cfg VoiceConfig,
	logger *slog.Logger,
) *VoiceScorer {
	if cfg.CanonicalLanguage == "" {
		cfg.CanonicalLanguage = DefaultCanonicalLanguage
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VoiceScorer{
		normalizer:  normalizer,
		store:       store,
		transcriber: transcriber,
		text:        text,
		matcher:     NewPatternMatcher(cfg.Keywords, cfg.Patterns),
		cfg:         cfg,
		logger:      logger,
	}
}

// Score never returns an error: any collaborator failure yields a degraded
// result with the neutral score.
func (s *VoiceScorer) Score(ctx context.Context, audio risk.AudioArtifact) risk.ChannelResult {
	evidence := map[string]interface{}{
		"transcript":       "",
		"sentiment":        string(risk.SentimentNeutral),
		"flagged_keywords": []string{},
		"matched_patterns": []string{},
	}

	normalized, err := s.normalizer.Normalize(ctx, audio)
	if err != nil {
		return s.degrade(ctx, err, evidence)
	}
	if normalized.Path != audio.Path {
		defer s.removeLocal(ctx, normalized)
	}

	key := path.Join(audioKeyPrefix, uuid.NewString(), filepath.Base(normalized.Path))
	uri, err := s.upload(ctx, key, normalized.Path)
	if err != nil {
		return s.degrade(ctx, err, evidence)
	}
	defer s.deleteObject(ctx, key)
	evidence["audio_uri"] = uri

	transcript, err := s.transcriber.Transcribe(ctx, uri, s.cfg.TranscriptionLanguage())
	if err != nil {
		return s.degrade(ctx, err, evidence)
	}
	language := transcript.Language
	if language == "" {
		language = s.cfg.TranscriptionLanguage()
	}
	evidence["language"] = language
	if transcript.Empty() {
		return risk.NewChannelResult(risk.ChannelVoice, risk.NeutralScore.Float64(), evidence)
	}
	evidence["transcript"] = transcript.Text

	sentiment := risk.SentimentResult{Label: risk.SentimentNeutral}
	if s.cfg.EnableSentimentAnalysis {
		sentiment, err = s.sentiment(ctx, transcript.Text, evidence)
		if err != nil {
			return s.degrade(ctx, err, evidence)
		}
	}
	evidence["sentiment"] = string(sentiment.Label)

	match := s.matcher.Match(transcript.Text)
	evidence["flagged_keywords"] = match.Keywords
	evidence["matched_patterns"] = match.Patterns

	return risk.NewChannelResult(risk.ChannelVoice, s.compute(match, sentiment.Label), evidence)
}

// compute is clamp(|matched|/|K| + pattern bonus + sentiment adjustment).
func (s *VoiceScorer) compute(match risk.PatternMatch, label risk.Sentiment) float64 {
	var score float64
	if n := s.matcher.KeywordCount(); n > 0 {
		score = float64(len(match.Keywords)) / float64(n)
	}
	if match.Any() {
		score += s.cfg.PatternBonus
	}
	switch label {
	case risk.SentimentNegative:
		score += s.cfg.NegativeAdjustment
	case risk.SentimentPositive:
		score += s.cfg.PositiveAdjustment
	}
	return risk.NewScore(score).Float64()
}

// sentiment detects the dominant language, translates to the canonical
// language when needed, then runs sentiment detection on the result.
func (s *VoiceScorer) sentiment(ctx context.Context, text string, evidence map[string]interface{}) (risk.SentimentResult, error) {
	lang, err := s.text.DetectLanguage(ctx, text)
	if err != nil {
		return risk.SentimentResult{}, err
	}
	evidence["detected_language"] = lang
	evidence["translated"] = false

	analyzed := text
	if lang != s.cfg.CanonicalLanguage {
		analyzed, err = s.text.Translate(ctx, text, lang, s.cfg.CanonicalLanguage)
		if err != nil {
			return risk.SentimentResult{}, err
		}
		evidence["translated"] = true
		evidence["translation"] = analyzed
	}

	return s.text.DetectSentiment(ctx, analyzed, s.cfg.CanonicalLanguage)
}

func (s *VoiceScorer) upload(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", errors.NewInternalError("open normalized audio").WithCause(err)
	}
	defer f.Close()

	uri, err := s.store.Put(ctx, key, f, "audio/wav")
	if err != nil {
		return "", asExternal("s3", fmt.Sprintf("upload %s", key), err)
	}
	return uri, nil
}

func (s *VoiceScorer) degrade(ctx context.Context, err error, evidence map[string]interface{}) risk.ChannelResult {
	s.logger.WarnContext(ctx, "voice channel degraded",
		"channel", risk.ChannelVoice,
		"error", err)
	return risk.Degraded(risk.ChannelVoice, err, evidence)
}

func (s *VoiceScorer) deleteObject(ctx context.Context, key string) {
	deleteObject(ctx, s.store, key, s.logger)
}

func (s *VoiceScorer) removeLocal(ctx context.Context, a risk.AudioArtifact) {
	if err := a.Remove(); err != nil {
		s.logger.WarnContext(ctx, "failed to remove normalized audio", "path", a.Path, "error", err)
	}
}

// deleteObject removes an uploaded object even when ctx is already done.
func deleteObject(ctx context.Context, store ObjectStore, key string, logger *slog.Logger) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := store.Delete(cleanupCtx, key); err != nil {
		logger.WarnContext(ctx, "failed to delete temporary object", "key", key, "error", err)
	}
}

// timed runs fn and reports its duration to the recorder.
func timed(ctx context.Context, recorder Recorder, fn func() risk.ChannelResult) risk.ChannelResult {
	start := time.Now()
	res := fn()
	recorder.RecordChannel(ctx, res.Channel, time.Since(start), res.Failed())
	return res
}
