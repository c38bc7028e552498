package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/telemetry"
)

// Dependencies are the collaborators wired into the orchestrator. Classifier
// may be nil (model unavailable). Publisher, Decisions, Feedback, Sessions
// and Recorder are optional.
type Dependencies struct {
	Store         ObjectStore
	Normalizer    AudioNormalizer
	Transcription TranscriptionService
	Fetcher       TranscriptFetcher
	Text          TextAnalysisService
	Biometric     BiometricService
	Decoder       FrameDecoder
	Classifier    FrameClassifier
	Probe         ProbeExtractor
	FraudScore    FraudScoreService
	Publisher     EventPublisher
	Decisions     DecisionStore
	Feedback      FeedbackStore
	Sessions      SessionRegistry
	Recorder      Recorder
	Logger        *slog.Logger
}

// Orchestrator implements Service. It owns the lifecycle of temporary
// artifacts and uploaded objects for every request it handles.
type Orchestrator struct {
	cfg Config

	voice     *VoiceScorer
	video     *VideoScorer
	biometric *BiometricScorer
	window    *WindowAnalyzer
	fusion    *FusionEngine

	store      ObjectStore
	bio        BiometricService
	probe      ProbeExtractor
	fraudScore FraudScoreService
	publisher  EventPublisher
	decisions  DecisionStore
	feedback   FeedbackStore
	sessions   SessionRegistry
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
}

var _ Service = (*Orchestrator)(nil)

// NewOrchestrator creates the fraud orchestrator.
func NewOrchestrator(cfg Config, deps Dependencies) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.NewInternalError("object store is required")
	}
	if deps.Normalizer == nil {
		return nil, errors.NewInternalError("audio normalizer is required")
	}
	if deps.Transcription == nil || deps.Fetcher == nil {
		return nil, errors.NewInternalError("transcription service and fetcher are required")
	}
	if deps.Text == nil {
		return nil, errors.NewInternalError("text analysis service is required")
	}
	if deps.Biometric == nil {
		return nil, errors.NewInternalError("biometric service is required")
	}
	if deps.Decoder == nil || deps.Probe == nil {
		return nil, errors.NewInternalError("frame decoder and probe extractor are required")
	}
	if deps.FraudScore == nil {
		return nil, errors.NewInternalError("fraud score service is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	logger := deps.Logger.With("component", "fraud_orchestrator")
	transcriber := NewTranscriptionCoordinator(deps.Transcription, deps.Fetcher, cfg.Transcription, deps.Recorder, logger)

	return &Orchestrator{
		cfg:        cfg,
		voice:      NewVoiceScorer(deps.Normalizer, deps.Store, transcriber, deps.Text, cfg.Voice, logger),
		video:      NewVideoScorer(deps.Decoder, deps.Classifier, cfg.Video, logger),
		biometric:  NewBiometricScorer(deps.Biometric, cfg.Biometric, logger),
		window:     NewWindowAnalyzer(cfg.Transactions),
		fusion:     NewFusionEngine(cfg.Scoring.DecisionThreshold),
		store:      deps.Store,
		bio:        deps.Biometric,
		probe:      deps.Probe,
		fraudScore: deps.FraudScore,
		publisher:  deps.Publisher,
		decisions:  deps.Decisions,
		feedback:   deps.Feedback,
		sessions:   deps.Sessions,
		recorder:   deps.Recorder,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Detect scores the video and, when present, the audio concurrently, then
// fuses both. Artifact files are removed before returning.
func (o *Orchestrator) Detect(ctx context.Context, req DetectRequest) (_ *DetectResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fraud.detect", map[string]interface{}{
		"request.id": req.RequestID,
		"has_audio":  req.Audio != nil,
	})
	defer func() { telemetry.EndSpan(span, err) }()

	defer o.removeArtifact(ctx, req.Video.Path, req.Video.Remove)
	if req.Audio != nil {
		defer o.removeArtifact(ctx, req.Audio.Path, req.Audio.Remove)
	}

	if req.Video.Path == "" {
		return nil, errors.ErrMissingVideo
	}

	var (
		g        errgroup.Group
		deepfake risk.ChannelResult
		voice    *risk.ChannelResult
	)
	g.Go(func() error {
		deepfake = timed(ctx, o.recorder, func() risk.ChannelResult {
			return o.video.Score(ctx, req.Video)
		})
		return nil
	})
	if req.Audio != nil {
		audio := *req.Audio
		g.Go(func() error {
			res := timed(ctx, o.recorder, func() risk.ChannelResult {
				return o.voice.Score(ctx, audio)
			})
			voice = &res
			return nil
		})
	}
	_ = g.Wait()

	channels := []risk.ChannelResult{deepfake}
	if voice != nil {
		channels = append(channels, *voice)
	}
	decision := o.fusion.Fuse(channels, o.cfg.Scoring.Weights)
	o.recordDecision(ctx, req.RequestID, KindDetect, decision)

	return &DetectResult{
		Deepfake: deepfake,
		Voice:    voice,
		Decision: decision,
	}, nil
}

// VerifyKYC rejects deepfaked video before any biometric call, then checks
// liveness and compares the ID card face with the first video frame.
func (o *Orchestrator) VerifyKYC(ctx context.Context, req KYCRequest) (_ *KYCResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fraud.vkyc", map[string]interface{}{
		"request.id":  req.RequestID,
		"new_session": req.SessionID == "",
	})
	defer func() { telemetry.EndSpan(span, err) }()

	defer o.removeArtifact(ctx, req.Video.Path, req.Video.Remove)
	defer o.removeArtifact(ctx, req.IDCard.Path, func() error { return removeFile(req.IDCard.Path) })

	if req.Video.Path == "" {
		return nil, errors.ErrMissingVideo
	}
	if req.IDCard.Path == "" {
		return nil, errors.ErrMissingIDCard
	}

	sessionID, err := o.resolveSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	deepfake := timed(ctx, o.recorder, func() risk.ChannelResult {
		return o.video.Score(ctx, req.Video)
	})
	if deepfake.RiskScore.Exceeds(o.fusion.Threshold()) {
		decision := o.fusion.Fuse([]risk.ChannelResult{deepfake}, o.cfg.Scoring.Weights)
		o.recordDecision(ctx, req.RequestID, KindVKYC, decision)
		return nil, errors.NewFraudError("deepfake", "deepfake detected").
			WithDetails(map[string]interface{}{
				"session_id": sessionID,
				"risk_score": deepfake.RiskScore.Float64(),
			})
	}

	result := &KYCResult{
		SessionID: sessionID,
		Deepfake:  deepfake,
	}

	start := time.Now()
	bio, err := o.verifyBiometric(ctx, sessionID, req)
	if err != nil {
		result.Liveness = risk.LivenessResult{SessionID: sessionID}
		result.Biometric = o.biometric.Degrade(ctx, err)
	} else {
		result.Liveness = bio.Liveness
		result.FaceMatch = bio.FaceMatch
		result.Passed = bio.Passed
		result.Biometric = o.biometric.Score(bio)
	}
	o.recorder.RecordChannel(ctx, risk.ChannelBiometric, time.Since(start), result.Biometric.Failed())

	result.Decision = o.fusion.Fuse([]risk.ChannelResult{deepfake, result.Biometric}, o.cfg.Scoring.Weights)
	o.recordDecision(ctx, req.RequestID, KindVKYC, result.Decision)

	return result, nil
}

func (o *Orchestrator) resolveSession(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		session, err := o.CreateLivenessSession(ctx)
		if err != nil {
			return "", err
		}
		return session.SessionID, nil
	}

	if o.sessions == nil {
		return sessionID, nil
	}
	ok, err := o.sessions.Exists(ctx, sessionID)
	if err != nil {
		o.logger.WarnContext(ctx, "session registry unavailable, accepting session",
			"session_id", sessionID,
			"error", err)
		return sessionID, nil
	}
	if !ok {
		return "", errors.ErrSessionNotFound
	}
	return sessionID, nil
}

// verifyBiometric uploads both images, runs the checks and deletes the
// uploads on every path.
func (o *Orchestrator) verifyBiometric(ctx context.Context, sessionID string, req KYCRequest) (risk.BiometricResult, error) {
	frame, err := o.probe.FirstFrameJPEG(ctx, req.Video)
	if err != nil {
		return risk.BiometricResult{}, err
	}

	idKey := path.Join(vkycKeyPrefix, sessionID, "id_card.jpg")
	frameKey := path.Join(vkycKeyPrefix, sessionID, "frame.jpg")

	idCard, err := os.Open(req.IDCard.Path)
	if err != nil {
		return risk.BiometricResult{}, errors.NewInternalError("open id card image").WithCause(err)
	}
	defer idCard.Close()

	if _, err := o.store.Put(ctx, idKey, idCard, "image/jpeg"); err != nil {
		return risk.BiometricResult{}, asExternal("s3", "upload id card", err)
	}
	defer deleteObject(ctx, o.store, idKey, o.logger)

	if _, err := o.store.Put(ctx, frameKey, bytes.NewReader(frame), "image/jpeg"); err != nil {
		return risk.BiometricResult{}, asExternal("s3", "upload probe frame", err)
	}
	defer deleteObject(ctx, o.store, frameKey, o.logger)

	return o.biometric.Verify(ctx, sessionID, FaceImage{Key: idKey}, FaceImage{Key: frameKey})
}

// AnalyzeTransaction scores one transaction with the managed fraud-scoring
// service. Service failures degrade to the neutral score with Error set.
func (o *Orchestrator) AnalyzeTransaction(ctx context.Context, tx risk.Transaction) (_ *risk.TransactionAssessment, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fraud.analyze_transaction", nil)
	defer func() { telemetry.EndSpan(span, err) }()

	if strings.TrimSpace(tx.UserID) == "" {
		return nil, errors.NewValidationError("USER_ID_REQUIRED", "user_id is required")
	}
	if tx.Amount.IsNegative() {
		return nil, errors.NewValidationError("INVALID_AMOUNT", "amount must not be negative")
	}

	tx = tx.WithDefaults()
	if tx.Timestamp.IsZero() {
		tx.Timestamp = o.now().UTC()
	}

	event := FraudEvent{
		EventID:   uuid.NewString(),
		EntityID:  tx.UserID,
		Timestamp: tx.Timestamp,
		Variables: map[string]string{
			"amount":          tx.Amount.String(),
			"currency":        tx.Currency,
			"user_risk_score": strconv.FormatFloat(o.cfg.Transactions.DefaultUserRiskScore, 'f', -1, 64),
			"device_type":     tx.DeviceType,
			"location":        tx.Location,
		},
	}

	start := time.Now()
	assessment := &risk.TransactionAssessment{
		EventID:   event.EventID,
		RiskScore: risk.NeutralScore,
		Reasons:   []string{},
	}

	var channel risk.ChannelResult
	pred, err := o.fraudScore.Predict(ctx, event)
	if err != nil {
		err = asExternal("frauddetector", "get event prediction", err)
		o.logger.WarnContext(ctx, "transaction scoring degraded",
			"event_id", event.EventID,
			"error", err)
		channel = risk.Degraded(risk.ChannelTransaction, err, nil)
		assessment.Error = channel.Error
	} else {
		assessment.RiskScore = risk.NewScore(pred.RiskScore)
		if pred.RuleIDs != nil {
			assessment.Reasons = pred.RuleIDs
		}
		channel = risk.NewChannelResult(risk.ChannelTransaction, pred.RiskScore, map[string]interface{}{
			"event_id": event.EventID,
			"reasons":  assessment.Reasons,
		})
	}
	o.recorder.RecordChannel(ctx, risk.ChannelTransaction, time.Since(start), channel.Failed())

	decision := o.fusion.Fuse([]risk.ChannelResult{channel}, o.cfg.Scoring.Weights)
	o.recordDecision(ctx, event.EventID, KindTransaction, decision)

	return assessment, nil
}

// DetectJamtara analyzes a batch for accumulation, dispersion and bursts.
func (o *Orchestrator) DetectJamtara(ctx context.Context, batch []risk.Transaction) (_ *JamtaraResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fraud.detect_jamtara", map[string]interface{}{"batch_size": len(batch)})
	defer func() { telemetry.EndSpan(span, err) }()

	if len(batch) == 0 {
		return nil, errors.ErrEmptyBatch
	}
	for i := range batch {
		if strings.TrimSpace(batch[i].UserID) == "" {
			return nil, errors.NewValidationError("USER_ID_REQUIRED", "user_id is required").
				WithDetails(map[string]interface{}{"index": i})
		}
		if batch[i].Timestamp.IsZero() {
			return nil, errors.NewValidationError("TIMESTAMP_REQUIRED", "timestamp is required").
				WithDetails(map[string]interface{}{"index": i})
		}
		batch[i] = batch[i].WithDefaults()
	}

	start := time.Now()
	channel, analysis := o.window.Score(batch)
	o.recorder.RecordChannel(ctx, risk.ChannelTransaction, time.Since(start), false)

	decision := o.fusion.Fuse([]risk.ChannelResult{channel}, o.cfg.Scoring.Weights)
	o.recordDecision(ctx, uuid.NewString(), KindJamtara, decision)

	return &JamtaraResult{
		RiskScore: analysis.RiskScore,
		Analysis:  analysis,
	}, nil
}

// CreateLivenessSession starts a liveness session and registers it.
func (o *Orchestrator) CreateLivenessSession(ctx context.Context) (*LivenessSession, error) {
	id, err := o.bio.CreateLivenessSession(ctx)
	if err != nil {
		return nil, asExternal("rekognition", "create liveness session", err)
	}

	if o.sessions != nil {
		if err := o.sessions.Register(ctx, id); err != nil {
			o.logger.WarnContext(ctx, "failed to register liveness session",
				"session_id", id,
				"error", err)
		}
	}

	return &LivenessSession{SessionID: id, Region: o.cfg.Region}, nil
}

// SubmitFeedback writes the report to object storage and, when configured,
// to the feedback store.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, fb *Feedback) error {
	if fb == nil || strings.TrimSpace(fb.SessionID) == "" {
		return errors.NewValidationError("SESSION_REQUIRED", "session_id is required")
	}
	if fb.ID == uuid.Nil {
		fb.ID = uuid.New()
	}
	if fb.SubmittedAt.IsZero() {
		fb.SubmittedAt = o.now().UTC()
	}

	owner := fb.UserID
	if owner == "" {
		owner = fb.SessionID
	}
	key := path.Join(feedbackKeyPrefix, fmt.Sprintf("%s_%s.json", owner, fb.SubmittedAt.Format(time.RFC3339)))

	body, err := json.Marshal(fb)
	if err != nil {
		return errors.NewInternalError("encode feedback").WithCause(err)
	}
	uri, err := o.store.Put(ctx, key, bytes.NewReader(body), "application/json")
	if err != nil {
		return asExternal("s3", "store feedback", err)
	}
	fb.ObjectURI = uri

	if o.feedback != nil {
		if err := o.feedback.SaveFeedback(ctx, fb); err != nil {
			o.logger.WarnContext(ctx, "failed to persist feedback",
				"feedback_id", fb.ID,
				"error", err)
		}
	}
	return nil
}

// ModelLoaded reports whether the frame classifier is ready.
func (o *Orchestrator) ModelLoaded(ctx context.Context) bool {
	return o.video.Ready(ctx)
}

// recordDecision emits and persists a decision. Failures are logged only.
func (o *Orchestrator) recordDecision(ctx context.Context, requestID, kind string, decision risk.FraudDecision) {
	o.recorder.RecordDecision(ctx, kind, decision.RiskScore.Float64(), decision.IsFraud)

	channels := make([]string, 0, len(decision.Channels))
	for _, c := range decision.Channels {
		channels = append(channels, string(c.Channel))
	}
	o.logger.InfoContext(ctx, "fraud decision",
		"request_id", requestID,
		"kind", kind,
		"risk_score", decision.RiskScore.Float64(),
		"is_fraud", decision.IsFraud,
		"channels", channels)

	if o.publisher == nil && o.decisions == nil {
		return
	}

	event := DecisionEvent{
		EventID:    uuid.New(),
		RequestID:  requestID,
		Kind:       kind,
		Decision:   decision,
		OccurredAt: o.now().UTC(),
	}

	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if o.publisher != nil {
		if err := o.publisher.PublishDecision(bgCtx, event); err != nil {
			o.logger.WarnContext(ctx, "failed to publish decision", "event_id", event.EventID, "error", err)
		}
	}
	if o.decisions != nil {
		if err := o.decisions.SaveDecision(bgCtx, event); err != nil {
			o.logger.WarnContext(ctx, "failed to persist decision", "event_id", event.EventID, "error", err)
		}
	}
}

func (o *Orchestrator) removeArtifact(ctx context.Context, p string, remove func() error) {
	if p == "" {
		return
	}
	if err := remove(); err != nil {
		o.logger.WarnContext(ctx, "failed to remove temporary file", "path", p, "error", err)
	}
}

func removeFile(p string) error {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
