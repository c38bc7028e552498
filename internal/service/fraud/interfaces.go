package fraud

import (
	"context"
	"image"
	"io"
	"time"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// Service defines the fraud assessment surface used by the API layer
type Service interface {
	// Detect scores a video and optional audio concurrently and fuses them
	Detect(ctx context.Context, req DetectRequest) (*DetectResult, error)
	// VerifyKYC runs the deepfake gate followed by liveness and face matching
	VerifyKYC(ctx context.Context, req KYCRequest) (*KYCResult, error)
	// AnalyzeTransaction scores one transaction with the managed fraud service
	AnalyzeTransaction(ctx context.Context, tx risk.Transaction) (*risk.TransactionAssessment, error)
	// DetectJamtara analyzes a batch for coordinated small-amount fraud
	DetectJamtara(ctx context.Context, batch []risk.Transaction) (*JamtaraResult, error)
	// CreateLivenessSession starts a new liveness session
	CreateLivenessSession(ctx context.Context) (*LivenessSession, error)
	// SubmitFeedback stores a user report
	SubmitFeedback(ctx context.Context, fb *Feedback) error
	// ModelLoaded reports whether the frame classifier is ready
	ModelLoaded(ctx context.Context) bool
}

// ObjectStore stores media blobs
type ObjectStore interface {
	// Put uploads body under key and returns its URI
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}

// TranscriptionService runs asynchronous speech-to-text jobs
type TranscriptionService interface {
	// Submit starts a job and returns its identifier
	Submit(ctx context.Context, jobName, mediaURI, languageCode string) (string, error)
	// Poll returns the current job status
	Poll(ctx context.Context, jobID string) (JobStatus, error)
}

// TranscriptFetcher downloads a finished transcript document
type TranscriptFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Transcriber turns an uploaded audio URI into a transcript
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURI, languageCode string) (risk.Transcript, error)
}

// TextAnalysisService provides sentiment, language detection and translation
type TextAnalysisService interface {
	DetectSentiment(ctx context.Context, text, languageCode string) (risk.SentimentResult, error)
	DetectLanguage(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error)
}

// BiometricService provides liveness sessions and face comparison
type BiometricService interface {
	CreateLivenessSession(ctx context.Context) (string, error)
	GetLivenessResult(ctx context.Context, sessionID string) (risk.LivenessResult, error)
	// CompareFaces returns the best similarity percentage in [0, 100], 0 when no face matched
	CompareFaces(ctx context.Context, reference, probe FaceImage) (float64, error)
}

// FrameClassifier scores a single frame as fake with a probability in [0, 1]
type FrameClassifier interface {
	Classify(ctx context.Context, frame image.Image) (float64, error)
	Ready(ctx context.Context) bool
}

// FrameSource yields decoded frames in order; Next returns io.EOF at the end
type FrameSource interface {
	Next() (image.Image, error)
	Close() error
}

// FrameDecoder opens a video for sequential decoding
type FrameDecoder interface {
	Open(ctx context.Context, video risk.VideoArtifact) (FrameSource, error)
}

// ProbeExtractor produces a JPEG of the first video frame for face comparison
type ProbeExtractor interface {
	FirstFrameJPEG(ctx context.Context, video risk.VideoArtifact) ([]byte, error)
}

// AudioNormalizer converts audio to the canonical encoding (16 kHz mono WAV)
type AudioNormalizer interface {
	Normalize(ctx context.Context, audio risk.AudioArtifact) (risk.AudioArtifact, error)
}

// FraudScoreService is the managed transaction fraud-scoring capability
type FraudScoreService interface {
	Predict(ctx context.Context, event FraudEvent) (*Prediction, error)
}

// EventPublisher emits decision events
type EventPublisher interface {
	PublishDecision(ctx context.Context, event DecisionEvent) error
}

// DecisionStore persists decision events
type DecisionStore interface {
	SaveDecision(ctx context.Context, event DecisionEvent) error
}

// FeedbackStore persists user reports
type FeedbackStore interface {
	SaveFeedback(ctx context.Context, fb *Feedback) error
}

// SessionRegistry remembers liveness sessions created through this service
type SessionRegistry interface {
	Register(ctx context.Context, sessionID string) error
	Exists(ctx context.Context, sessionID string) (bool, error)
}

// Recorder receives scoring measurements
type Recorder interface {
	RecordChannel(ctx context.Context, channel risk.Channel, duration time.Duration, degraded bool)
	RecordDecision(ctx context.Context, kind string, score float64, isFraud bool)
	RecordTranscriptionPolls(ctx context.Context, polls int, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordChannel(context.Context, risk.Channel, time.Duration, bool) {}
func (noopRecorder) RecordDecision(context.Context, string, float64, bool)          {}
func (noopRecorder) RecordTranscriptionPolls(context.Context, int, string)          {}
