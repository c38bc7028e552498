package fraud

import (
	"time"

	"github.com/google/uuid"

	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// Config is the immutable scoring configuration handed to the orchestrator
// at construction time.
type Config struct {
	Scoring       ScoringConfig
	Voice         VoiceConfig
	Transcription TranscriptionConfig
	Video         VideoConfig
	Biometric     BiometricConfig
	Transactions  TransactionConfig
	Region        string
}

// ScoringConfig controls fusion.
type ScoringConfig struct {
	DecisionThreshold float64
	Weights           map[risk.Channel]float64
}

// VoiceConfig controls the voice channel.
type VoiceConfig struct {
	Keywords                []string
	Patterns                map[string][]string
	PatternBonus            float64
	NegativeAdjustment      float64
	PositiveAdjustment      float64
	CanonicalLanguage       string
	EnableHindiSupport      bool
	EnableSentimentAnalysis bool
}

// TranscriptionLanguage returns the language hint sent with each job.
func (c VoiceConfig) TranscriptionLanguage() string {
	if c.EnableHindiSupport {
		return DefaultTranscriptionLanguage
	}
	return FallbackTranscriptionLanguage
}

// TranscriptionConfig bounds the transcription poll loop.
type TranscriptionConfig struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

// VideoConfig controls frame sampling.
type VideoConfig struct {
	FrameSkip int
	FrameSize int
}

// BiometricConfig controls face matching.
type BiometricConfig struct {
	SimilarityThreshold float64
}

// TransactionConfig controls the window analyzer and single-transaction scoring.
type TransactionConfig struct {
	SmallAmount          float64
	AccumulationCeiling  float64
	AccumulationFlag     float64
	MaxLocations         int
	DispersionFlag       float64
	BurstWindow          time.Duration
	BurstMinTransactions int
	BurstFlag            float64
	DefaultUserRiskScore float64
}

// DefaultConfig returns the observed production defaults.
func DefaultConfig() Config {
	return Config{
		Scoring: ScoringConfig{
			DecisionThreshold: DefaultDecisionThreshold,
		},
		Voice: VoiceConfig{
			Keywords:                DefaultKeywords(),
			Patterns:                DefaultPatterns(),
			PatternBonus:            DefaultPatternBonus,
			NegativeAdjustment:      DefaultNegativeSentimentAdjustment,
			PositiveAdjustment:      DefaultPositiveSentimentAdjustment,
			CanonicalLanguage:       DefaultCanonicalLanguage,
			EnableHindiSupport:      true,
			EnableSentimentAnalysis: true,
		},
		Transcription: TranscriptionConfig{
			PollInterval: DefaultPollInterval,
			MaxWait:      DefaultMaxWait,
		},
		Video: VideoConfig{
			FrameSkip: DefaultFrameSkip,
			FrameSize: DefaultFrameSize,
		},
		Biometric: BiometricConfig{
			SimilarityThreshold: DefaultSimilarityThreshold,
		},
		Transactions: TransactionConfig{
			SmallAmount:          DefaultSmallAmount,
			AccumulationCeiling:  DefaultAccumulationCeiling,
			AccumulationFlag:     DefaultAccumulationFlag,
			MaxLocations:         DefaultMaxLocations,
			DispersionFlag:       DefaultDispersionFlag,
			BurstWindow:          DefaultBurstWindow,
			BurstMinTransactions: DefaultBurstMinTransactions,
			BurstFlag:            DefaultBurstFlag,
			DefaultUserRiskScore: DefaultUserRiskScore,
		},
	}
}

// JobState is the lifecycle state of a transcription job
type JobState string

const (
	JobQueued     JobState = "QUEUED"
	JobInProgress JobState = "IN_PROGRESS"
	JobCompleted  JobState = "COMPLETED"
	JobFailed     JobState = "FAILED"
)

// Terminal reports whether the job will not change state again.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobStatus is one poll of a transcription job.
type JobStatus struct {
	State         JobState
	ResultURI     string
	FailureReason string
}

// FaceImage references an image for face comparison, either by object key
// in the configured bucket or by raw bytes.
type FaceImage struct {
	Key   string
	Bytes []byte
}

// FraudEvent is the payload sent to the managed fraud-scoring service.
type FraudEvent struct {
	EventID   string
	EntityID  string
	Timestamp time.Time
	Variables map[string]string
}

// Prediction is the managed fraud-scoring service's answer. RiskScore is
// already normalized to [0, 1].
type Prediction struct {
	RiskScore float64
	RuleIDs   []string
}

// DetectRequest carries the artifacts for POST /detect. The orchestrator
// takes ownership of the files and removes them before returning.
type DetectRequest struct {
	RequestID string
	Video     risk.VideoArtifact
	Audio     *risk.AudioArtifact
}

// DetectResult is the response of Detect.
type DetectResult struct {
	Deepfake risk.ChannelResult  `json:"deepfake"`
	Voice    *risk.ChannelResult `json:"voice"`
	Decision risk.FraudDecision  `json:"decision"`
}

// KYCRequest carries the artifacts for POST /vkyc.
type KYCRequest struct {
	RequestID string
	SessionID string
	Video     risk.VideoArtifact
	IDCard    IDCardImage
}

// IDCardImage is the uploaded identity document.
type IDCardImage struct {
	Path   string
	Format string
}

// KYCResult is the response of VerifyKYC.
type KYCResult struct {
	SessionID string              `json:"session_id"`
	Liveness  risk.LivenessResult `json:"liveness"`
	FaceMatch risk.FaceMatch      `json:"face_match"`
	Passed    bool                `json:"passed"`
	Deepfake  risk.ChannelResult  `json:"deepfake"`
	Biometric risk.ChannelResult  `json:"biometric"`
	Decision  risk.FraudDecision  `json:"decision"`
}

// JamtaraResult is the response of DetectJamtara.
type JamtaraResult struct {
	RiskScore risk.Score      `json:"risk_score"`
	Analysis  *WindowAnalysis `json:"analysis"`
}

// LivenessSession is a freshly created liveness session.
type LivenessSession struct {
	SessionID string `json:"session_id"`
	Region    string `json:"region"`
}

// Feedback is a user report on a past assessment.
type Feedback struct {
	ID          uuid.UUID `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id,omitempty"`
	IsFraud     bool      `json:"is_fraud"`
	Notes       string    `json:"notes,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	ObjectURI   string    `json:"object_uri,omitempty"`
}

// DecisionEvent is emitted for every fused decision.
type DecisionEvent struct {
	EventID    uuid.UUID          `json:"event_id"`
	RequestID  string             `json:"request_id"`
	Kind       string             `json:"kind"`
	Decision   risk.FraudDecision `json:"decision"`
	OccurredAt time.Time          `json:"occurred_at"`
}
