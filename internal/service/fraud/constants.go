package fraud

import "time"

// Decision thresholds
const (
	// DefaultDecisionThreshold is the fused score above which a request is fraud
	DefaultDecisionThreshold = 0.7

	// DefaultSimilarityThreshold is the face similarity percentage above which faces match
	DefaultSimilarityThreshold = 80.0
)

// Voice scoring
const (
	// DefaultPatternBonus is added when any fraud-pattern category matches
	DefaultPatternBonus = 0.3

	// DefaultNegativeSentimentAdjustment is added for NEGATIVE transcripts
	DefaultNegativeSentimentAdjustment = 0.2

	// DefaultPositiveSentimentAdjustment is added for POSITIVE transcripts
	DefaultPositiveSentimentAdjustment = -0.1

	// DefaultCanonicalLanguage is the language sentiment analysis runs in
	DefaultCanonicalLanguage = "en"

	// DefaultTranscriptionLanguage is requested when Hindi support is enabled
	DefaultTranscriptionLanguage = "hi-IN"

	// FallbackTranscriptionLanguage is requested when Hindi support is disabled
	FallbackTranscriptionLanguage = "en-IN"
)

// Transcription job polling
const (
	// DefaultPollInterval is the fixed delay between job status checks
	DefaultPollInterval = 5 * time.Second

	// DefaultMaxWait bounds how long a single job is awaited
	DefaultMaxWait = 180 * time.Second

	// JobNamePrefix prefixes generated transcription job names
	JobNamePrefix = "transcribe_job_"
)

// Video scoring
const (
	// DefaultFrameSkip samples every Nth decoded frame
	DefaultFrameSkip = 5

	// DefaultFrameSize is the square edge the classifier expects
	DefaultFrameSize = 380
)

// Transaction window analysis
const (
	// DefaultSmallAmount is the exclusive upper bound of a "small" transaction
	DefaultSmallAmount = 10000

	// DefaultAccumulationCeiling is the per-user small-transaction total that triggers accumulation
	DefaultAccumulationCeiling = 50000

	// DefaultAccumulationFlag is the risk added by the accumulation detector
	DefaultAccumulationFlag = 0.4

	// DefaultMaxLocations is the distinct-location count above which dispersion triggers
	DefaultMaxLocations = 2

	// DefaultDispersionFlag is the risk added by the dispersion detector
	DefaultDispersionFlag = 0.3

	// DefaultBurstWindow is the gap below which consecutive transactions count as a burst
	DefaultBurstWindow = 60 * time.Second

	// DefaultBurstMinTransactions is the batch size needed before burst detection applies
	DefaultBurstMinTransactions = 3

	// DefaultBurstFlag is the risk added by the burst detector
	DefaultBurstFlag = 0.3

	// DefaultUserRiskScore is sent to the fraud-scoring service when no history exists
	DefaultUserRiskScore = 0.5
)

// Object storage layout
const (
	audioKeyPrefix    = "audio"
	vkycKeyPrefix     = "vkyc"
	feedbackKeyPrefix = "feedback"
)

// Decision kinds recorded with each event
const (
	KindDetect      = "detect"
	KindVKYC        = "vkyc"
	KindTransaction = "transaction"
	KindJamtara     = "jamtara"
)

// cleanupTimeout bounds best-effort deletion after the request context ends
const cleanupTimeout = 10 * time.Second
