package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when no explicit config file is given
const DefaultPath = "configs/config.yaml"

// EnvPrefix prefixes environment overrides; "__" separates nesting levels
const EnvPrefix = "DEEPGUARD_"

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`

	Server        ServerConfig        `koanf:"server"`
	AWS           AWSConfig           `koanf:"aws"`
	Storage       StorageConfig       `koanf:"storage"`
	Transcription TranscriptionConfig `koanf:"transcription"`
	Scoring       ScoringConfig       `koanf:"scoring"`
	Voice         VoiceConfig         `koanf:"voice"`
	Video         VideoConfig         `koanf:"video"`
	Biometric     BiometricConfig     `koanf:"biometric"`
	Transactions  TransactionsConfig  `koanf:"transactions"`
	Inference     InferenceConfig     `koanf:"inference"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	Kafka         KafkaConfig         `koanf:"kafka"`
	Telemetry     TelemetryConfig     `koanf:"telemetry"`
	Security      SecurityConfig      `koanf:"security"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`
	TempDir         string        `koanf:"temp_dir"`
	AllowedOrigins  []string      `koanf:"allowed_origins"`

	// ValidateRequests checks JSON bodies against the OpenAPI contract
	ValidateRequests bool `koanf:"validate_requests"`
}

type AWSConfig struct {
	Enabled        bool                `koanf:"enabled"`
	Region         string              `koanf:"region"`
	MaxRetries     int                 `koanf:"max_retries"`
	ConnectTimeout time.Duration       `koanf:"connect_timeout"`
	Endpoint       string              `koanf:"endpoint"`
	FraudDetector  FraudDetectorConfig `koanf:"fraud_detector"`
}

type FraudDetectorConfig struct {
	DetectorID string `koanf:"detector_id"`
	EventType  string `koanf:"event_type"`
	EntityType string `koanf:"entity_type"`
}

type StorageConfig struct {
	Bucket       string `koanf:"bucket"`
	UsePathStyle bool   `koanf:"use_path_style"`
}

type TranscriptionConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	MaxWait      time.Duration `koanf:"max_wait"`
	MaxSpeakers  int           `koanf:"max_speakers"`
}

type ScoringConfig struct {
	DecisionThreshold float64            `koanf:"decision_threshold"`
	Weights           map[string]float64 `koanf:"weights"`
}

type VoiceConfig struct {
	EnableHindiSupport      bool     `koanf:"enable_hindi_support"`
	EnableSentimentAnalysis bool     `koanf:"enable_sentiment_analysis"`
	CanonicalLanguage       string   `koanf:"canonical_language"`
	PatternBonus            float64  `koanf:"pattern_bonus"`
	NegativeAdjustment      float64  `koanf:"negative_adjustment"`
	PositiveAdjustment      float64  `koanf:"positive_adjustment"`
	Keywords                []string `koanf:"keywords"`
}

type VideoConfig struct {
	FrameSkip int `koanf:"frame_skip"`
	FrameSize int `koanf:"frame_size"`
}

type BiometricConfig struct {
	SimilarityThreshold float64       `koanf:"similarity_threshold"`
	SessionTTL          time.Duration `koanf:"session_ttl"`
}

type TransactionsConfig struct {
	SmallAmount          float64       `koanf:"small_amount"`
	AccumulationCeiling  float64       `koanf:"accumulation_ceiling"`
	AccumulationFlag     float64       `koanf:"accumulation_flag"`
	MaxLocations         int           `koanf:"max_locations"`
	DispersionFlag       float64       `koanf:"dispersion_flag"`
	BurstWindow          time.Duration `koanf:"burst_window"`
	BurstMinTransactions int           `koanf:"burst_min_transactions"`
	BurstFlag            float64       `koanf:"burst_flag"`
	DefaultUserRiskScore float64       `koanf:"default_user_risk_score"`
}

type InferenceConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
	APIKey  string        `koanf:"api_key"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL         string        `koanf:"url"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	PoolSize    int           `koanf:"pool_size"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers  []string `koanf:"brokers"`
	Topic    string   `koanf:"topic"`
	ClientID string   `koanf:"client_id"`
}

type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	OTLPEndpoint string  `koanf:"otlp_endpoint"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

type SecurityConfig struct {
	JWTSecret   string          `koanf:"jwt_secret"`
	JWTIssuer   string          `koanf:"jwt_issuer"`
	JWTAudience string          `koanf:"jwt_audience"`
	RateLimit   RateLimitConfig `koanf:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int           `koanf:"requests_per_second"`
	BurstSize         int           `koanf:"burst_size"`
	Window            time.Duration `koanf:"window"`
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    6 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  5 * time.Minute,
			MaxUploadBytes:  100 << 20,
			AllowedOrigins:  []string{"*"},
		},
		AWS: AWSConfig{
			Enabled:        true,
			Region:         "ap-south-1",
			MaxRetries:     2,
			ConnectTimeout: 5 * time.Second,
			FraudDetector: FraudDetectorConfig{
				DetectorID: "transaction_fraud_detector",
				EventType:  "transaction",
				EntityType: "customer",
			},
		},
		Storage: StorageConfig{
			Bucket: "deepguard-media",
		},
		Transcription: TranscriptionConfig{
			PollInterval: 5 * time.Second,
			MaxWait:      180 * time.Second,
			MaxSpeakers:  2,
		},
		Scoring: ScoringConfig{
			DecisionThreshold: 0.7,
		},
		Voice: VoiceConfig{
			EnableHindiSupport:      true,
			EnableSentimentAnalysis: true,
			CanonicalLanguage:       "en",
			PatternBonus:            0.3,
			NegativeAdjustment:      0.2,
			PositiveAdjustment:      -0.1,
		},
		Video: VideoConfig{
			FrameSkip: 5,
			FrameSize: 380,
		},
		Biometric: BiometricConfig{
			SimilarityThreshold: 80,
			SessionTTL:          15 * time.Minute,
		},
		Transactions: TransactionsConfig{
			SmallAmount:          10000,
			AccumulationCeiling:  50000,
			AccumulationFlag:     0.4,
			MaxLocations:         2,
			DispersionFlag:       0.3,
			BurstWindow:          60 * time.Second,
			BurstMinTransactions: 3,
			BurstFlag:            0.3,
			DefaultUserRiskScore: 0.5,
		},
		Inference: InferenceConfig{
			Timeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MinConns:        1,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
		},
		Kafka: KafkaConfig{
			Topic:    "deepguard.decisions",
			ClientID: "deepguard-api",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 20,
				BurstSize:         40,
				Window:            time.Minute,
			},
		},
	}
}

// Load layers defaults, the YAML file at path (optional; DefaultPath when
// empty) and DEEPGUARD_ environment variables, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// listKeys are split on commas when set from the environment
var listKeys = map[string]bool{
	"kafka.brokers":          true,
	"server.allowed_origins": true,
	"voice.keywords":         true,
}

// envKey maps DEEPGUARD_SCORING__DECISION_THRESHOLD to scoring.decision_threshold
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

func envValue(key, value string) (string, interface{}) {
	k := envKey(key)
	if listKeys[k] {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return k, out
	}
	return k, value
}
