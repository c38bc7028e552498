package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/davidleathers/deepguard-backend/internal/api/rest"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/aws"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/cache"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/config"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/database"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/events"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/inference"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/media"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/telemetry"
	"github.com/davidleathers/deepguard-backend/internal/metrics"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

const serviceName = "deepguard-api"

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		migrate    = flag.Bool("migrate", false, "Run database migrations and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *migrate {
		if err := database.MigrateUp(cfg.Database.URL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Migrations completed successfully")
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	logger := telemetry.SetupLogger(cfg.LogLevel).With("service", serviceName, "version", cfg.Version)
	zapLogger, err := telemetry.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("creating zap logger: %w", err)
	}
	zapLogger = zapLogger.With(zap.String("service", serviceName))
	defer func() { _ = zapLogger.Sync() }()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}

	closers := []rest.Closer{{Name: "telemetry", Close: provider.Shutdown}}

	recorder, err := metrics.NewRegistryWithProvider(provider.MeterProvider, serviceName)
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}

	awsCfg, err := aws.LoadConfig(ctx, aws.Config{
		Region:         cfg.AWS.Region,
		MaxRetries:     cfg.AWS.MaxRetries,
		ConnectTimeout: cfg.AWS.ConnectTimeout,
		Endpoint:       cfg.AWS.Endpoint,
		Bucket:         cfg.Storage.Bucket,
		UsePathStyle:   cfg.Storage.UsePathStyle,
	})
	if err != nil {
		return err
	}
	if !cfg.AWS.Enabled {
		logger.Warn("aws disabled; transcription, text analysis, biometric and transaction channels will degrade")
	}

	store := aws.NewObjectStore(awsCfg, aws.Config{Bucket: cfg.Storage.Bucket, UsePathStyle: cfg.Storage.UsePathStyle})
	decoder := media.NewFFmpegFrameDecoder()

	deps := fraud.Dependencies{
		Store:         store,
		Normalizer:    media.NewFFmpegNormalizer(cfg.Server.TempDir, logger),
		Transcription: aws.NewTranscribeService(awsCfg, cfg.Transcription.MaxSpeakers),
		Fetcher:       store,
		Text:          aws.NewTextAnalysisService(awsCfg),
		Biometric:     aws.NewBiometricService(awsCfg, cfg.Storage.Bucket),
		Decoder:       decoder,
		Probe:         decoder,
		FraudScore: aws.NewFraudScoreService(awsCfg, aws.DetectorConfig{
			DetectorID: cfg.AWS.FraudDetector.DetectorID,
			EventType:  cfg.AWS.FraudDetector.EventType,
			EntityType: cfg.AWS.FraudDetector.EntityType,
		}),
		Recorder: recorder,
		Logger:   logger,
	}

	if classifier := inference.NewClient(inference.Config{
		URL:     cfg.Inference.URL,
		Timeout: cfg.Inference.Timeout,
		APIKey:  cfg.Inference.APIKey,
	}, logger); classifier != nil {
		deps.Classifier = classifier
	} else {
		logger.Warn("no inference url configured; video channel will report the model as unavailable")
	}

	health := rest.NewHealthService(nil, func(ctx context.Context) bool {
		return cfg.AWS.Enabled && aws.CredentialsConfigured(ctx, awsCfg)
	}, cfg.Version)

	var distributedLimiter cache.RateLimiter
	if cfg.Redis.URL != "" {
		manager, err := cache.NewManager(&cfg.Redis, cfg.Biometric, zapLogger)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		deps.Sessions = manager.Sessions
		distributedLimiter = manager.RateLimiter
		health.AddCheck("redis", manager.HealthCheck)
		closers = append(closers, rest.Closer{Name: "redis", Close: func(context.Context) error { return manager.Close() }})
	}

	pool, err := database.NewPool(ctx, cfg.Database, zapLogger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if pool != nil {
		if cfg.Database.AutoMigrate {
			if err := database.MigrateUp(cfg.Database.URL); err != nil {
				pool.Close()
				return fmt.Errorf("running migrations: %w", err)
			}
		}
		deps.Decisions = database.NewDecisionRepository(pool, zapLogger)
		deps.Feedback = database.NewFeedbackRepository(pool, zapLogger)
		health.AddCheck("database", func(ctx context.Context) error { return database.Ping(ctx, pool) })
		closers = append(closers, closePool(pool))
	}

	alertConfig := events.DefaultAlertConfig()
	alertConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	alerts := events.NewAlertHub(zapLogger, alertConfig)
	closers = append(closers, rest.Closer{Name: "alerts", Close: func(context.Context) error { return alerts.Close() }})

	var stream fraud.EventPublisher
	if kafka := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		ClientID: cfg.Kafka.ClientID,
	}, zapLogger); kafka != nil {
		stream = kafka
		health.AddCheck("kafka", kafka.Health)
		closers = append(closers, rest.Closer{Name: "kafka", Close: func(context.Context) error { return kafka.Close() }})
	}
	deps.Publisher = events.NewFanout(stream, alerts, zapLogger)

	orchestrator, err := fraud.NewOrchestrator(cfg.Fraud(), deps)
	if err != nil {
		return fmt.Errorf("creating fraud orchestrator: %w", err)
	}
	health.SetModel(orchestrator)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router, err := rest.NewRouter(rest.Config{
		Version:        cfg.Version,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		TempDir:        cfg.Server.TempDir,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
		Auth: rest.AuthConfig{
			Secret:   []byte(cfg.Security.JWTSecret),
			Issuer:   cfg.Security.JWTIssuer,
			Audience: cfg.Security.JWTAudience,
		},
		RateLimit: rest.RateLimitConfig{
			RequestsPerSecond: cfg.Security.RateLimit.RequestsPerSecond,
			Burst:             cfg.Security.RateLimit.BurstSize,
			Window:            cfg.Security.RateLimit.Window,
		},
		ValidateRequests: cfg.Server.ValidateRequests,
	}, rest.Dependencies{
		Service:     orchestrator,
		Health:      health,
		Metrics:     metrics.NewHTTPMetrics(promRegistry),
		Alerts:      http.HandlerFunc(alerts.ServeWS),
		RateLimiter: distributedLimiter,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	if cfg.Security.JWTSecret == "" {
		logger.Warn("jwt secret not set; API authentication is disabled")
	}
	logger.Info("deepguard configured",
		"environment", cfg.Environment,
		"region", cfg.AWS.Region,
		"bucket", cfg.Storage.Bucket,
		"redis", cfg.Redis.URL != "",
		"database", pool != nil,
		"kafka", stream != nil,
		"classifier", deps.Classifier != nil)

	server := rest.NewServer(rest.ServerConfig{
		Addr:            net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, router, logger, closers...)

	return server.Start()
}

func closePool(pool *pgxpool.Pool) rest.Closer {
	return rest.Closer{Name: "database", Close: func(context.Context) error {
		pool.Close()
		return nil
	}}
}
