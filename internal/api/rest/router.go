package rest

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/davidleathers/deepguard-backend/internal/infrastructure/cache"
	"github.com/davidleathers/deepguard-backend/internal/metrics"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

const (
	healthPath  = "/health"
	metricsPath = "/metrics"
	openAPIPath = "/openapi.json"
	alertsPath  = "/ws/alerts"

	defaultRequestTimeout = 5 * time.Minute
)

// Config holds the HTTP surface settings
type Config struct {
	Version        string
	MaxUploadBytes int64
	TempDir        string
	AllowedOrigins []string
	// RequestTimeout cancels every non-streaming request after this long
	RequestTimeout time.Duration
	Auth           AuthConfig
	RateLimit      RateLimitConfig
	// ValidateRequests checks JSON bodies against the embedded OpenAPI document
	ValidateRequests bool
}

// Dependencies are the collaborators the router wires into handlers
type Dependencies struct {
	Service fraud.Service
	Health  *HealthService
	Metrics *metrics.HTTPMetrics
	// Alerts serves the fraud alert websocket; nil disables the route
	Alerts http.Handler
	// RateLimiter enforces limits across replicas; nil keeps limits per process
	RateLimiter cache.RateLimiter
	Logger      *slog.Logger
}

// NewRouter builds the complete handler tree.
func NewRouter(cfg Config, deps Dependencies) (http.Handler, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpMetrics := deps.Metrics
	if httpMetrics == nil {
		httpMetrics = metrics.NewHTTPMetrics(prometheus.NewRegistry())
	}
	health := deps.Health
	if health == nil {
		health = NewHealthService(deps.Service, nil, cfg.Version)
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	errorHandler := NewErrorHandler(logger)
	handlers := NewHandlers(deps.Service, errorHandler, httpMetrics, logger, cfg.MaxUploadBytes, cfg.TempDir)

	openAPI, err := LoadOpenAPI()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, httpMetrics.Middleware(name, h))
	}

	route("POST /detect", "detect", handlers.Detect)
	route("POST /vkyc", "vkyc", handlers.VerifyKYC)
	route("POST /analyze-transaction", "analyze_transaction", handlers.AnalyzeTransaction)
	route("POST /detect-jamtara", "detect_jamtara", handlers.DetectJamtara)
	route("POST /liveness/session", "liveness_session", handlers.CreateLivenessSession)
	route("POST /report", "report", handlers.Report)
	route("GET "+healthPath, "health", health.ServeHTTP)
	mux.Handle("GET "+metricsPath, httpMetrics.Handler())
	mux.Handle("GET "+openAPIPath, openAPI)
	if deps.Alerts != nil {
		mux.Handle("GET "+alertsPath, deps.Alerts)
	}

	middlewares := []Middleware{
		RecoveryMiddleware(logger),
		SecurityHeadersMiddleware(),
		RequestIDMiddleware(),
		RequestTimeoutMiddleware(cfg.RequestTimeout, alertsPath),
		TracingMiddleware(defaultTracer()),
		RequestLoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
		NewRateLimiter(cfg.RateLimit, deps.RateLimiter, errorHandler, logger, healthPath, metricsPath).Middleware(),
		NewAuthMiddleware(cfg.Auth, errorHandler, healthPath, metricsPath, openAPIPath).Middleware(),
	}
	if cfg.ValidateRequests {
		validation, err := openAPI.ValidationMiddleware(errorHandler)
		if err != nil {
			return nil, err
		}
		middlewares = append(middlewares, validation)
	}

	return NewMiddlewareChain(middlewares...).Then(mux), nil
}
