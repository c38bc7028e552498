package rest

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	domainErrors "github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/infrastructure/cache"
)

// RateLimitConfig configures per-client request limits
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// Window is the sliding window used by the distributed limiter
	Window time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP. Every instance enforces a
// token bucket; when a distributed limiter is configured the sliding window
// in Redis is checked as well, so the limit holds across replicas.
type RateLimiter struct {
	config      RateLimitConfig
	distributed cache.RateLimiter
	errors      *ErrorHandler
	logger      *slog.Logger

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastSweep time.Time
	now       func() time.Time
	exempt    map[string]bool
}

func NewRateLimiter(config RateLimitConfig, distributed cache.RateLimiter, errorHandler *ErrorHandler, logger *slog.Logger, exemptPaths ...string) *RateLimiter {
	if config.Burst < config.RequestsPerSecond {
		config.Burst = config.RequestsPerSecond
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}
	return &RateLimiter{
		config:      config,
		distributed: distributed,
		errors:      errorHandler,
		logger:      logger,
		visitors:    make(map[string]*visitor),
		now:         time.Now,
		exempt:      exempt,
	}
}

// windowLimit is the number of requests allowed per distributed window
func (rl *RateLimiter) windowLimit() int {
	return int(float64(rl.config.RequestsPerSecond) * rl.config.Window.Seconds())
}

func (rl *RateLimiter) allowLocal(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > time.Minute {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) > 3*time.Minute {
				delete(rl.visitors, k)
			}
		}
		rl.lastSweep = now
	}

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// Middleware enforces the limits; Redis failures fall back to the local bucket.
func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if rl.config.RequestsPerSecond <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.exempt[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := clientIP(r)
			allowed := rl.allowLocal(key)

			if allowed && rl.distributed != nil {
				ok, err := rl.distributed.Allow(r.Context(), key, rl.windowLimit(), rl.config.Window)
				if err != nil {
					rl.logger.WarnContext(r.Context(), "distributed rate limiter unavailable",
						"client", key,
						"error", err)
				} else {
					allowed = ok
				}
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerSecond))
			if !allowed {
				rl.errors.HandleError(w, r, domainErrors.NewRateLimitError("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
