package cache

import (
	"context"
	"time"
)

// RateLimiter counts requests per key over a sliding window shared by
// every API instance.
type RateLimiter interface {
	// Allow records a request for key unless limit requests were already
	// seen within window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)

	Reset(ctx context.Context, key string) error
}

const (
	LivenessSessionPrefix = "deepguard:liveness:"
	RateLimitPrefix       = "deepguard:ratelimit:"
)

const (
	// LivenessSessionTTL matches how long a Rekognition liveness session stays usable
	LivenessSessionTTL = 15 * time.Minute
	DefaultDialTimeout = 5 * time.Second

	// rateLimitGrace keeps a window's sorted set around slightly longer than the window
	rateLimitGrace = time.Minute
)
