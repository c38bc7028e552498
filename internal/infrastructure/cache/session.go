package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// SessionRegistry remembers liveness sessions created through the API so
// that verification can reject ids it never issued.
type SessionRegistry struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewSessionRegistry stores sessions for ttl; ttl <= 0 uses LivenessSessionTTL.
func NewSessionRegistry(client *redis.Client, ttl time.Duration, logger *zap.Logger) *SessionRegistry {
	if ttl <= 0 {
		ttl = LivenessSessionTTL
	}
	return &SessionRegistry{client: client, ttl: ttl, logger: logger}
}

// Register records sessionID with its creation time. Registering an id
// twice keeps the original expiry.
func (s *SessionRegistry) Register(ctx context.Context, sessionID string) error {
	created, err := s.client.SetNX(ctx, LivenessSessionPrefix+sessionID, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("registering liveness session: %w", err)
	}
	if !created {
		s.logger.Warn("liveness session already registered", zap.String("session_id", sessionID))
	}
	return nil
}

func (s *SessionRegistry) Exists(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, LivenessSessionPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("looking up liveness session: %w", err)
	}
	return n > 0, nil
}
