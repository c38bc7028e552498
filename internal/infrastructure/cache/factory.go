package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/davidleathers/deepguard-backend/internal/infrastructure/config"
)

// Manager owns the Redis client shared by the rate limiter and the
// liveness session registry.
type Manager struct {
	RateLimiter RateLimiter
	Sessions    *SessionRegistry
	client      *redis.Client
}

func NewManager(cfg *config.RedisConfig, biometric config.BiometricConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	client, err := NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("redis connected",
		zap.String("addr", client.Options().Addr),
		zap.Int("db", client.Options().DB),
		zap.Int("pool_size", client.Options().PoolSize))

	return &Manager{
		RateLimiter: NewRedisRateLimiter(client, logger),
		Sessions:    NewSessionRegistry(client, biometric.SessionTTL, logger),
		client:      client,
	}, nil
}

func (m *Manager) Client() *redis.Client {
	return m.client
}

// HealthCheck pings Redis
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

func (m *Manager) Close() error {
	err := m.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
