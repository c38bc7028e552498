//go:build integration

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/deepguard-backend/internal/infrastructure/config"
	"github.com/davidleathers/deepguard-backend/internal/testutil"
	"github.com/davidleathers/deepguard-backend/internal/testutil/containers"
)

func TestManager_Redis(t *testing.T) {
	rc := containers.StartRedis(t)
	ctx := testutil.TestContext(t)

	m, err := NewManager(&config.RedisConfig{URL: rc.URL, PoolSize: 4, DialTimeout: 5 * time.Second},
		config.BiometricConfig{SessionTTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.HealthCheck(ctx))

	require.NoError(t, m.Sessions.Register(ctx, "sess-1"))
	ok, err := m.Sessions.Exists(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)

	for i := 0; i < 3; i++ {
		allowed, err := m.RateLimiter.Allow(ctx, "client-1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := m.RateLimiter.Allow(ctx, "client-1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
}
