package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/deepguard-backend/internal/infrastructure/config"
)

func setupTestRedis(t *testing.T) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	m, err := NewManager(&config.RedisConfig{URL: mr.Addr()}, config.BiometricConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m, mr
}

func TestNewManager(t *testing.T) {
	t.Run("redis url", func(t *testing.T) {
		mr := miniredis.RunT(t)
		m, err := NewManager(&config.RedisConfig{URL: "redis://" + mr.Addr() + "/2"}, config.BiometricConfig{}, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer m.Close()

		assert.Equal(t, 2, m.Client().Options().DB)
		assert.NoError(t, m.HealthCheck(context.Background()))
	})

	t.Run("nil logger", func(t *testing.T) {
		_, err := NewManager(&config.RedisConfig{URL: "localhost:6379"}, config.BiometricConfig{}, nil)
		assert.ErrorContains(t, err, "logger is required")
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewManager(nil, config.BiometricConfig{}, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "redis config is required")
	})

	t.Run("connection failure", func(t *testing.T) {
		_, err := NewManager(&config.RedisConfig{URL: "localhost:1", DialTimeout: 100 * time.Millisecond},
			config.BiometricConfig{}, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "redis connection failed")
	})
}

func TestOptions(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.RedisConfig
		wantAddr string
		wantDB   int
		wantDial time.Duration
		wantErr  bool
	}{
		{
			name:     "plain address",
			cfg:      config.RedisConfig{URL: "cache:6379", DB: 1},
			wantAddr: "cache:6379",
			wantDB:   1,
			wantDial: DefaultDialTimeout,
		},
		{
			name:     "url overrides db field",
			cfg:      config.RedisConfig{URL: "redis://cache:6380/3", DB: 1, DialTimeout: time.Second},
			wantAddr: "cache:6380",
			wantDB:   3,
			wantDial: time.Second,
		},
		{
			name:    "malformed url",
			cfg:     config.RedisConfig{URL: "redis://cache:6379/notadb"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := options(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantAddr, opts.Addr)
			assert.Equal(t, tt.wantDB, opts.DB)
			assert.Equal(t, tt.wantDial, opts.DialTimeout)
		})
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	m, _ := setupTestRedis(t)
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := m.RateLimiter.(*redisRateLimiter)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "10.0.0.1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}

	ok, err := rl.Allow(ctx, "10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := rl.Remaining(ctx, "10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	ok, err = rl.Allow(ctx, "10.0.0.2", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// denied requests are not recorded
	members, err := m.Client().ZCard(ctx, RateLimitPrefix+"10.0.0.1").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(3), members)

	now = now.Add(61 * time.Second)
	ok, err = rl.Allow(ctx, "10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, rl.Reset(ctx, "10.0.0.1"))
	remaining, err = rl.Remaining(ctx, "10.0.0.1", 3, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestRateLimiter_Concurrent(t *testing.T) {
	m, _ := setupTestRedis(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.RateLimiter.Allow(ctx, "burst", 5, time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}

func TestSessionRegistry(t *testing.T) {
	m, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Sessions.Register(ctx, "sess-1"))
	require.NoError(t, m.Sessions.Register(ctx, "sess-1"))

	ok, err := m.Sessions.Exists(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(LivenessSessionPrefix+"sess-1"))
	assert.Equal(t, LivenessSessionTTL, mr.TTL(LivenessSessionPrefix+"sess-1"))

	ok, err = m.Sessions.Exists(ctx, "sess-2")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(LivenessSessionTTL + time.Second)
	ok, err = m.Sessions.Exists(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionRegistry_CustomTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := NewManager(&config.RedisConfig{URL: mr.Addr()}, config.BiometricConfig{SessionTTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Sessions.Register(context.Background(), "sess-1"))
	assert.Equal(t, time.Minute, mr.TTL(LivenessSessionPrefix+"sess-1"))

	_, err = time.Parse(time.RFC3339, mustGet(t, mr, LivenessSessionPrefix+"sess-1"))
	assert.NoError(t, err)
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}

func TestSessionRegistry_RedisDown(t *testing.T) {
	m, mr := setupTestRedis(t)
	mr.Close()

	_, err := m.Sessions.Exists(context.Background(), "sess-1")
	assert.Error(t, err)
	assert.Error(t, m.Sessions.Register(context.Background(), "sess-1"))
	assert.Error(t, m.HealthCheck(context.Background()))
}

func TestManager_CloseTwice(t *testing.T) {
	m, _ := setupTestRedis(t)
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}
