//go:build integration

// Package containers starts the backing services used by integration tests.
package containers

import (
	"context"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	redisImage    = "redis:7-alpine"

	postgresPort nat.Port = "5432/tcp"
	redisPort    nat.Port = "6379/tcp"

	startupTimeout = time.Minute
)

// Postgres is a throwaway decision store with an empty deepguard_test database
type Postgres struct {
	Container        *postgres.PostgresContainer
	ConnectionString string
}

type Redis struct {
	Container *tcredis.RedisContainer
	URL       string
}

// StartPostgres fails the test when Docker is unavailable. The container is
// terminated on cleanup.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	ctx := context.Background()

	c, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("deepguard_test"),
		postgres.WithUsername("deepguard"),
		postgres.WithPassword("deepguard"),
		testcontainers.WithWaitStrategy(wait.ForAll(
			// the server logs readiness once for initdb and once for real
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
			wait.ForListeningPort(postgresPort).WithStartupTimeout(startupTimeout),
		)),
	)
	terminateOnCleanup(t, c)
	if err != nil {
		t.Fatalf("starting %s: %v", postgresImage, err)
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}
	return &Postgres{Container: c, ConnectionString: dsn}
}

func StartRedis(t *testing.T) *Redis {
	t.Helper()
	ctx := context.Background()

	c, err := tcredis.Run(ctx, redisImage,
		testcontainers.WithWaitStrategy(wait.ForListeningPort(redisPort).WithStartupTimeout(startupTimeout)),
	)
	terminateOnCleanup(t, c)
	if err != nil {
		t.Fatalf("starting %s: %v", redisImage, err)
	}

	url, err := c.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}
	return &Redis{Container: c, URL: url}
}

// terminateOnCleanup accepts a nil or half-started container
func terminateOnCleanup(t *testing.T, c testcontainers.Container) {
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(c); err != nil {
			t.Logf("terminating container: %v", err)
		}
	})
}
