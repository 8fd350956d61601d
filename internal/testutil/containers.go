package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// sharedContainer starts one container per test binary. Containers are not
// tied to any test's cleanup; the testcontainers reaper removes them when the
// process exits.
type sharedContainer struct {
	once     sync.Once
	endpoint string
	err      error
}

func (c *sharedContainer) get(t *testing.T, name string, start func(ctx context.Context) (string, error)) string {
	t.Helper()

	c.once.Do(func() {
		// Give generous timeout in CI environments
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				c.err = fmt.Errorf("starting %s container panicked: %v", name, r)
			}
		}()
		c.endpoint, c.err = start(ctx)
	})

	if c.err != nil {
		t.Skipf("skipping %s tests: %v", name, c.err)
	}
	return c.endpoint
}

var (
	postgresC sharedContainer
	redisC    sharedContainer
	mongoC    sharedContainer
)

// GetPostgresDSN returns a DSN for a shared PostgreSQL container, or skips
// the test when Docker is unavailable.
func GetPostgresDSN(t *testing.T) string {
	return postgresC.get(t, "postgres", func(ctx context.Context) (string, error) {
		ctr, err := testcontainers.Run(
			ctx, "postgres:16",
			testcontainers.WithExposedPorts("5432/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForAll(
					wait.ForListeningPort("5432/tcp"),
					wait.ForLog("ready to accept connections"),
					wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
						return fmt.Sprintf("postgres://enroller:enroller@%s:%s/enroller_test?sslmode=disable", host, port.Port())
					}).WithQuery("SELECT 1"),
				).WithDeadline(2*time.Minute),
			),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_USER":     "enroller",
				"POSTGRES_PASSWORD": "enroller",
				"POSTGRES_DB":       "enroller_test",
			}),
		)
		if err != nil {
			return "", err
		}
		endpoint, err := ctr.Endpoint(ctx, "")
		if err != nil {
			_ = ctr.Terminate(context.Background())
			return "", err
		}
		return fmt.Sprintf("postgres://enroller:enroller@%s/enroller_test?sslmode=disable", endpoint), nil
	})
}

// GetRedisAddress returns host:port of a shared Redis container.
func GetRedisAddress(t *testing.T) string {
	return redisC.get(t, "redis", func(ctx context.Context) (string, error) {
		ctr, err := testcontainers.Run(
			ctx, "redis:7",
			testcontainers.WithExposedPorts("6379/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("6379/tcp"),
				wait.ForLog("Ready to accept connections"),
			),
		)
		if err != nil {
			return "", err
		}
		endpoint, err := ctr.Endpoint(ctx, "")
		if err != nil {
			_ = ctr.Terminate(context.Background())
			return "", err
		}
		return endpoint, nil
	})
}

// GetMongoURI returns a connection URI for a shared MongoDB container.
func GetMongoURI(t *testing.T) string {
	return mongoC.get(t, "mongo", func(ctx context.Context) (string, error) {
		ctr, err := testcontainers.Run(
			ctx, "mongo:7",
			testcontainers.WithExposedPorts("27017/tcp"),
			testcontainers.WithWaitStrategy(
				wait.ForListeningPort("27017/tcp").WithStartupTimeout(2*time.Minute),
			),
		)
		if err != nil {
			return "", err
		}
		endpoint, err := ctr.Endpoint(ctx, "")
		if err != nil {
			_ = ctr.Terminate(context.Background())
			return "", err
		}
		return "mongodb://" + endpoint, nil
	})
}
