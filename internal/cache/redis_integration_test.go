//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedisClient(t *testing.T) {
	ctx := context.Background()

	container, err := redis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := NewRedisClient(RedisConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port()), PoolSize: 2})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	for page := 1; page <= 3; page++ {
		require.NoError(t, c.Set(ctx, RasterKey("doc", page, 1.5, 2), []byte{byte(page)}, time.Minute))
	}
	got, err := c.Get(ctx, RasterKey("doc", 2, 1.5, 2))
	require.NoError(t, err)
	assert.Equal(t, []byte{2}, got)

	require.NoError(t, c.DeleteByPrefix(ctx, DocumentPrefix("doc")))
	_, err = c.Get(ctx, RasterKey("doc", 1, 1.5, 2))
	assert.ErrorIs(t, err, ErrCacheMiss)
}
