package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"product-image-miner/config"
)

// newTestRedis connects to REDIS_TEST_ADDR, skipping when it is not set.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestNewRedis_DisabledWithoutHost(t *testing.T) {
	t.Parallel()

	client, err := NewRedis(fxtest.NewLifecycle(t), &config.Config{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Nil(t, client)
}

func TestLock_AcquireRelease(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	key := "test:lock:" + t.Name()
	t.Cleanup(func() { client.Del(ctx, key) })

	l, err := Acquire(ctx, client, key, time.Minute)
	require.NoError(t, err)

	_, err = Acquire(ctx, client, key, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, l.Release(ctx))

	l2, err := Acquire(ctx, client, key, time.Minute)
	require.NoError(t, err)

	// A stale holder must not release someone else's lock.
	require.NoError(t, l.Release(ctx))
	_, err = Acquire(ctx, client, key, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, l2.Release(ctx))
}
