package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container tests skipped in -short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := OpenRedis(ctx, "redis://"+endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStore(t *testing.T) {
	client := setupRedis(t)
	store := NewRedis(client, "trustscope:test:")
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "activity")
	require.NoError(t, err)
	assert.False(t, ok)

	stored := Entry{Value: []byte(`{"activity":[]}`), StoredAt: time.Now().UTC().Truncate(time.Millisecond)}
	require.NoError(t, store.Set(ctx, "activity", stored, time.Minute))

	got, ok, err := store.Get(ctx, "activity")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, stored.Value, got.Value)
	assert.True(t, stored.StoredAt.Equal(got.StoredAt))

	ttl, err := client.TTL(ctx, "trustscope:test:activity").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Delete(ctx, "activity"))
	_, ok, err = store.Get(ctx, "activity")
	require.NoError(t, err)
	assert.False(t, ok)
}
