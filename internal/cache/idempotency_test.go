package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewIdempotencyStore(client)

	ok, err := store.Reserve(ctx, " POST|/v1/providers|key-1 ", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("idempotency:POST|/v1/providers|key-1"))

	ok, err = store.Reserve(ctx, "POST|/v1/providers|key-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Release(ctx, "POST|/v1/providers|key-1"))
	ok, err = store.Reserve(ctx, "POST|/v1/providers|key-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = store.Reserve(ctx, "POST|/v1/providers|key-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
}
