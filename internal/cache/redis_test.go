package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisWithClient(client, DefaultConfig())
}

func TestNewRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	config := DefaultRedisConfig()
	config.Addr = mr.Addr()

	r, err := NewRedis(config)
	require.NoError(t, err)
	defer r.Close()
	assert.NotNil(t, r)
}

func TestRedisSetAndGet(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))

	value, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}

func TestRedisGetMiss(t *testing.T) {
	r := setupTestRedis(t)

	_, err := r.Get(context.Background(), "absent")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisDelete(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, r.Delete(ctx, "k"))

	_, err := r.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestRedisDeletePrefix(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "resp:posts:a", []byte("1"), time.Minute))
	require.NoError(t, r.Set(ctx, "resp:comments:a", []byte("2"), time.Minute))

	require.NoError(t, r.DeletePrefix(ctx, "resp:posts:"))

	_, err := r.Get(ctx, "resp:posts:a")
	assert.True(t, IsCacheMiss(err))

	value, err := r.Get(ctx, "resp:comments:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), value)
}

func TestRedisClear(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, r.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, r.Set(ctx, "b", []byte("2"), time.Minute))
	require.NoError(t, r.Clear(ctx))

	_, err := r.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
}
