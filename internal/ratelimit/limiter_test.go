package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Validates(t *testing.T) {
	_, err := New(nil, Config{Limit: 1, Window: time.Second})
	require.Error(t, err)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	_, err = New(client, Config{Limit: 0, Window: time.Second})
	require.Error(t, err)
	_, err = New(client, Config{Limit: 1})
	require.Error(t, err)

	l, err := New(client, Config{Limit: 3, Window: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "roomchat:rl:", l.cfg.Prefix)
}

func TestAllow_Integration(t *testing.T) {
	addr := os.Getenv("ROOMCHAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ROOMCHAT_TEST_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	l, err := New(client, Config{Limit: 3, Window: 200 * time.Millisecond, Prefix: "roomchat:test:"})
	require.NoError(t, err)
	key := uuid.NewString()
	defer l.Reset(ctx, key)

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "call %d", i)
	}
	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	// other keys have their own window
	ok, err = l.Allow(ctx, key+"-other")
	require.NoError(t, err)
	assert.True(t, ok)
	_ = l.Reset(ctx, key+"-other")

	time.Sleep(250 * time.Millisecond)
	ok, err = l.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAllow_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	l, err := New(client, Config{Limit: 1, Window: time.Second})
	require.NoError(t, err)

	_, err = l.Allow(context.Background(), "u1")
	require.Error(t, err)
}
