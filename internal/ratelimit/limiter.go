// Package ratelimit throttles chat messages per user with a Redis sliding
// window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims the window, then admits the call if it still has room.
// Members carry a counter suffix so two calls in the same millisecond both
// count.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)
	if current >= limit then
		return {0, 0}
	end

	local counter = redis.call('INCR', key .. ':seq')
	redis.call('ZADD', key, now, now .. ':' .. counter)
	local ttl = math.ceil(window_ms / 1000)
	redis.call('EXPIRE', key, ttl)
	redis.call('EXPIRE', key .. ':seq', ttl)
	return {1, limit - current - 1}
`)

type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// Limiter allows at most Limit calls per key within any Window.
type Limiter struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

func New(client *redis.Client, cfg Config) (*Limiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: nil redis client")
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: limit and window must be positive, got %d/%s", cfg.Limit, cfg.Window)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "roomchat:rl:"
	}
	return &Limiter{client: client, cfg: cfg, now: time.Now}, nil
}

func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	res, err := slidingWindow.Run(ctx, l.client, []string{l.cfg.Prefix + key},
		now.UnixMilli(),
		now.Add(-l.cfg.Window).UnixMilli(),
		l.cfg.Limit,
		l.cfg.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("ratelimit: run script: %w", err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("ratelimit: unexpected reply length %d", len(res))
	}

	return res[0] == 1, nil
}

// Reset clears the window for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	k := l.cfg.Prefix + key
	return l.client.Del(ctx, k, k+":seq").Err()
}

// NewClient builds a redis client and checks it answers PING.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}
