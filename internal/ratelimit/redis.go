package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// admitScript increments the window counter and stamps its expiry in one
// round trip so two workers can never both claim the last slot.
var admitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if count > tonumber(ARGV[2]) then
  return 0
end
return 1
`)

// RedisWindow is a fixed-window limiter backed by a shared Redis instance,
// for deployments running more than one worker process against the same
// sender pool. It is a drop-in replacement for FixedWindow behind the Limiter
// interface.
type RedisWindow struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisWindow constructs a Redis-backed limiter. All worker processes
// sharing the Redis instance share the same windows.
func NewRedisWindow(rdb *redis.Client, limit int, window time.Duration, prefix string) (*RedisWindow, error) {
	if rdb == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	if limit < 1 {
		return nil, errors.New("ratelimit: limit must be >= 1")
	}
	if window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisWindow{rdb: rdb, limit: limit, window: window, prefix: prefix}, nil
}

// Admit reports whether one more call is allowed for key within the current
// window. Redis errors are surfaced so the caller can decide whether to fail
// open or abort the attempt.
func (r *RedisWindow) Admit(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", r.prefix, key)
	res, err := admitScript.Run(ctx, r.rdb, []string{redisKey}, r.window.Milliseconds(), r.limit).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis admit: %w", err)
	}
	return res == 1, nil
}
