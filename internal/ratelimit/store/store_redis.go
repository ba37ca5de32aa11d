package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"regcore/internal/ratelimit"
)

// slidingWindow trims the sorted set to the window, then adds the event if
// the count is below the limit. Scores are microseconds.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
  local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
  return {0, count, tonumber(oldest[2] or now)}
end
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], math.ceil(window / 1000))
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
return {1, count + 1, tonumber(oldest[2])}
`)

// RedisStore shares windows between processes.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*ratelimit.Result, error) {
	now := s.now().UnixMicro()
	vals, err := slidingWindow.Run(ctx, s.client, []string{key},
		now, window.Microseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("evaluate window %s: %w", key, err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("evaluate window %s: unexpected reply %v", key, vals)
	}

	res := &ratelimit.Result{
		Allowed: vals[0] == 1,
		ResetAt: time.UnixMicro(vals[2]).Add(window),
		Limit:   limit,
	}
	if res.Allowed {
		res.Remaining = limit - int(vals[1])
	}
	return res, nil
}
