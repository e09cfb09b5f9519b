// Package ratelimit shares the payment rate limit between replicas through Redis.
package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/rehmanpranto/QuizFlow/core"
	"github.com/rehmanpranto/QuizFlow/core/payment"
)

const keyPrefix = "quizflow:ratelimit:"

// allowScript trims the window, counts it and records the attempt if under the limit.
// KEYS[1] key; ARGV window start (ms), now (ms), limit, member, window (ms)
var allowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

// RedisLimiter keeps one sorted set of attempt timestamps per identifier and action.
type RedisLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

var _ payment.RateLimiter = (*RedisLimiter)(nil)

// Connect opens and pings the configured Redis.
func Connect(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        conf.Redis.Addr,
		Password:    conf.Redis.Password,
		DB:          conf.Redis.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return rdb, nil
}

func NewRedisLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, window: window}
}

func (rl *RedisLimiter) Allow(ctx context.Context, identifier, action, ip string) (bool, error) {
	now := core.NowFunc()
	key := keyPrefix + action + ":" + identifier
	member := ip + "|" + uuid.NewString()

	ok, err := allowScript.Run(ctx, rl.rdb, []string{key},
		now.Add(-rl.window).UnixMilli(),
		now.UnixMilli(),
		rl.limit,
		member,
		rl.window.Milliseconds(),
	).Int()
	if err != nil {
		return false, errors.Wrap(err, "running rate limit script")
	}
	return ok == 1, nil
}
