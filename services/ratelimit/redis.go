// Package ratelimitsvc provides the magic-link request limiter.
package ratelimitsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/intellibus/aimasterclass/core"
)

// redisLimiter is a fixed-window counter: INCR per key, EXPIRE on the
// first hit. It fails open so a Redis outage never blocks sign-in.
type redisLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
	logger core.Logger
}

var _ core.RateLimiter = (*redisLimiter)(nil)

func NewRedisLimiter(conf *core.Config, logger core.Logger) *redisLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	return &redisLimiter{
		client: client,
		max:    conf.MagicLinkRateLimit,
		window: conf.MagicLinkRateWindow,
		logger: logger,
	}
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = "ratelimit:" + key

	cnt, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn(fmt.Sprintf("rate limiter: %v", err), err)
		return true, err
	}
	if cnt == 1 {
		if err = l.client.Expire(ctx, key, l.window).Err(); err != nil {
			l.logger.Warn(fmt.Sprintf("rate limiter expire: %v", err), err)
		}
	}
	return cnt <= int64(l.max), nil
}

func (l *redisLimiter) Close() error {
	return l.client.Close()
}
