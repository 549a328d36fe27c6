// Package ratelimit throttles booking writes per user.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether key may perform one more action now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Local keeps one token bucket per key in memory.
type Local struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocal allows max actions per period per key, refilled evenly.
func NewLocal(max int, period time.Duration) *Local {
	return &Local{
		limit:    rate.Every(period / time.Duration(max)),
		burst:    max,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	return l.limiter(key).Allow(), nil
}

func (l *Local) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Redis is a fixed-window counter shared by all instances.
type Redis struct {
	client *redis.Client
	max    int
	period time.Duration
}

func NewRedis(client *redis.Client, max int, period time.Duration) *Redis {
	return &Redis{client: client, max: max, period: period}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().UnixNano() / int64(r.period)
	redisKey := fmt.Sprintf("testdrive:ratelimit:%s:%d", key, window)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, r.period)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return incr.Val() <= int64(r.max), nil
}
