// Package ratelimit bounds login and reset attempts per identity/IP key,
// applied before the lockout policy ever consumes a request.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RedisLimiter is a fixed-window counter shared across instances. The key
// pattern is "ratelimit:<key>"; the window resets via TTL.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter allowing limit events per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window}
}

// Allow counts one attempt for the key and reports whether it is within
// the window's budget. Redis being unreachable fails open: availability
// of login outweighs the limiter on an infrastructure fault.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	rkey := fmt.Sprintf("ratelimit:%s", key)

	count, err := l.client.Incr(ctx, rkey).Result()
	if err != nil {
		return true, fmt.Errorf("rate limiter unavailable: %w", err)
	}
	if count == 1 {
		l.client.Expire(ctx, rkey, l.window)
	}
	return count <= int64(l.limit), nil
}

// LocalLimiter is the single-instance fallback built on token buckets,
// one bucket per key. Stale buckets are dropped on a coarse sweep.
type LocalLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*localBucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a limiter allowing roughly perMinute events per
// key per minute.
func NewLocalLimiter(perMinute int) *LocalLimiter {
	return &LocalLimiter{
		buckets:   make(map[string]*localBucket),
		limit:     rate.Limit(float64(perMinute) / 60.0),
		burst:     perMinute,
		lastSweep: time.Now(),
	}
}

// Allow reports whether the key's bucket has a token available.
func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > 10*time.Minute {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > 10*time.Minute {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.Allow(), nil
}
