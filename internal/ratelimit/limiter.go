// Package ratelimit enforces a remote subscriber's requested max_rate
// (messages per second, see internal/wire.SubPayload) using a Redis
// sorted-set sliding window, the same primitive the storage layer this
// module was adapted from uses for API rate limiting.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter tracks a per-key messages-per-second budget in Redis. A
// Limiter with a nil client allows everything; callers that never
// configure a Redis URL still get correct (unlimited) behavior.
type Limiter struct {
	client *redis.Client

	mu     sync.RWMutex
	limits map[string]int32
}

// New connects to the Redis instance at url. An empty url returns a
// Limiter that allows everything without dialing anything.
func New(ctx context.Context, url string) (*Limiter, error) {
	l := &Limiter{limits: make(map[string]int32)}
	if url == "" {
		return l, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: ping: %w", err)
	}

	l.client = client
	return l, nil
}

// Close releases the underlying Redis connection, if any.
func (l *Limiter) Close() error {
	if l.client == nil {
		return nil
	}
	return l.client.Close()
}

// Configure records the messages-per-second budget for key (typically
// "topic/subscriber_name"). A budget of 0 or less disables enforcement
// for that key.
func (l *Limiter) Configure(key string, maxPerSecond int32) {
	l.mu.Lock()
	l.limits[key] = maxPerSecond
	l.mu.Unlock()
}

var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local window_start = tonumber(ARGV[1])
	local now = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		redis.call('ZADD', key, now, now .. '-' .. math.random(1000000))
		redis.call('PEXPIRE', key, ttl)
		return 1
	else
		redis.call('PEXPIRE', key, ttl)
		return 0
	end
`)

// Allow reports whether a message for key may be delivered right now. It
// always returns true when the Limiter has no Redis client or no budget
// configured for key.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.client == nil {
		return true, nil
	}

	l.mu.RLock()
	limit, ok := l.limits[key]
	l.mu.RUnlock()
	if !ok || limit <= 0 {
		return true, nil
	}

	now := time.Now()
	windowStart := now.Add(-time.Second)

	result, err := slidingWindowScript.Run(ctx, l.client, []string{"busd:ratelimit:" + key},
		float64(windowStart.UnixMilli()),
		float64(now.UnixMilli()),
		limit,
		time.Second.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: check %q: %w", key, err)
	}

	return result == 1, nil
}
