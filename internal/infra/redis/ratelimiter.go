package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 50
	backoffStep              = 10 * time.Millisecond
	backoffMax               = 50 * time.Millisecond
	windowSeconds            = 1
	keyPrefix                = "reminder-engine:ratelimit"
)

// Fixed one-second window: the first INCR of a window sets its expiry.
var windowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter throttles provider calls per channel across every worker process.
type RedisRateLimiter struct {
	client       *goredis.Client
	defaultLimit int64
	channelLimit map[string]int64
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewRedisRateLimiter builds a limiter with limitPerSec for every channel;
// channelLimits overrides it per lower-cased channel name.
func NewRedisRateLimiter(client *goredis.Client, limitPerSec int, channelLimits map[string]int) (*RedisRateLimiter, error) {
	return newRedisRateLimiter(client, int64(limitPerSec), channelLimits, time.Now, sleepWithContext)
}

func newRedisRateLimiter(
	client *goredis.Client,
	limitPerSec int64,
	channelLimits map[string]int,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*RedisRateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	limits := make(map[string]int64, len(channelLimits))
	for channel, limit := range channelLimits {
		if limit > 0 {
			limits[ratelimit.NormalizeChannel(channel)] = int64(limit)
		}
	}

	return &RedisRateLimiter{
		client:       client,
		defaultLimit: limitPerSec,
		channelLimit: limits,
		now:          nowFn,
		sleep:        sleepFn,
	}, nil
}

func (r *RedisRateLimiter) limitFor(channel string) int64 {
	if limit, ok := r.channelLimit[channel]; ok {
		return limit
	}
	return r.defaultLimit
}

func (r *RedisRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if r == nil || r.client == nil {
		return false, fmt.Errorf("rate limiter is not initialized")
	}

	normalized := ratelimit.NormalizeChannel(channel)
	if normalized == "" {
		return false, fmt.Errorf("channel is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key := strings.Join([]string{keyPrefix, normalized, fmt.Sprint(r.now().UTC().Unix())}, ":")
	result, err := windowScript.Run(ctx, r.client, []string{key}, r.limitFor(normalized), windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return result == 1, nil
}

func (r *RedisRateLimiter) Wait(ctx context.Context, channel string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	backoff := backoffStep
	for {
		allowed, err := r.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := r.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff = min(backoff+backoffStep, backoffMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
