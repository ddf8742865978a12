package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

var _ RateLimiter = (*LocalRateLimiter)(nil)

// LocalRateLimiter is an in-process token bucket per channel. It is used when no
// Redis is configured, so limits apply per worker process only.
type LocalRateLimiter struct {
	limitPerSec   int
	channelLimits map[string]int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewLocalRateLimiter(limitPerSec int, channelLimits map[string]int) *LocalRateLimiter {
	if limitPerSec <= 0 {
		limitPerSec = 50
	}

	limits := make(map[string]int, len(channelLimits))
	for channel, limit := range channelLimits {
		if limit > 0 {
			limits[NormalizeChannel(channel)] = limit
		}
	}

	return &LocalRateLimiter{
		limitPerSec:   limitPerSec,
		channelLimits: limits,
		limiters:      make(map[string]*rate.Limiter),
	}
}

func (l *LocalRateLimiter) limiter(channel string) (*rate.Limiter, error) {
	normalized := NormalizeChannel(channel)
	if normalized == "" {
		return nil, fmt.Errorf("channel is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[normalized]; ok {
		return lim, nil
	}

	limit := l.limitPerSec
	if override, ok := l.channelLimits[normalized]; ok {
		limit = override
	}
	lim := rate.NewLimiter(rate.Limit(limit), limit)
	l.limiters[normalized] = lim
	return lim, nil
}

func (l *LocalRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	lim, err := l.limiter(channel)
	if err != nil {
		return false, err
	}
	return lim.Allow(), nil
}

func (l *LocalRateLimiter) Wait(ctx context.Context, channel string) error {
	lim, err := l.limiter(channel)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return lim.Wait(ctx)
}
