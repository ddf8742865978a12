package ratelimit

import (
	"context"
	"strings"
)

// RateLimiter controls provider call throughput per channel.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}

// NormalizeChannel lower-cases and trims a channel name for use as a limiter key.
func NormalizeChannel(channel string) string {
	return strings.ToLower(strings.TrimSpace(channel))
}
