package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDriver string `env:"DATABASE_DRIVER,default=postgres"`
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL    string `env:"RABBITMQ_URL,required=true"`
	RedisURL       string `env:"REDIS_URL"`

	DBMaxOpenConns int `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns int `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBSlowQueryMS  int `env:"DB_SLOW_QUERY_MS,default=200"`

	EmailGatewayURL string `env:"EMAIL_GATEWAY_URL"`
	EmailAPIKey     string `env:"EMAIL_API_KEY"`
	SMSGatewayURL   string `env:"SMS_GATEWAY_URL"`
	SMSAPIKey       string `env:"SMS_API_KEY"`
	InAppGatewayURL string `env:"INAPP_GATEWAY_URL"`
	InAppAPIKey     string `env:"INAPP_API_KEY"`

	ProviderTimeoutMS int `env:"PROVIDER_TIMEOUT_MS,default=5000"`
	WebhookTimeoutMS  int `env:"WEBHOOK_TIMEOUT_MS,default=3000"`
	WebhookWorkers    int `env:"WEBHOOK_WORKERS,default=2"`
	WebhookBufferSize int `env:"WEBHOOK_BUFFER_SIZE,default=256"`

	ReminderCron            string `env:"REMINDER_CRON,default=0 8 * * *"`
	EscalationCron          string `env:"ESCALATION_CRON,default=@every 5m"`
	DispatchScanIntervalSec int    `env:"DISPATCH_SCAN_INTERVAL_SEC,default=10"`
	DispatchScanLimit       int    `env:"DISPATCH_SCAN_LIMIT,default=100"`
	ClaimTTLSec             int    `env:"CLAIM_TTL_SEC,default=300"`
	Timezone                string `env:"TIMEZONE,default=UTC"`

	RateLimitPerSec int `env:"RATE_LIMIT_PER_SEC,default=50"`
	// RateLimitChannels overrides RateLimitPerSec per channel, e.g. "sms=5,email=100".
	RateLimitChannels string `env:"RATE_LIMIT_CHANNELS"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=4"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.DatabaseDriver = strings.ToLower(strings.TrimSpace(cfg.DatabaseDriver))
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("failed to load config: unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("failed to load config: invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if _, err := cfg.ChannelRateLimits(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &cfg, nil
}

// ChannelRateLimits parses RateLimitChannels into lower-cased channel names.
func (c *Config) ChannelRateLimits() (map[string]int, error) {
	limits := make(map[string]int)
	for _, pair := range strings.Split(c.RateLimitChannels, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		channel, value, ok := strings.Cut(pair, "=")
		channel = strings.ToLower(strings.TrimSpace(channel))
		if !ok || channel == "" {
			return nil, fmt.Errorf("invalid RATE_LIMIT_CHANNELS entry %q", pair)
		}

		limit, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_CHANNELS limit for %q", channel)
		}
		limits[channel] = limit
	}
	return limits, nil
}

// Location returns the time zone reminder run dates are computed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMS) * time.Millisecond
}

func (c *Config) WebhookTimeout() time.Duration {
	return time.Duration(c.WebhookTimeoutMS) * time.Millisecond
}

func (c *Config) DispatchScanInterval() time.Duration {
	return time.Duration(c.DispatchScanIntervalSec) * time.Second
}

func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.DBSlowQueryMS) * time.Millisecond
}

func (c *Config) ClaimTTL() time.Duration {
	return time.Duration(c.ClaimTTLSec) * time.Second
}
