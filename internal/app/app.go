// Package app wires configuration, infrastructure and services into the
// components each binary runs.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/reminder-engine/internal/config"
	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/infra"
	infraredis "github.com/kursadbilgin/reminder-engine/internal/infra/redis"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/provider"
	"github.com/kursadbilgin/reminder-engine/internal/queue"
	"github.com/kursadbilgin/reminder-engine/internal/ratelimit"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"github.com/kursadbilgin/reminder-engine/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options selects the optional infrastructure a binary needs.
type Options struct {
	// Queue connects to RabbitMQ for the dispatch scanner and workers.
	Queue bool
}

// App holds every constructed component. Close releases them in reverse order.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	DB    *gorm.DB
	SQLDB *sql.DB
	// Redis is nil when REDIS_URL is empty and the in-process limiter is used.
	Redis  *redis.Client
	Rabbit *queue.RabbitMQ

	Reminders    *repository.GormReminderRepo
	ReminderLogs *repository.GormReminderLogRepo
	Escalations  *repository.GormEscalationRepo

	Orchestrator *service.DispatchOrchestrator
	Scheduler    *service.ReminderScheduler
	Resolver     *service.EscalationResolver
	Emitter      *service.WebhookEmitter
	Scanner      *service.DispatchScanner
	Jobs         *service.JobRunner

	stopEmitter context.CancelFunc
}

func New(cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	if err := a.build(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(opts Options) error {
	cfg := a.Config

	db, err := infra.OpenDatabase(infra.DatabaseOptions{
		Driver:             cfg.DatabaseDriver,
		DSN:                cfg.DatabaseDSN,
		MaxOpenConns:       cfg.DBMaxOpenConns,
		MaxIdleConns:       cfg.DBMaxIdleConns,
		SlowQueryThreshold: cfg.SlowQueryThreshold(),
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("database initialization failed: %w", err)
	}
	a.DB = db

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database handle init failed: %w", err)
	}
	a.SQLDB = sqlDB

	limiter, err := a.rateLimiter()
	if err != nil {
		return err
	}

	a.Reminders = repository.NewGormReminderRepo(db)
	a.ReminderLogs = repository.NewGormReminderLogRepo(db)
	a.Escalations = repository.NewGormEscalationRepo(db)
	leases := repository.NewGormLeaseRepo(db)
	contacts := repository.NewGormContactRepo(db)

	adapters, err := a.adapters()
	if err != nil {
		return err
	}

	gate := service.NewFeatureGate(repository.NewGormFeatureRepo(db), a.Logger)
	audit := service.NewAuditLogger(a.ReminderLogs, a.Escalations, a.Logger)
	audit.SetMetrics(a.Metrics)

	a.Emitter = service.NewWebhookEmitter(contacts, provider.NewWebhookClient(cfg.WebhookTimeout()), service.WebhookEmitterConfig{
		Workers:    cfg.WebhookWorkers,
		BufferSize: cfg.WebhookBufferSize,
		Timeout:    cfg.WebhookTimeout(),
	}, a.Logger)
	a.Emitter.SetMetrics(a.Metrics)

	a.Orchestrator, err = service.NewDispatchOrchestrator(
		a.Reminders, a.ReminderLogs, leases, gate, adapters, limiter, audit, a.Emitter, a.Logger,
	)
	if err != nil {
		return err
	}
	a.Orchestrator.SetMetrics(a.Metrics)

	a.Scheduler = service.NewReminderScheduler(leases, a.Reminders, cfg.Location(), a.Logger)
	a.Scheduler.SetMetrics(a.Metrics)

	a.Resolver = service.NewEscalationResolver(
		repository.NewGormRequestRepo(db), a.Escalations, a.Escalations, contacts, gate, a.Orchestrator, a.Emitter, a.Logger,
	)
	a.Resolver.SetMetrics(a.Metrics)

	if opts.Queue {
		a.Rabbit, err = queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		a.Scanner, err = service.NewDispatchScanner(
			a.Reminders,
			queue.NewRabbitMQPublisher(a.Rabbit),
			cfg.DispatchScanInterval(),
			cfg.DispatchScanLimit,
			cfg.ClaimTTL(),
			a.Logger,
		)
		if err != nil {
			return err
		}
	}

	a.Jobs = service.NewJobRunner(a.Scheduler, a.Resolver, a.Scanner, a.Logger)
	return nil
}

func (a *App) rateLimiter() (ratelimit.RateLimiter, error) {
	cfg := a.Config
	channelLimits, err := cfg.ChannelRateLimits()
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RedisURL) == "" {
		a.Logger.Info("REDIS_URL not set, using in-process rate limiter")
		return ratelimit.NewLocalRateLimiter(cfg.RateLimitPerSec, channelLimits), nil
	}

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis initialization failed: %w", err)
	}
	a.Redis = rdb

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, channelLimits)
	if err != nil {
		return nil, fmt.Errorf("rate limiter initialization failed: %w", err)
	}
	return limiter, nil
}

// adapters builds one gateway per channel. A gateway missing its URL or key
// still constructs; its sends fail with a configuration error.
func (a *App) adapters() (provider.Adapters, error) {
	cfg := a.Config
	timeout := cfg.ProviderTimeout()

	email, err := provider.NewGateway(domain.ChannelEmail, provider.GatewayConfig{URL: cfg.EmailGatewayURL, APIKey: cfg.EmailAPIKey, Timeout: timeout})
	if err != nil {
		return provider.Adapters{}, err
	}
	sms, err := provider.NewGateway(domain.ChannelSMS, provider.GatewayConfig{URL: cfg.SMSGatewayURL, APIKey: cfg.SMSAPIKey, Timeout: timeout})
	if err != nil {
		return provider.Adapters{}, err
	}
	inApp, err := provider.NewGateway(domain.ChannelInApp, provider.GatewayConfig{URL: cfg.InAppGatewayURL, APIKey: cfg.InAppAPIKey, Timeout: timeout})
	if err != nil {
		return provider.Adapters{}, err
	}

	for _, c := range []struct {
		channel domain.Channel
		url     string
		key     string
	}{
		{domain.ChannelEmail, cfg.EmailGatewayURL, cfg.EmailAPIKey},
		{domain.ChannelSMS, cfg.SMSGatewayURL, cfg.SMSAPIKey},
		{domain.ChannelInApp, cfg.InAppGatewayURL, cfg.InAppAPIKey},
	} {
		if strings.TrimSpace(c.url) == "" || strings.TrimSpace(c.key) == "" {
			a.Logger.Warn("channel gateway not fully configured, sends will fail", zap.String("channel", c.channel.String()))
		}
	}

	return provider.Adapters{Email: email, SMS: sms, InApp: inApp}, nil
}

// StartEmitter launches the webhook workers. They outlive ctx so events from
// in-flight work are still accepted during shutdown; Close stops and drains them.
func (a *App) StartEmitter(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.stopEmitter = cancel
	a.Emitter.Start(ctx)
}

func (a *App) Close() {
	if a.stopEmitter != nil {
		a.stopEmitter()
		a.Emitter.Close()
	}

	var errs []error
	if a.Rabbit != nil {
		errs = append(errs, a.Rabbit.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.SQLDB != nil {
		errs = append(errs, a.SQLDB.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("error while closing resources", zap.Error(err))
	}
}
