package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/kursadbilgin/reminder-engine/internal/app"
	"github.com/kursadbilgin/reminder-engine/internal/config"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/queue"
	"github.com/kursadbilgin/reminder-engine/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "worker")
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(cfg, logger, app.Options{Queue: true})
	if err != nil {
		logger.Fatal("initialization failed", zap.Error(err))
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.StartEmitter(ctx)

	consumer := queue.NewRabbitMQConsumer(a.Rabbit, cfg.WorkerConcurrency, logger)
	worker, err := service.NewDispatchWorker(consumer, a.Orchestrator, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("dispatch worker initialization failed", zap.Error(err))
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	scheduler := cron.New(
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := scheduler.AddFunc(cfg.ReminderCron, func() {
		if _, err := a.Jobs.RunReminders(ctx); err != nil {
			logger.Error("reminder scheduler pass failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("invalid REMINDER_CRON", zap.String("expression", cfg.ReminderCron), zap.Error(err))
	}
	if _, err := scheduler.AddFunc(cfg.EscalationCron, func() {
		if _, err := a.Jobs.RunEscalations(ctx); err != nil {
			logger.Error("escalation resolver pass failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("invalid ESCALATION_CRON", zap.String("expression", cfg.EscalationCron), zap.Error(err))
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Start()
		logger.Info("cron jobs scheduled",
			zap.String("reminderCron", cfg.ReminderCron),
			zap.String("escalationCron", cfg.EscalationCron),
		)
		<-groupCtx.Done()
		<-scheduler.Stop().Done()
		return nil
	})
	g.Go(func() error {
		return a.Scanner.Start(groupCtx)
	})
	g.Go(func() error {
		return worker.Start(groupCtx)
	})

	logger.Info("reminder-engine worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}
	logger.Info("reminder-engine worker stopped")
}
