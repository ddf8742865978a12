package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/reminder-engine/internal/app"
	"github.com/kursadbilgin/reminder-engine/internal/config"
	"github.com/kursadbilgin/reminder-engine/internal/handler"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel, "api")
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

	server := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	server.Use(recover.New())
	server.Use(requestid.New())
	server.Use(handler.CorrelationMiddleware())
	server.Use(a.Metrics.HTTPMiddleware())

	var broker handler.BrokerPinger
	if a.Rabbit != nil {
		broker = a.Rabbit
	}
	handler.RegisterHealthRoutes(server, a.SQLDB, a.Redis, broker)
	server.Get("/metrics", adaptor.HTTPHandler(a.Metrics.Handler()))

	if err := handler.RegisterJobRoutes(server, a.Jobs); err != nil {
		logger.Fatal("job routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterReminderRoutes(server, a.Reminders, a.ReminderLogs, a.Orchestrator); err != nil {
		logger.Fatal("reminder routes registration failed", zap.Error(err))
	}
	if err := handler.RegisterEscalationRoutes(server, a.Escalations); err != nil {
		logger.Fatal("escalation routes registration failed", zap.Error(err))
	}

	go func() {
		<-ctx.Done()
		if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("reminder-engine api started", zap.Int("port", cfg.APIPort))
	if err := server.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Error("api server stopped", zap.Error(err))
	}
	logger.Info("reminder-engine api stopped")
}
