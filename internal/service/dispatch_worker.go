package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/queue"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// Dispatcher runs one dispatch cycle for a reminder.
type Dispatcher interface {
	Dispatch(ctx context.Context, reminderID string) (*DispatchOutcome, error)
}

// DispatchWorker consumes the dispatch queue with a fixed pool of consumers.
type DispatchWorker struct {
	consumer    queue.Consumer
	dispatcher  Dispatcher
	logger      *zap.Logger
	concurrency int
}

func NewDispatchWorker(consumer queue.Consumer, dispatcher Dispatcher, concurrency int, logger *zap.Logger) (*DispatchWorker, error) {
	if consumer == nil || dispatcher == nil {
		return nil, fmt.Errorf("consumer and dispatcher are required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchWorker{
		consumer:    consumer,
		dispatcher:  dispatcher,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Start consumes the dispatch queue until context cancellation.
func (w *DispatchWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("dispatch worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.DispatchQueue),
			)

			err := w.consumer.Consume(groupCtx, queue.DispatchQueue, w.processMessage)
			if err != nil {
				w.logger.Error("dispatch worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("dispatch worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

func (w *DispatchWorker) processMessage(ctx context.Context, msg queue.ReminderMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}

	_, err := w.dispatcher.Dispatch(ctx, msg.ReminderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			observability.WithContextLogger(w.logger, ctx).Warn("reminder not found, dropping message",
				zap.String("reminderId", msg.ReminderID),
			)
			return nil
		}
		return fmt.Errorf("dispatch cycle failed: %w", err)
	}
	return nil
}
