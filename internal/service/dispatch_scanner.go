package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/queue"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultScanInterval = 10 * time.Second
	defaultScanLimit    = 100
	defaultClaimTTL     = 5 * time.Minute
)

// DispatchScanSummary counts what one scan did.
type DispatchScanSummary struct {
	Released  int64 `json:"released"`
	Published int   `json:"published"`
	Failed    int   `json:"failed"`
}

// DispatchScanner periodically releases stale claims and enqueues due
// PENDING reminders for the dispatch workers.
type DispatchScanner struct {
	reminders repository.ReminderRepository
	publisher queue.Publisher
	logger    *zap.Logger
	interval  time.Duration
	limit     int
	claimTTL  time.Duration
	now       func() time.Time
}

func NewDispatchScanner(
	reminders repository.ReminderRepository,
	publisher queue.Publisher,
	interval time.Duration,
	limit int,
	claimTTL time.Duration,
	logger *zap.Logger,
) (*DispatchScanner, error) {
	if reminders == nil || publisher == nil {
		return nil, fmt.Errorf("reminder repository and publisher are required")
	}
	if interval <= 0 {
		interval = defaultScanInterval
	}
	if limit <= 0 {
		limit = defaultScanLimit
	}
	if claimTTL <= 0 {
		claimTTL = defaultClaimTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchScanner{
		reminders: reminders,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		limit:     limit,
		claimTTL:  claimTTL,
		now:       time.Now,
	}, nil
}

func (s *DispatchScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("dispatch scanner initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.ScanOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("dispatch scan failed", zap.Error(err))
			}
		}
	}
}

// ScanOnce releases claims older than the claim TTL, then publishes up to
// limit due reminders and stamps each as enqueued. A reminder enqueued within
// the claim TTL is not published again. One that is published twice anyway is
// dispatched once: the second worker fails to claim it.
func (s *DispatchScanner) ScanOnce(ctx context.Context) (DispatchScanSummary, error) {
	var summary DispatchScanSummary
	logger := observability.WithContextLogger(s.logger, ctx)
	now := s.now().UTC()

	released, err := s.reminders.ReleaseStaleClaims(ctx, now.Add(-s.claimTTL))
	if err != nil {
		return summary, fmt.Errorf("failed to release stale claims: %w", err)
	}
	summary.Released = released
	if released > 0 {
		logger.Warn("released stale reminder claims", zap.Int64("count", released))
	}

	due, err := s.reminders.GetDuePending(ctx, now, now.Add(-s.claimTTL), s.limit)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch due reminders: %w", err)
	}

	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	for i := range due {
		msg := queue.ReminderMessage{
			ReminderID:    due[i].ID,
			CorrelationID: correlationID,
		}
		if err := s.publisher.Publish(ctx, queue.DispatchQueue, msg); err != nil {
			summary.Failed++
			logger.Error("failed to enqueue due reminder",
				zap.String("reminderId", due[i].ID),
				zap.String("queue", queue.DispatchQueue),
				zap.Error(err),
			)
			continue
		}
		summary.Published++

		updated, err := s.reminders.MarkEnqueued(ctx, due[i].ID, now)
		if err != nil {
			logger.Error("failed to mark due reminder as enqueued",
				zap.String("reminderId", due[i].ID),
				zap.Error(err),
			)
			continue
		}
		if !updated {
			logger.Info("due reminder status changed before enqueue mark",
				zap.String("reminderId", due[i].ID),
			)
		}
	}

	return summary, nil
}
