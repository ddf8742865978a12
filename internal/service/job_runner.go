package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"go.uber.org/zap"
)

// JobRunner runs one pass of each periodic job under a fresh correlation id.
// It backs the HTTP trigger surface, the cron schedule and the CLI.
type JobRunner struct {
	scheduler *ReminderScheduler
	resolver  *EscalationResolver
	scanner   *DispatchScanner
	logger    *zap.Logger
}

func NewJobRunner(scheduler *ReminderScheduler, resolver *EscalationResolver, scanner *DispatchScanner, logger *zap.Logger) *JobRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobRunner{
		scheduler: scheduler,
		resolver:  resolver,
		scanner:   scanner,
		logger:    logger,
	}
}

func (j *JobRunner) withCorrelation(ctx context.Context, job string) context.Context {
	if _, ok := observability.CorrelationIDFromContext(ctx); ok {
		return ctx
	}
	correlationID := uuid.NewString()
	j.logger.Debug("job pass starting", zap.String("job", job), zap.String("correlationId", correlationID))
	return observability.WithCorrelationID(ctx, correlationID)
}

func (j *JobRunner) RunReminders(ctx context.Context) (ReminderRunSummary, error) {
	if j.scheduler == nil {
		return ReminderRunSummary{}, fmt.Errorf("reminder scheduler is not configured")
	}
	return j.scheduler.RunOnce(j.withCorrelation(ctx, "reminders"))
}

func (j *JobRunner) RunEscalations(ctx context.Context) (EscalationRunSummary, error) {
	if j.resolver == nil {
		return EscalationRunSummary{}, fmt.Errorf("escalation resolver is not configured")
	}
	return j.resolver.RunOnce(j.withCorrelation(ctx, "escalations"))
}

func (j *JobRunner) RunDispatch(ctx context.Context) (DispatchScanSummary, error) {
	if j.scanner == nil {
		return DispatchScanSummary{}, fmt.Errorf("dispatch scanner is not configured")
	}
	return j.scanner.ScanOnce(j.withCorrelation(ctx, "dispatch"))
}
