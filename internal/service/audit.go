package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

// AuditReceipt reports whether an audit row was persisted. Writers never fail
// their caller; a receipt with Err set has already been logged and counted.
type AuditReceipt struct {
	LogID string
	Err   error
}

func (r AuditReceipt) Written() bool { return r.Err == nil }

// AuditLogger appends immutable rows to the reminder and escalation trails.
type AuditLogger struct {
	reminderLogs repository.ReminderLogRepository
	escalations  repository.EscalationEventRepository
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
	newID        func() string
}

func NewAuditLogger(
	reminderLogs repository.ReminderLogRepository,
	escalations repository.EscalationEventRepository,
	logger *zap.Logger,
) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{
		reminderLogs: reminderLogs,
		escalations:  escalations,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (a *AuditLogger) SetMetrics(metrics *observability.Metrics) {
	if a == nil {
		return
	}
	a.metrics = metrics
}

// Reminder appends one reminder dispatch row. ID, CreatedAt and Initiator are
// filled in when empty.
func (a *AuditLogger) Reminder(ctx context.Context, entry domain.ReminderLog) AuditReceipt {
	a.fillReminder(&entry)

	err := entry.Validate()
	if err == nil {
		err = a.reminderLogs.Append(ctx, &entry)
	}
	if err != nil {
		a.metrics.IncAuditWriteFailure("reminder")
		observability.WithContextLogger(a.logger, ctx).Error("failed to append reminder log",
			zap.String("reminderId", entry.ReminderID),
			zap.String("channel", entry.Channel.String()),
			zap.String("status", entry.Status.String()),
			zap.Error(err),
		)
		return AuditReceipt{LogID: entry.ID, Err: err}
	}

	return AuditReceipt{LogID: entry.ID}
}

// ReminderAfter appends entry only while the row numbered afterSeq is still the
// newest for its channel. Unlike Reminder it returns the write error, and it
// reports false when another writer appended first.
func (a *AuditLogger) ReminderAfter(ctx context.Context, entry domain.ReminderLog, afterSeq int64) (bool, error) {
	a.fillReminder(&entry)
	if err := entry.Validate(); err != nil {
		return false, err
	}

	appended, err := a.reminderLogs.AppendAfter(ctx, &entry, afterSeq)
	if err != nil {
		a.metrics.IncAuditWriteFailure("reminder")
		return false, err
	}
	return appended, nil
}

func (a *AuditLogger) fillReminder(entry *domain.ReminderLog) {
	if entry.ID == "" {
		entry.ID = a.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now().UTC()
	}
	if entry.Initiator == "" {
		entry.Initiator = domain.InitiatorScheduler
	}
}

// Escalation appends one escalation delivery row.
func (a *AuditLogger) Escalation(ctx context.Context, entry domain.EscalationLog) AuditReceipt {
	if entry.ID == "" {
		entry.ID = a.newID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = a.now().UTC()
	}
	if entry.Initiator == "" {
		entry.Initiator = domain.InitiatorResolver
	}

	err := entry.Validate()
	if err == nil {
		err = a.escalations.AppendLog(ctx, &entry)
	}
	if err != nil {
		a.metrics.IncAuditWriteFailure("escalation")
		observability.WithContextLogger(a.logger, ctx).Error("failed to append escalation log",
			zap.String("requestId", entry.RequestID),
			zap.Int("level", entry.Level),
			zap.String("channel", entry.Channel.String()),
			zap.Error(err),
		)
		return AuditReceipt{LogID: entry.ID, Err: err}
	}

	return AuditReceipt{LogID: entry.ID}
}
