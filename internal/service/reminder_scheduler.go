package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultLeasePageSize = 200

// ReminderRunSummary counts what one scheduler pass did.
type ReminderRunSummary struct {
	LeasesScanned int `json:"leasesScanned"`
	Created       int `json:"created"`
	Duplicates    int `json:"duplicates"`
	Failed        int `json:"failed"`
}

// ReminderScheduler creates reminders for active leases at fixed day offsets.
type ReminderScheduler struct {
	leases    repository.LeaseRepository
	reminders repository.ReminderRepository
	logger    *zap.Logger
	metrics   *observability.Metrics
	location  *time.Location
	pageSize  int
	now       func() time.Time
	newID     func() string
}

func NewReminderScheduler(
	leases repository.LeaseRepository,
	reminders repository.ReminderRepository,
	location *time.Location,
	logger *zap.Logger,
) *ReminderScheduler {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReminderScheduler{
		leases:    leases,
		reminders: reminders,
		logger:    logger,
		location:  location,
		pageSize:  defaultLeasePageSize,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *ReminderScheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// RunOnce scans every active lease once. Re-running it on the same calendar
// date creates nothing new.
func (s *ReminderScheduler) RunOnce(ctx context.Context) (ReminderRunSummary, error) {
	var summary ReminderRunSummary
	logger := observability.WithContextLogger(s.logger, ctx)
	now := s.now()
	runDate := now.In(s.location).Format(time.DateOnly)

	afterID := ""
	for {
		leases, err := s.leases.ListActive(ctx, afterID, s.pageSize)
		if err != nil {
			return summary, fmt.Errorf("failed to list active leases: %w", err)
		}

		for i := range leases {
			lease := leases[i]
			summary.LeasesScanned++

			daysUntil := DaysUntil(lease.DueDate, now)
			if !domain.IsReminderOffset(daysUntil) {
				continue
			}

			created, err := s.createReminder(ctx, lease, daysUntil, runDate, now)
			switch {
			case err != nil:
				summary.Failed++
				logger.Error("failed to create reminder",
					zap.String("leaseId", lease.ID),
					zap.Int("daysUntil", daysUntil),
					zap.Error(err),
				)
			case created:
				summary.Created++
			default:
				summary.Duplicates++
			}
		}

		if len(leases) < s.pageSize {
			break
		}
		afterID = leases[len(leases)-1].ID
	}

	logger.Info("reminder scheduler pass finished",
		zap.String("runDate", runDate),
		zap.Int("leasesScanned", summary.LeasesScanned),
		zap.Int("created", summary.Created),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (s *ReminderScheduler) createReminder(ctx context.Context, lease domain.Lease, daysUntil int, runDate string, now time.Time) (bool, error) {
	reminderType := domain.ReminderTypeForOffset(daysUntil)
	reminder := &domain.Reminder{
		ID:           s.newID(),
		LeaseID:      lease.ID,
		SubscriberID: lease.SubscriberID,
		TenantID:     lease.TenantID,
		Type:         reminderType,
		Message:      RenderReminderMessage(lease, daysUntil),
		RunDate:      runDate,
		DaysUntil:    daysUntil,
		ScheduledAt:  now.UTC(),
		Status:       domain.ReminderStatusPending,
	}
	if err := reminder.Validate(); err != nil {
		return false, err
	}

	created, err := s.reminders.CreateIfAbsent(ctx, reminder)
	if err != nil {
		return false, err
	}
	if created {
		s.metrics.IncReminderCreated(reminderType.String())
	}
	return created, nil
}
