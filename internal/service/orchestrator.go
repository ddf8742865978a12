package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/provider"
	"github.com/kursadbilgin/reminder-engine/internal/ratelimit"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

// Emitter is the webhook side of a dispatch cycle.
type Emitter interface {
	Emit(ctx context.Context, subscriberID string, event string, payload any) EmitResult
}

// DispatchOutcome summarizes one dispatch cycle.
type DispatchOutcome struct {
	ReminderID string
	// Skipped is set when the reminder was not claimable: already claimed or terminal.
	Skipped  bool
	Status   domain.ReminderStatus
	Reason   string
	Channels map[domain.Channel]domain.LogStatus
}

// DispatchOrchestrator advances reminders through one dispatch cycle and
// delivers escalation notifications over the same channel adapters.
type DispatchOrchestrator struct {
	reminders    repository.ReminderRepository
	reminderLogs repository.ReminderLogRepository
	leases       repository.LeaseRepository
	gate         *FeatureGate
	adapters     provider.Adapters
	rateLimiter  ratelimit.RateLimiter
	audit        *AuditLogger
	emitter      Emitter
	logger       *zap.Logger
	metrics      *observability.Metrics
	now          func() time.Time
}

func NewDispatchOrchestrator(
	reminders repository.ReminderRepository,
	reminderLogs repository.ReminderLogRepository,
	leases repository.LeaseRepository,
	gate *FeatureGate,
	adapters provider.Adapters,
	rateLimiter ratelimit.RateLimiter,
	audit *AuditLogger,
	emitter Emitter,
	logger *zap.Logger,
) (*DispatchOrchestrator, error) {
	if reminders == nil || reminderLogs == nil || leases == nil {
		return nil, fmt.Errorf("reminder, reminder log and lease repositories are required")
	}
	if gate == nil || audit == nil {
		return nil, fmt.Errorf("feature gate and audit logger are required")
	}
	if rateLimiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DispatchOrchestrator{
		reminders:    reminders,
		reminderLogs: reminderLogs,
		leases:       leases,
		gate:         gate,
		adapters:     adapters,
		rateLimiter:  rateLimiter,
		audit:        audit,
		emitter:      emitter,
		logger:       logger,
		now:          time.Now,
	}, nil
}

func (o *DispatchOrchestrator) SetMetrics(metrics *observability.Metrics) {
	if o == nil {
		return
	}
	o.metrics = metrics
}

// Dispatch runs one scheduled dispatch cycle for reminderID.
func (o *DispatchOrchestrator) Dispatch(ctx context.Context, reminderID string) (*DispatchOutcome, error) {
	return o.dispatch(ctx, reminderID, domain.InitiatorScheduler)
}

// DispatchNow runs a dispatch cycle on operator request. The reminder must be PENDING.
func (o *DispatchOrchestrator) DispatchNow(ctx context.Context, reminderID string, operator string) (*DispatchOutcome, error) {
	outcome, err := o.dispatch(ctx, reminderID, domain.OperatorInitiator(operator))
	if err != nil {
		return nil, err
	}
	if outcome.Skipped {
		return outcome, fmt.Errorf("%w: reminder %s is not pending", domain.ErrConflict, reminderID)
	}
	return outcome, nil
}

func (o *DispatchOrchestrator) dispatch(ctx context.Context, reminderID string, initiator string) (*DispatchOutcome, error) {
	logger := observability.WithContextLogger(o.logger, ctx).With(
		zap.String("reminderId", reminderID),
		zap.String("initiator", initiator),
	)

	reminder, err := o.reminders.Claim(ctx, reminderID, o.now().UTC())
	if err != nil {
		o.metrics.IncDispatchCycle("error")
		return nil, fmt.Errorf("failed to claim reminder: %w", err)
	}
	if reminder == nil {
		logger.Info("reminder not claimable, skipping")
		o.metrics.IncDispatchCycle("skipped")
		return &DispatchOutcome{ReminderID: reminderID, Skipped: true}, nil
	}

	o.metrics.IncDispatchInFlight()
	defer o.metrics.DecDispatchInFlight()

	lease, err := o.leases.GetByID(ctx, reminder.LeaseID)
	if errors.Is(err, domain.ErrNotFound) {
		return o.cancel(ctx, reminder, initiator, "lease no longer exists")
	}
	if err != nil {
		o.release(ctx, logger, reminder.ID)
		return nil, fmt.Errorf("failed to load lease %s: %w", reminder.LeaseID, err)
	}

	decision, err := o.gate.Check(ctx, lease.SubscriberID, lease.PlanID, domain.FeatureRentReminders)
	if err != nil {
		o.release(ctx, logger, reminder.ID)
		return nil, err
	}
	if !decision.Allowed {
		return o.cancel(ctx, reminder, initiator, decision.Reason)
	}

	msg := reminderMessage(reminder)
	channels := make(map[domain.Channel]domain.LogStatus, len(domain.DispatchChannels))
	for _, channel := range domain.DispatchChannels {
		channels[channel] = o.sendReminderChannel(ctx, reminder, lease, channel, msg, initiator)
	}

	sentAt := o.now().UTC()
	if err := o.reminders.Complete(ctx, reminder.ID, sentAt); err != nil {
		o.metrics.IncDispatchCycle("error")
		return nil, fmt.Errorf("failed to complete reminder: %w", err)
	}
	o.metrics.IncDispatchCycle("sent")

	outcome := &DispatchOutcome{
		ReminderID: reminder.ID,
		Status:     domain.ReminderStatusSent,
		Channels:   channels,
	}
	logger.Info("dispatch cycle completed", zap.Any("channels", outcome.Channels))

	if o.emitter != nil {
		_ = o.emitter.Emit(ctx, reminder.SubscriberID, EventReminderProcessed, ReminderProcessedPayload{
			ReminderID: reminder.ID,
			LeaseID:    reminder.LeaseID,
			Type:       reminder.Type,
			Status:     domain.ReminderStatusSent,
			Attempts:   reminder.Attempts + 1,
			Channels:   channelLabels(channels),
		})
	}

	return outcome, nil
}

func (o *DispatchOrchestrator) cancel(ctx context.Context, reminder *domain.Reminder, initiator string, reason string) (*DispatchOutcome, error) {
	_ = o.audit.Reminder(ctx, domain.ReminderLog{
		ReminderID: reminder.ID,
		Status:     domain.LogStatusSkipped,
		Error:      &reason,
		Initiator:  initiator,
	})

	if err := o.reminders.Cancel(ctx, reminder.ID); err != nil {
		o.metrics.IncDispatchCycle("error")
		return nil, fmt.Errorf("failed to cancel reminder: %w", err)
	}
	o.metrics.IncDispatchCycle("cancelled")

	observability.WithContextLogger(o.logger, ctx).Info("reminder cancelled",
		zap.String("reminderId", reminder.ID),
		zap.String("reason", reason),
	)

	return &DispatchOutcome{
		ReminderID: reminder.ID,
		Status:     domain.ReminderStatusCancelled,
		Reason:     reason,
	}, nil
}

func (o *DispatchOrchestrator) release(ctx context.Context, logger *zap.Logger, reminderID string) {
	if err := o.reminders.Release(ctx, reminderID); err != nil {
		logger.Error("failed to release reminder claim", zap.Error(err))
	}
	o.metrics.IncDispatchCycle("error")
}

// sendReminderChannel runs one channel of the fan-out and records every step.
// It never returns an error: each outcome is written to the audit trail.
func (o *DispatchOrchestrator) sendReminderChannel(
	ctx context.Context,
	reminder *domain.Reminder,
	lease *domain.Lease,
	channel domain.Channel,
	msg provider.Message,
	initiator string,
) domain.LogStatus {
	if status, ok := o.precheckChannel(ctx, reminder, lease, channel, initiator); !ok {
		return status
	}

	o.recordChannel(ctx, reminder.ID, channel, initiator, domain.LogStatusQueued, nil, nil)
	return o.deliverChannel(ctx, reminder, lease, channel, msg, initiator)
}

// precheckChannel records SKIPPED or FAILED and returns false when the channel
// must not be sent: it is not eligible, already delivered, or its history is
// unreadable.
func (o *DispatchOrchestrator) precheckChannel(
	ctx context.Context,
	reminder *domain.Reminder,
	lease *domain.Lease,
	channel domain.Channel,
	initiator string,
) (domain.LogStatus, bool) {
	if reason, eligible := o.channelEligible(ctx, lease, channel); !eligible {
		return o.recordChannel(ctx, reminder.ID, channel, initiator, domain.LogStatusSkipped, nil, &reason), false
	}

	delivered, err := o.reminderLogs.HasStatus(ctx, reminder.ID, channel, domain.LogStatusSent)
	if err != nil {
		reason := fmt.Sprintf("could not verify prior delivery: %v", err)
		return o.recordChannel(ctx, reminder.ID, channel, initiator, domain.LogStatusFailed, nil, &reason), false
	}
	if delivered {
		reason := "already delivered"
		return o.recordChannel(ctx, reminder.ID, channel, initiator, domain.LogStatusSkipped, nil, &reason), false
	}
	return "", true
}

// deliverChannel sends over a channel whose QUEUED row is already written and
// records SENT or FAILED.
func (o *DispatchOrchestrator) deliverChannel(
	ctx context.Context,
	reminder *domain.Reminder,
	lease *domain.Lease,
	channel domain.Channel,
	msg provider.Message,
	initiator string,
) domain.LogStatus {
	result := o.send(ctx, channel, lease.Tenant.Address(channel), msg)
	detail := result.Detail()
	if result.IsOk() {
		return o.recordChannel(ctx, reminder.ID, channel, initiator, domain.LogStatusSent, &detail, nil)
	}
	return o.recordChannel(ctx, reminder.ID, channel, initiator, domain.LogStatusFailed, nil, &detail)
}

func (o *DispatchOrchestrator) recordChannel(
	ctx context.Context,
	reminderID string,
	channel domain.Channel,
	initiator string,
	status domain.LogStatus,
	response *string,
	errText *string,
) domain.LogStatus {
	_ = o.audit.Reminder(ctx, domain.ReminderLog{
		ReminderID: reminderID,
		Channel:    channel,
		Status:     status,
		Response:   response,
		Error:      errText,
		Initiator:  initiator,
	})
	o.metrics.IncChannelAttempt(channel.String(), status.String())
	return status
}

// channelEligible checks the channel feature gate and the recipient address.
func (o *DispatchOrchestrator) channelEligible(ctx context.Context, lease *domain.Lease, channel domain.Channel) (string, bool) {
	decision, err := o.gate.Check(ctx, lease.SubscriberID, lease.PlanID, channel.Feature())
	if err != nil {
		return fmt.Sprintf("channel gate unavailable: %v", err), false
	}
	if !decision.Allowed {
		return decision.Reason, false
	}
	if lease.Tenant.Address(channel) == "" {
		return fmt.Sprintf("no %s contact for tenant", channel.String()), false
	}
	return "", true
}

func (o *DispatchOrchestrator) send(ctx context.Context, channel domain.Channel, address string, msg provider.Message) domain.SendResult {
	if err := o.rateLimiter.Wait(ctx, channel.String()); err != nil {
		return domain.SendErr(fmt.Sprintf("rate limiter wait failed: %v", err))
	}

	start := o.now()
	result := o.adapters.Send(ctx, channel, address, msg)
	o.metrics.ObserveChannelSendDuration(channel.String(), o.now().Sub(start))
	return result
}

// RetryChannel re-attempts one channel whose latest log is FAILED. It appends
// to the audit trail only; the Reminder row is left untouched. The QUEUED row
// is written only if the FAILED row is still the newest, so of two concurrent
// retries one sends and the other gets ErrConflict.
func (o *DispatchOrchestrator) RetryChannel(ctx context.Context, reminderID string, channel domain.Channel, operator string) (domain.LogStatus, error) {
	if !channel.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}

	reminder, err := o.reminders.GetByID(ctx, reminderID)
	if err != nil {
		return "", err
	}

	latest, err := o.reminderLogs.LatestForChannel(ctx, reminder.ID, channel)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: %s was never attempted for reminder %s", domain.ErrConflict, channel, reminder.ID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load latest channel log: %w", err)
	}
	if latest.Status != domain.LogStatusFailed {
		return "", fmt.Errorf("%w: latest %s log is %s, not FAILED", domain.ErrConflict, channel, latest.Status)
	}

	lease, err := o.leases.GetByID(ctx, reminder.LeaseID)
	if err != nil {
		return "", fmt.Errorf("failed to load lease %s: %w", reminder.LeaseID, err)
	}

	initiator := domain.OperatorInitiator(operator)
	if status, ok := o.precheckChannel(ctx, reminder, lease, channel, initiator); !ok {
		return status, nil
	}

	queued, err := o.audit.ReminderAfter(ctx, domain.ReminderLog{
		ReminderID: reminder.ID,
		Channel:    channel,
		Status:     domain.LogStatusQueued,
		Initiator:  initiator,
	}, latest.Seq)
	if err != nil {
		return "", fmt.Errorf("failed to queue channel retry: %w", err)
	}
	if !queued {
		return "", fmt.Errorf("%w: %s retry for reminder %s is already in progress", domain.ErrConflict, channel, reminder.ID)
	}
	o.metrics.IncChannelAttempt(channel.String(), domain.LogStatusQueued.String())

	status := o.deliverChannel(ctx, reminder, lease, channel, reminderMessage(reminder), initiator)
	observability.WithContextLogger(o.logger, ctx).Info("manual channel retry finished",
		zap.String("reminderId", reminder.ID),
		zap.String("channel", channel.String()),
		zap.String("operator", operator),
		zap.String("status", status.String()),
	)
	return status, nil
}

// EscalationDelivery is one fired level and the role contacts to notify.
type EscalationDelivery struct {
	Event    domain.EscalationEvent
	Request  *domain.SupportRequest
	Contacts []domain.RoleContact
	Message  provider.Message
}

// DeliverEscalation notifies every contact of the fired role on each channel
// they have an address for. Outcomes go to the escalation trail.
func (o *DispatchOrchestrator) DeliverEscalation(ctx context.Context, delivery EscalationDelivery) map[domain.Channel]domain.LogStatus {
	results := make(map[domain.Channel]domain.LogStatus, len(domain.DispatchChannels))
	request := delivery.Request

	record := func(channel domain.Channel, recipient string, status domain.LogStatus, detail *string) {
		_ = o.audit.Escalation(ctx, domain.EscalationLog{
			EventID:   delivery.Event.ID,
			RequestID: request.ID,
			Level:     delivery.Event.Level,
			Role:      delivery.Event.Role,
			Channel:   channel,
			Recipient: recipient,
			Status:    status,
			Detail:    detail,
			Initiator: domain.InitiatorResolver,
		})
		o.metrics.IncChannelAttempt(channel.String(), status.String())
		if prev, ok := results[channel]; !ok || prev != domain.LogStatusSent {
			results[channel] = status
		}
	}

	if len(delivery.Contacts) == 0 {
		reason := fmt.Sprintf("no contacts configured for role %s", delivery.Event.Role)
		_ = o.audit.Escalation(ctx, domain.EscalationLog{
			EventID:   delivery.Event.ID,
			RequestID: request.ID,
			Level:     delivery.Event.Level,
			Role:      delivery.Event.Role,
			Status:    domain.LogStatusSkipped,
			Detail:    &reason,
			Initiator: domain.InitiatorResolver,
		})
		return results
	}

	for _, channel := range domain.DispatchChannels {
		decision, err := o.gate.Check(ctx, request.SubscriberID, request.PlanID, channel.Feature())
		if err != nil || !decision.Allowed {
			reason := decision.Reason
			if err != nil {
				reason = fmt.Sprintf("channel gate unavailable: %v", err)
			}
			record(channel, "", domain.LogStatusSkipped, &reason)
			continue
		}

		for _, contact := range delivery.Contacts {
			address := contact.Contact.Address(channel)
			if address == "" {
				reason := fmt.Sprintf("no %s contact for %s", channel.String(), contact.Role)
				record(channel, contact.ID, domain.LogStatusSkipped, &reason)
				continue
			}

			record(channel, address, domain.LogStatusQueued, nil)
			result := o.send(ctx, channel, address, delivery.Message)
			detail := result.Detail()
			if result.IsOk() {
				record(channel, address, domain.LogStatusSent, &detail)
			} else {
				record(channel, address, domain.LogStatusFailed, &detail)
			}
		}
	}

	return results
}

func channelLabels(channels map[domain.Channel]domain.LogStatus) map[string]string {
	labels := make(map[string]string, len(channels))
	for channel, status := range channels {
		labels[channel.String()] = status.String()
	}
	return labels
}
