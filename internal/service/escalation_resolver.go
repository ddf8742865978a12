package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

const defaultRequestPageSize = 200

// EscalationRunSummary counts what one resolver pass did.
type EscalationRunSummary struct {
	RequestsScanned int `json:"requestsScanned"`
	LevelsFired     int `json:"levelsFired"`
	Failed          int `json:"failed"`
}

// EscalationDeliverer notifies the contacts of a fired level.
type EscalationDeliverer interface {
	DeliverEscalation(ctx context.Context, delivery EscalationDelivery) map[domain.Channel]domain.LogStatus
}

// EscalationResolver fires escalation levels for open requests past their deadline.
type EscalationResolver struct {
	requests  repository.RequestRepository
	config    repository.EscalationConfigRepository
	events    repository.EscalationEventRepository
	contacts  repository.RoleContactRepository
	gate      *FeatureGate
	deliverer EscalationDeliverer
	emitter   Emitter
	logger    *zap.Logger
	metrics   *observability.Metrics
	pageSize  int
	now       func() time.Time
	newID     func() string
}

func NewEscalationResolver(
	requests repository.RequestRepository,
	config repository.EscalationConfigRepository,
	events repository.EscalationEventRepository,
	contacts repository.RoleContactRepository,
	gate *FeatureGate,
	deliverer EscalationDeliverer,
	emitter Emitter,
	logger *zap.Logger,
) *EscalationResolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EscalationResolver{
		requests:  requests,
		config:    config,
		events:    events,
		contacts:  contacts,
		gate:      gate,
		deliverer: deliverer,
		emitter:   emitter,
		logger:    logger,
		pageSize:  defaultRequestPageSize,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (r *EscalationResolver) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// RunOnce evaluates every open request at the current time.
func (r *EscalationResolver) RunOnce(ctx context.Context) (EscalationRunSummary, error) {
	var summary EscalationRunSummary
	logger := observability.WithContextLogger(r.logger, ctx)
	now := r.now().UTC()

	afterID := ""
	for {
		requests, err := r.requests.ListOpen(ctx, afterID, r.pageSize)
		if err != nil {
			return summary, fmt.Errorf("failed to list open requests: %w", err)
		}

		for i := range requests {
			request := requests[i]
			summary.RequestsScanned++

			fired, err := r.Resolve(ctx, &request, now)
			summary.LevelsFired += len(fired)
			if err != nil {
				summary.Failed++
				logger.Error("failed to resolve escalation",
					zap.String("requestId", request.ID),
					zap.Error(err),
				)
			}
		}

		if len(requests) < r.pageSize {
			break
		}
		afterID = requests[len(requests)-1].ID
	}

	logger.Info("escalation resolver pass finished",
		zap.Int("requestsScanned", summary.RequestsScanned),
		zap.Int("levelsFired", summary.LevelsFired),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// Resolve fires every level of the resolved matrix whose threshold has been
// crossed at t and that has not fired before. Levels are independent: a
// higher level may fire before a lower one.
func (r *EscalationResolver) Resolve(ctx context.Context, request *domain.SupportRequest, t time.Time) ([]domain.EscalationEvent, error) {
	logger := observability.WithContextLogger(r.logger, ctx).With(zap.String("requestId", request.ID))

	deadline, err := r.deadline(ctx, request)
	if err != nil {
		return nil, err
	}
	if deadline == nil {
		logger.Debug("no deadline and no matching policy, skipping")
		return nil, nil
	}

	hoursLate := t.Sub(*deadline).Hours()
	if hoursLate < 0 {
		return nil, nil
	}

	matrix, level, err := r.resolveMatrix(ctx, request.Scope())
	if err != nil {
		return nil, err
	}
	if len(matrix) == 0 {
		return nil, nil
	}

	gated := false
	var fired []domain.EscalationEvent
	for _, entry := range matrix {
		if hoursLate < entry.HoursAfterDeadline {
			continue
		}

		if !gated {
			decision, err := r.gate.Check(ctx, request.SubscriberID, request.PlanID, domain.FeatureEscalations)
			if err != nil {
				return fired, err
			}
			if !decision.Allowed {
				logger.Info("escalations disabled for subscriber", zap.String("reason", decision.Reason))
				return fired, nil
			}
			gated = true
		}

		event := domain.EscalationEvent{
			ID:          r.newID(),
			RequestID:   request.ID,
			Level:       entry.Level,
			Role:        entry.Role,
			TriggeredAt: t,
		}
		created, err := r.events.InsertIfAbsent(ctx, &event)
		if err != nil {
			return fired, fmt.Errorf("failed to insert escalation event level %d: %w", entry.Level, err)
		}
		if !created {
			continue
		}

		fired = append(fired, event)
		r.metrics.IncEscalationTriggered(entry.Level)
		logger.Info("escalation level fired",
			zap.Int("level", entry.Level),
			zap.String("role", entry.Role),
			zap.String("scope", string(level)),
			zap.Float64("hoursLate", hoursLate),
		)

		r.notify(ctx, logger, request, entry, event, hoursLate)
	}

	return fired, nil
}

func (r *EscalationResolver) notify(
	ctx context.Context,
	logger *zap.Logger,
	request *domain.SupportRequest,
	entry domain.EscalationMatrixEntry,
	event domain.EscalationEvent,
	hoursLate float64,
) {
	contacts, err := r.contacts.ListForRole(ctx, request.SubscriberID, request.PropertyID, entry.Role)
	if err != nil {
		logger.Error("failed to load role contacts", zap.String("role", entry.Role), zap.Error(err))
	}

	channels := r.deliverer.DeliverEscalation(ctx, EscalationDelivery{
		Event:    event,
		Request:  request,
		Contacts: contacts,
		Message:  escalationMessage(request, entry, hoursLate),
	})

	if r.emitter != nil {
		_ = r.emitter.Emit(ctx, request.SubscriberID, EventEscalationTriggered, EscalationTriggeredPayload{
			RequestID:   request.ID,
			Level:       event.Level,
			Role:        event.Role,
			TriggeredAt: event.TriggeredAt,
			Channels:    channelLabels(channels),
		})
	}
}

// deadline returns the explicit deadline, or createdAt plus the category
// policy's hours. nil means neither exists.
func (r *EscalationResolver) deadline(ctx context.Context, request *domain.SupportRequest) (*time.Time, error) {
	if request.Deadline != nil {
		return request.Deadline, nil
	}

	for _, level := range domain.ScopePrecedence {
		policy, err := r.config.FindPolicy(ctx, request.Category, request.Scope(), level)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find %s policy: %w", level, err)
		}

		deadline := request.CreatedAt.Add(time.Duration(policy.HoursToDeadline * float64(time.Hour)))
		return &deadline, nil
	}
	return nil, nil
}

// resolveMatrix picks the most specific non-empty tier. Tiers are never merged.
func (r *EscalationResolver) resolveMatrix(ctx context.Context, scope domain.Scope) ([]domain.EscalationMatrixEntry, domain.ScopeLevel, error) {
	for _, level := range domain.ScopePrecedence {
		entries, err := r.config.ListMatrix(ctx, scope, level)
		if err != nil {
			return nil, "", fmt.Errorf("failed to list %s escalation matrix: %w", level, err)
		}
		if len(entries) > 0 {
			return entries, level, nil
		}
	}
	return nil, "", nil
}
