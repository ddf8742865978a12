package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/observability"
	"github.com/kursadbilgin/reminder-engine/internal/provider"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	EventReminderProcessed   = "reminder.processed"
	EventEscalationTriggered = "escalation.triggered"

	defaultWebhookWorkers    = 2
	defaultWebhookBufferSize = 256
	defaultWebhookTimeout    = 3 * time.Second
)

// EmitResult is what happened to one webhook emission. Delivery itself is
// asynchronous and best-effort.
type EmitResult string

const (
	EmitQueued     EmitResult = "queued"
	EmitDropped    EmitResult = "dropped"
	EmitNoEndpoint EmitResult = "no_endpoint"
)

// WebhookPoster delivers a signed body to an endpoint.
type WebhookPoster interface {
	Post(ctx context.Context, endpoint string, secret string, body []byte) error
}

type webhookEnvelope struct {
	Event        string `json:"event"`
	Payload      any    `json:"payload"`
	SubscriberID string `json:"subscriberId"`
}

type webhookWork struct {
	ctx      context.Context
	event    string
	endpoint domain.WebhookEndpoint
	body     []byte
}

// WebhookEmitter fans events out to subscriber endpoints through a bounded
// buffer drained by a fixed worker pool. A full buffer drops the event, and so
// does an emitter that has begun shutting down.
type WebhookEmitter struct {
	endpoints repository.WebhookEndpointRepository
	poster    WebhookPoster
	logger    *zap.Logger
	metrics   *observability.Metrics
	workers   int
	timeout   time.Duration
	sendCh    chan webhookWork
	wg        sync.WaitGroup

	// mu is held shared while enqueueing and exclusively to set stopping, so no
	// event lands in the buffer after the workers begin their final drain.
	mu       sync.RWMutex
	stopping bool
}

type WebhookEmitterConfig struct {
	Workers    int
	BufferSize int
	Timeout    time.Duration
}

func NewWebhookEmitter(
	endpoints repository.WebhookEndpointRepository,
	poster WebhookPoster,
	cfg WebhookEmitterConfig,
	logger *zap.Logger,
) *WebhookEmitter {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWebhookWorkers
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultWebhookBufferSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultWebhookTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhookEmitter{
		endpoints: endpoints,
		poster:    poster,
		logger:    logger,
		workers:   cfg.Workers,
		timeout:   cfg.Timeout,
		sendCh:    make(chan webhookWork, cfg.BufferSize),
	}
}

func (e *WebhookEmitter) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// Start launches the workers. Cancel ctx and call Close to drain.
func (e *WebhookEmitter) Start(ctx context.Context) {
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx)
	}
	e.logger.Info("webhook emitter started", zap.Int("workers", e.workers))
}

// Close stops accepting events and waits for the workers to drain buffered
// ones. Call after the context passed to Start is cancelled.
func (e *WebhookEmitter) Close() {
	e.stop()
	e.wg.Wait()
}

func (e *WebhookEmitter) stop() {
	e.mu.Lock()
	e.stopping = true
	e.mu.Unlock()
}

// Emit enqueues event for subscriberID's endpoint. It never blocks on the network.
func (e *WebhookEmitter) Emit(ctx context.Context, subscriberID string, event string, payload any) EmitResult {
	logger := observability.WithContextLogger(e.logger, ctx).With(
		zap.String("subscriberId", subscriberID),
		zap.String("event", event),
	)

	endpoint, err := e.endpoints.GetBySubscriber(ctx, subscriberID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.metrics.IncWebhookEmit(event, string(EmitNoEndpoint))
			return EmitNoEndpoint
		}
		logger.Warn("webhook endpoint lookup failed, dropping event", zap.Error(err))
		e.metrics.IncWebhookEmit(event, string(EmitDropped))
		return EmitDropped
	}

	body, err := json.Marshal(webhookEnvelope{Event: event, Payload: payload, SubscriberID: subscriberID})
	if err != nil {
		logger.Error("failed to marshal webhook payload", zap.Error(err))
		e.metrics.IncWebhookEmit(event, string(EmitDropped))
		return EmitDropped
	}

	work := webhookWork{
		ctx:      context.WithoutCancel(ctx),
		event:    event,
		endpoint: *endpoint,
		body:     body,
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopping {
		logger.Warn("webhook emitter stopped, dropping event")
		e.metrics.IncWebhookEmit(event, string(EmitDropped))
		return EmitDropped
	}

	select {
	case e.sendCh <- work:
		e.metrics.IncWebhookEmit(event, string(EmitQueued))
		return EmitQueued
	default:
		logger.Warn("webhook buffer full, dropping event")
		e.metrics.IncWebhookEmit(event, string(EmitDropped))
		return EmitDropped
	}
}

func (e *WebhookEmitter) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			e.stop()
			for {
				select {
				case work := <-e.sendCh:
					e.deliver(work)
				default:
					return
				}
			}
		case work := <-e.sendCh:
			e.deliver(work)
		}
	}
}

func (e *WebhookEmitter) deliver(work webhookWork) {
	ctx, cancel := context.WithTimeout(work.ctx, e.timeout)
	defer cancel()

	if err := e.poster.Post(ctx, work.endpoint.URL, work.endpoint.Secret, work.body); err != nil {
		e.metrics.IncWebhookEmit(work.event, "failed")
		observability.WithContextLogger(e.logger, work.ctx).Warn("webhook delivery failed",
			zap.String("subscriberId", work.endpoint.SubscriberID),
			zap.String("event", work.event),
			zap.String("reason", provider.FailureReason(err)),
			zap.Error(err),
		)
		return
	}
	e.metrics.IncWebhookEmit(work.event, "delivered")
}

// ReminderProcessedPayload is the body of a reminder.processed event.
type ReminderProcessedPayload struct {
	ReminderID string                `json:"reminderId"`
	LeaseID    string                `json:"leaseId"`
	Type       domain.ReminderType   `json:"type"`
	Status     domain.ReminderStatus `json:"status"`
	Attempts   int                   `json:"attempts"`
	Channels   map[string]string     `json:"channels"`
	Reason     string                `json:"reason,omitempty"`
}

// EscalationTriggeredPayload is the body of an escalation.triggered event.
type EscalationTriggeredPayload struct {
	RequestID   string            `json:"requestId"`
	Level       int               `json:"level"`
	Role        string            `json:"role"`
	TriggeredAt time.Time         `json:"triggeredAt"`
	Channels    map[string]string `json:"channels"`
}
