package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API, worker and CLI flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	remindersCreatedTotal *prometheus.CounterVec
	dispatchCyclesTotal   *prometheus.CounterVec
	channelAttemptsTotal  *prometheus.CounterVec
	channelSendDuration   *prometheus.HistogramVec
	escalationsTriggered  *prometheus.CounterVec
	webhookEmitsTotal     *prometheus.CounterVec
	auditWriteFailures    *prometheus.CounterVec
	dispatchInflight      prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reminder_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		remindersCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "reminders_created_total",
				Help:      "Total number of reminders created by the scheduler grouped by type.",
			},
			[]string{"type"},
		),
		dispatchCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "dispatch_cycles_total",
				Help:      "Total number of dispatch cycles grouped by outcome.",
			},
			[]string{"outcome"},
		),
		channelAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "channel_attempts_total",
				Help:      "Total number of channel outcomes grouped by channel and status.",
			},
			[]string{"channel", "status"},
		),
		channelSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reminder_engine",
				Name:      "channel_send_duration_seconds",
				Help:      "Provider send duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		escalationsTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "escalations_triggered_total",
				Help:      "Total number of escalation levels fired grouped by level.",
			},
			[]string{"level"},
		),
		webhookEmitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "webhook_emits_total",
				Help:      "Total number of webhook emissions grouped by event and result.",
			},
			[]string{"event", "result"},
		),
		auditWriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "audit_write_failures_total",
				Help:      "Total number of audit rows that could not be written.",
			},
			[]string{"trail"},
		),
		dispatchInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "reminder_engine",
				Name:      "dispatch_inflight",
				Help:      "Current number of in-flight dispatch cycles.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.remindersCreatedTotal,
		m.dispatchCyclesTotal,
		m.channelAttemptsTotal,
		m.channelSendDuration,
		m.escalationsTriggered,
		m.webhookEmitsTotal,
		m.auditWriteFailures,
		m.dispatchInflight,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncReminderCreated(reminderType string) {
	if m == nil {
		return
	}
	m.remindersCreatedTotal.WithLabelValues(normalizeLabel(reminderType)).Inc()
}

// IncDispatchCycle counts a finished dispatch cycle: sent, cancelled, skipped or error.
func (m *Metrics) IncDispatchCycle(outcome string) {
	if m == nil {
		return
	}
	m.dispatchCyclesTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncChannelAttempt(channel string, status string) {
	if m == nil {
		return
	}
	m.channelAttemptsTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(status)).Inc()
}

func (m *Metrics) ObserveChannelSendDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.channelSendDuration.WithLabelValues(normalizeLabel(channel)).Observe(seconds)
}

func (m *Metrics) IncEscalationTriggered(level int) {
	if m == nil {
		return
	}
	m.escalationsTriggered.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (m *Metrics) IncWebhookEmit(event string, result string) {
	if m == nil {
		return
	}
	m.webhookEmitsTotal.WithLabelValues(normalizeLabel(event), normalizeLabel(result)).Inc()
}

func (m *Metrics) IncAuditWriteFailure(trail string) {
	if m == nil {
		return
	}
	m.auditWriteFailures.WithLabelValues(normalizeLabel(trail)).Inc()
}

func (m *Metrics) IncDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Inc()
}

func (m *Metrics) DecDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
