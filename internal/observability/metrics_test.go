package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDispatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncReminderCreated("rent_due")
	metrics.IncDispatchCycle("SENT")
	metrics.IncChannelAttempt("SMS", "FAILED")
	metrics.ObserveChannelSendDuration("sms", 120*time.Millisecond)
	metrics.IncDispatchInFlight()
	metrics.DecDispatchInFlight()
	metrics.IncEscalationTriggered(2)
	metrics.IncWebhookEmit("reminder.processed", "dropped")
	metrics.IncAuditWriteFailure("reminder")

	if got := testutil.ToFloat64(metrics.remindersCreatedTotal.WithLabelValues("rent_due")); got != 1 {
		t.Fatalf("reminders_created_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.dispatchCyclesTotal.WithLabelValues("sent")); got != 1 {
		t.Fatalf("dispatch_cycles_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.channelAttemptsTotal.WithLabelValues("sms", "failed")); got != 1 {
		t.Fatalf("channel_attempts_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.escalationsTriggered.WithLabelValues("2")); got != 1 {
		t.Fatalf("escalations_triggered_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.webhookEmitsTotal.WithLabelValues("reminder.processed", "dropped")); got != 1 {
		t.Fatalf("webhook_emits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.auditWriteFailures.WithLabelValues("reminder")); got != 1 {
		t.Fatalf("audit_write_failures_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.dispatchInflight); got != 0 {
		t.Fatalf("dispatch_inflight = %v, want 0", got)
	}
}

func TestMetricsNilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncReminderCreated("overdue")
	metrics.IncChannelAttempt("email", "sent")
	metrics.IncAuditWriteFailure("escalation")
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
