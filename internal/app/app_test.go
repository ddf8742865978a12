package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/kursadbilgin/reminder-engine/internal/config"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"github.com/kursadbilgin/reminder-engine/internal/service"
	"go.uber.org/zap/zaptest"
)

func sqliteConfig() *config.Config {
	return &config.Config{
		DatabaseDriver:          "sqlite",
		DatabaseDSN:             fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		ProviderTimeoutMS:       100,
		WebhookTimeoutMS:        100,
		WebhookWorkers:          1,
		WebhookBufferSize:       4,
		DispatchScanIntervalSec: 1,
		DispatchScanLimit:       10,
		ClaimTTLSec:             60,
		Timezone:                "UTC",
		RateLimitPerSec:         10,
	}
}

func TestNewRequiresConfig(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewWiresLocalStack(t *testing.T) {
	t.Parallel()

	a, err := New(sqliteConfig(), zaptest.NewLogger(t), Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(a.Close)

	if a.Redis != nil {
		t.Fatal("Redis should be nil without REDIS_URL")
	}
	if a.Rabbit != nil || a.Scanner != nil {
		t.Fatal("queue components should be nil without Options.Queue")
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	a.StartEmitter(ctx)

	reminders, err := a.Jobs.RunReminders(ctx)
	if err != nil {
		t.Fatalf("RunReminders() error = %v", err)
	}
	if reminders.LeasesScanned != 0 || reminders.Created != 0 {
		t.Fatalf("reminders summary = %+v, want empty", reminders)
	}

	escalations, err := a.Jobs.RunEscalations(ctx)
	if err != nil {
		t.Fatalf("RunEscalations() error = %v", err)
	}
	if escalations.RequestsScanned != 0 {
		t.Fatalf("escalations summary = %+v, want empty", escalations)
	}

	if _, err := a.Jobs.RunDispatch(ctx); err == nil {
		t.Fatal("RunDispatch() should fail without a queue")
	}
}

func TestNewRejectsBadChannelLimits(t *testing.T) {
	t.Parallel()

	cfg := sqliteConfig()
	cfg.RateLimitChannels = "sms=often"

	if _, err := New(cfg, zaptest.NewLogger(t), Options{}); err == nil {
		t.Fatal("expected error for malformed RATE_LIMIT_CHANNELS")
	}
}

func TestEmitterOutlivesStartContextUntilClose(t *testing.T) {
	t.Parallel()

	var posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	a, err := New(sqliteConfig(), zaptest.NewLogger(t), Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	endpoint := repository.WebhookEndpointModel{SubscriberID: "sub-1", URL: server.URL, Secret: "s3cret", Enabled: true}
	if err := a.DB.Create(&endpoint).Error; err != nil {
		t.Fatalf("seed endpoint: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.StartEmitter(ctx)
	cancel()

	if got := a.Emitter.Emit(context.Background(), "sub-1", service.EventReminderProcessed, nil); got != service.EmitQueued {
		t.Fatalf("Emit() after signal = %q, want queued", got)
	}

	a.Close()
	if got := posts.Load(); got != 1 {
		t.Fatalf("posts = %d, want the queued event drained by Close", got)
	}
	if got := a.Emitter.Emit(context.Background(), "sub-1", service.EventReminderProcessed, nil); got != service.EmitDropped {
		t.Fatalf("Emit() after Close = %q, want dropped", got)
	}
}
