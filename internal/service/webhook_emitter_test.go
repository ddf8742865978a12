package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/provider"
	"go.uber.org/zap"
)

type recordingPoster struct {
	mu     sync.Mutex
	posts  []string
	postFn func(ctx context.Context, endpoint string) error
}

func (p *recordingPoster) Post(ctx context.Context, endpoint string, secret string, body []byte) error {
	p.mu.Lock()
	p.posts = append(p.posts, endpoint)
	p.mu.Unlock()
	if p.postFn != nil {
		return p.postFn(ctx, endpoint)
	}
	return nil
}

func (p *recordingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.posts)
}

func endpointFor(url string) *fakeContactRepo {
	return &fakeContactRepo{
		getBySubscriberFn: func(ctx context.Context, subscriberID string) (*domain.WebhookEndpoint, error) {
			return &domain.WebhookEndpoint{SubscriberID: subscriberID, URL: url, Secret: "s3cret", Enabled: true}, nil
		},
	}
}

func TestWebhookEmitterDeliversSignedEnvelope(t *testing.T) {
	t.Parallel()

	type received struct {
		signature string
		body      []byte
	}
	got := make(chan received, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- received{signature: r.Header.Get(provider.SignatureHeader), body: body}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	emitter := NewWebhookEmitter(endpointFor(server.URL), provider.NewWebhookClient(time.Second), WebhookEmitterConfig{Workers: 1}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	emitter.Start(ctx)
	defer func() {
		cancel()
		emitter.Close()
	}()

	result := emitter.Emit(context.Background(), "sub-1", EventReminderProcessed, ReminderProcessedPayload{
		ReminderID: "rem-1",
		LeaseID:    "lease-1",
		Type:       domain.ReminderTypeRentDue,
		Status:     domain.ReminderStatusSent,
		Attempts:   1,
		Channels:   map[string]string{"EMAIL": "SENT"},
	})
	if result != EmitQueued {
		t.Fatalf("Emit() = %q, want queued", result)
	}

	select {
	case r := <-got:
		if r.signature != provider.Sign("s3cret", r.body) {
			t.Fatalf("signature = %q, want HMAC of body", r.signature)
		}
		var envelope struct {
			Event        string `json:"event"`
			SubscriberID string `json:"subscriberId"`
			Payload      struct {
				ReminderID string `json:"reminderId"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(r.body, &envelope); err != nil {
			t.Fatalf("unmarshal body: %v", err)
		}
		if envelope.Event != EventReminderProcessed || envelope.SubscriberID != "sub-1" || envelope.Payload.ReminderID != "rem-1" {
			t.Fatalf("envelope = %+v", envelope)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestWebhookEmitterNoEndpoint(t *testing.T) {
	t.Parallel()

	poster := &recordingPoster{}
	emitter := NewWebhookEmitter(&fakeContactRepo{}, poster, WebhookEmitterConfig{}, zap.NewNop())

	if got := emitter.Emit(context.Background(), "sub-1", EventEscalationTriggered, nil); got != EmitNoEndpoint {
		t.Fatalf("Emit() = %q, want no_endpoint", got)
	}
}

func TestWebhookEmitterLookupErrorDrops(t *testing.T) {
	t.Parallel()

	repo := &fakeContactRepo{
		getBySubscriberFn: func(ctx context.Context, subscriberID string) (*domain.WebhookEndpoint, error) {
			return nil, errors.New("db down")
		},
	}
	emitter := NewWebhookEmitter(repo, &recordingPoster{}, WebhookEmitterConfig{}, zap.NewNop())

	if got := emitter.Emit(context.Background(), "sub-1", EventReminderProcessed, nil); got != EmitDropped {
		t.Fatalf("Emit() = %q, want dropped", got)
	}
}

func TestWebhookEmitterDropsWhenBufferFull(t *testing.T) {
	t.Parallel()

	poster := &recordingPoster{}
	emitter := NewWebhookEmitter(endpointFor("http://hooks.example.com/in"), poster, WebhookEmitterConfig{Workers: 1, BufferSize: 2}, zap.NewNop())

	// Not started: nothing drains the buffer.
	results := []EmitResult{
		emitter.Emit(context.Background(), "sub-1", EventReminderProcessed, nil),
		emitter.Emit(context.Background(), "sub-1", EventReminderProcessed, nil),
		emitter.Emit(context.Background(), "sub-1", EventReminderProcessed, nil),
	}
	want := []EmitResult{EmitQueued, EmitQueued, EmitDropped}
	for i := range want {
		if results[i] != want[i] {
			t.Fatalf("results = %v, want %v", results, want)
		}
	}
}

func TestWebhookEmitterDrainsOnClose(t *testing.T) {
	t.Parallel()

	poster := &recordingPoster{}
	emitter := NewWebhookEmitter(endpointFor("http://hooks.example.com/in"), poster, WebhookEmitterConfig{Workers: 2, BufferSize: 8}, zap.NewNop())

	for i := 0; i < 5; i++ {
		if got := emitter.Emit(context.Background(), "sub-1", EventReminderProcessed, nil); got != EmitQueued {
			t.Fatalf("Emit() = %q, want queued", got)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	emitter.Start(ctx)
	emitter.Close()

	if poster.count() != 5 {
		t.Fatalf("posts = %d, want all 5 drained", poster.count())
	}
}

func TestWebhookEmitterDeliveryOutlivesCallerContext(t *testing.T) {
	t.Parallel()

	delivered := make(chan error, 1)
	poster := &recordingPoster{
		postFn: func(ctx context.Context, endpoint string) error {
			delivered <- ctx.Err()
			return nil
		},
	}
	emitter := NewWebhookEmitter(endpointFor("http://hooks.example.com/in"), poster, WebhookEmitterConfig{Workers: 1}, zap.NewNop())

	callerCtx, callerCancel := context.WithCancel(context.Background())
	if got := emitter.Emit(callerCtx, "sub-1", EventReminderProcessed, nil); got != EmitQueued {
		t.Fatalf("Emit() = %q, want queued", got)
	}
	callerCancel()

	ctx, cancel := context.WithCancel(context.Background())
	emitter.Start(ctx)
	defer func() {
		cancel()
		emitter.Close()
	}()

	select {
	case err := <-delivered:
		if err != nil {
			t.Fatalf("delivery ctx error = %v, want live context", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestWebhookEmitterDropsAfterClose(t *testing.T) {
	t.Parallel()

	poster := &recordingPoster{}
	emitter := NewWebhookEmitter(endpointFor("http://hooks.example.com/in"), poster, WebhookEmitterConfig{Workers: 2}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	emitter.Start(ctx)
	cancel()
	emitter.Close()

	if got := emitter.Emit(context.Background(), "sub-1", EventReminderProcessed, nil); got != EmitDropped {
		t.Fatalf("Emit() after Close = %q, want dropped", got)
	}
	if poster.count() != 0 {
		t.Fatalf("posts = %d, want none", poster.count())
	}
}

func TestWebhookEmitterDropsOnceWorkersStop(t *testing.T) {
	t.Parallel()

	poster := &recordingPoster{}
	emitter := NewWebhookEmitter(endpointFor("http://hooks.example.com/in"), poster, WebhookEmitterConfig{Workers: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	emitter.Start(ctx)
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if got := emitter.Emit(context.Background(), "sub-1", EventReminderProcessed, nil); got == EmitDropped {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Emit() still queues after the start context was cancelled")
		}
		time.Sleep(5 * time.Millisecond)
	}

	emitter.Close()
	posted := poster.count()
	if got := emitter.Emit(context.Background(), "sub-1", EventReminderProcessed, nil); got != EmitDropped {
		t.Fatalf("Emit() after Close = %q, want dropped", got)
	}
	if poster.count() != posted {
		t.Fatalf("posts = %d after Close, want %d", poster.count(), posted)
	}
}
