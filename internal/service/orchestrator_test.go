package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/provider"
	"go.uber.org/zap"
)

// dispatchHarness wires an orchestrator to in-memory state for one reminder.
type dispatchHarness struct {
	mu            sync.Mutex
	reminder      domain.Reminder
	completeCalls int
	releaseCalls  int

	reminders *fakeReminderRepo
	logs      *memReminderLogs
	leases    *fakeLeaseRepo
	features  *fakeFeatureRepo
	channels  *fakeChannels
	emitter   *fakeEmitter
}

func newDispatchHarness(t *testing.T, lease domain.Lease) (*DispatchOrchestrator, *dispatchHarness) {
	t.Helper()

	h := &dispatchHarness{
		reminder: domain.Reminder{
			ID:           "r1",
			LeaseID:      lease.ID,
			SubscriberID: lease.SubscriberID,
			Type:         domain.ReminderTypeRentDue,
			Message:      "Hi Ada, your rent is due in 3 days.",
			RunDate:      "2026-03-01",
			DaysUntil:    3,
			Status:       domain.ReminderStatusPending,
		},
		logs:     &memReminderLogs{},
		features: &fakeFeatureRepo{},
		channels: &fakeChannels{},
		emitter:  &fakeEmitter{},
	}

	h.reminders = &fakeReminderRepo{
		claimFn: func(ctx context.Context, id string, now time.Time) (*domain.Reminder, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if id != h.reminder.ID {
				return nil, domain.ErrNotFound
			}
			if h.reminder.Status != domain.ReminderStatusPending {
				return nil, nil
			}
			h.reminder.Status = domain.ReminderStatusInProgress
			h.reminder.ClaimedAt = &now
			claimed := h.reminder
			return &claimed, nil
		},
		getByIDFn: func(ctx context.Context, id string) (*domain.Reminder, error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			if id != h.reminder.ID {
				return nil, domain.ErrNotFound
			}
			r := h.reminder
			return &r, nil
		},
		completeFn: func(ctx context.Context, id string, sentAt time.Time) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.completeCalls++
			h.reminder.Status = domain.ReminderStatusSent
			h.reminder.SentAt = &sentAt
			h.reminder.Attempts++
			return nil
		},
		cancelFn: func(ctx context.Context, id string) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.reminder.Status = domain.ReminderStatusCancelled
			return nil
		},
		releaseFn: func(ctx context.Context, id string) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.releaseCalls++
			h.reminder.Status = domain.ReminderStatusPending
			return nil
		},
	}
	h.leases = &fakeLeaseRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Lease, error) {
			l := lease
			return &l, nil
		},
	}

	audit := NewAuditLogger(h.logs, newMemEscalationRepo(), zap.NewNop())
	orchestrator, err := NewDispatchOrchestrator(
		h.reminders,
		h.logs,
		h.leases,
		NewFeatureGate(h.features, zap.NewNop()),
		provider.Adapters{Email: h.channels, SMS: h.channels, InApp: h.channels},
		&fakeRateLimiter{},
		audit,
		h.emitter,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewDispatchOrchestrator() error = %v", err)
	}
	orchestrator.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }

	return orchestrator, h
}

func (h *dispatchHarness) state() domain.Reminder {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.reminder
}

func fullContactLease() domain.Lease {
	return domain.Lease{
		ID:           "lease-1",
		SubscriberID: "sub-1",
		PlanID:       "plan-basic",
		TenantID:     "tenant-1",
		Tenant: domain.Contact{
			Name:      "Ada",
			Email:     "ada@example.com",
			Phone:     "+905551112233",
			InAppUser: "user-ada",
		},
		RentAmount: 125000,
		Currency:   "TRY",
		DueDate:    time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
		Active:     true,
	}
}

func assertStatuses(t *testing.T, logs *memReminderLogs, want map[domain.Channel][]domain.LogStatus) {
	t.Helper()

	got := logs.statuses()
	if len(got) != len(want) {
		t.Fatalf("log channels = %v, want %v", got, want)
	}
	for channel, wantStatuses := range want {
		gotStatuses := got[channel]
		if len(gotStatuses) != len(wantStatuses) {
			t.Fatalf("%q statuses = %v, want %v", channel, gotStatuses, wantStatuses)
		}
		for i := range wantStatuses {
			if gotStatuses[i] != wantStatuses[i] {
				t.Fatalf("%q statuses = %v, want %v", channel, gotStatuses, wantStatuses)
			}
		}
	}
}

func TestDispatchGateDeniedCancelsWithoutSending(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	h.features.inputsFn = func(ctx context.Context, subscriberID, planID string, feature domain.Feature) (domain.FeatureInputs, error) {
		return domain.FeatureInputs{Feature: feature, PlanDefault: true, Override: domain.OverrideForceOff}, nil
	}

	outcome, err := orchestrator.Dispatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome.Status != domain.ReminderStatusCancelled {
		t.Fatalf("outcome status = %s, want CANCELLED", outcome.Status)
	}

	state := h.state()
	if state.Status != domain.ReminderStatusCancelled {
		t.Fatalf("reminder status = %s, want CANCELLED", state.Status)
	}
	if state.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", state.Attempts)
	}
	if h.channels.total() != 0 {
		t.Fatalf("channel sends = %d, want 0", h.channels.total())
	}

	rows, _ := h.logs.ListByReminderID(context.Background(), "r1")
	if len(rows) != 1 || rows[0].Status != domain.LogStatusSkipped {
		t.Fatalf("logs = %+v, want exactly one SKIPPED row", rows)
	}
	if rows[0].Error == nil || !strings.Contains(*rows[0].Error, "forced off") {
		t.Fatalf("skip reason = %v, want admin override reason", rows[0].Error)
	}
	if len(h.emitter.events) != 0 {
		t.Fatalf("webhook events = %d, want 0", len(h.emitter.events))
	}
}

func TestDispatchPartialFailureStillCompletes(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	h.channels.sendFn = func(channel domain.Channel, address string) domain.SendResult {
		if channel == domain.ChannelSMS {
			return domain.SendErr("provider returned status 503")
		}
		return domain.SendOk("ok-" + channel.String())
	}

	outcome, err := orchestrator.Dispatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	assertStatuses(t, h.logs, map[domain.Channel][]domain.LogStatus{
		domain.ChannelEmail: {domain.LogStatusQueued, domain.LogStatusSent},
		domain.ChannelSMS:   {domain.LogStatusQueued, domain.LogStatusFailed},
		domain.ChannelInApp: {domain.LogStatusQueued, domain.LogStatusSent},
	})

	if outcome.Channels[domain.ChannelSMS] != domain.LogStatusFailed {
		t.Fatalf("outcome sms = %s, want FAILED", outcome.Channels[domain.ChannelSMS])
	}
	state := h.state()
	if state.Status != domain.ReminderStatusSent {
		t.Fatalf("status = %s, want SENT", state.Status)
	}
	if state.Attempts != 1 || h.completeCalls != 1 {
		t.Fatalf("attempts = %d completeCalls = %d, want 1 and 1", state.Attempts, h.completeCalls)
	}

	latest, err := h.logs.LatestForChannel(context.Background(), "r1", domain.ChannelSMS)
	if err != nil {
		t.Fatalf("LatestForChannel() error = %v", err)
	}
	if latest.Error == nil || *latest.Error != "provider returned status 503" {
		t.Fatalf("sms error = %v, want provider message", latest.Error)
	}

	if len(h.emitter.events) != 1 || h.emitter.events[0].event != EventReminderProcessed {
		t.Fatalf("webhook events = %+v, want one reminder.processed", h.emitter.events)
	}
}

func TestDispatchSkipsDisabledAndMissingChannels(t *testing.T) {
	t.Parallel()

	lease := fullContactLease()
	lease.Tenant.InAppUser = ""

	orchestrator, h := newDispatchHarness(t, lease)
	h.features.inputsFn = func(ctx context.Context, subscriberID, planID string, feature domain.Feature) (domain.FeatureInputs, error) {
		inputs := domain.FeatureInputs{Feature: feature, PlanDefault: true}
		if feature == domain.FeatureSMSChannel {
			inputs.SubscriberOptIn = boolPtr(false)
		}
		return inputs, nil
	}

	if _, err := orchestrator.Dispatch(context.Background(), "r1"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	assertStatuses(t, h.logs, map[domain.Channel][]domain.LogStatus{
		domain.ChannelEmail: {domain.LogStatusQueued, domain.LogStatusSent},
		domain.ChannelSMS:   {domain.LogStatusSkipped},
		domain.ChannelInApp: {domain.LogStatusSkipped},
	})

	state := h.state()
	if state.Status != domain.ReminderStatusSent || state.Attempts != 1 {
		t.Fatalf("reminder = %s/%d, want SENT/1", state.Status, state.Attempts)
	}
	if h.channels.count(domain.ChannelSMS) != 0 || h.channels.count(domain.ChannelInApp) != 0 {
		t.Fatal("skipped channels must not be sent")
	}
}

func TestDispatchDoesNotResendDeliveredChannel(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	_ = h.logs.Append(context.Background(), &domain.ReminderLog{
		ID:         "prior",
		ReminderID: "r1",
		Channel:    domain.ChannelEmail,
		Status:     domain.LogStatusSent,
	})

	if _, err := orchestrator.Dispatch(context.Background(), "r1"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if got := h.channels.count(domain.ChannelEmail); got != 0 {
		t.Fatalf("email sends = %d, want 0", got)
	}
	latest, _ := h.logs.LatestForChannel(context.Background(), "r1", domain.ChannelEmail)
	if latest.Status != domain.LogStatusSkipped || latest.Error == nil || *latest.Error != "already delivered" {
		t.Fatalf("latest email log = %+v, want SKIPPED already delivered", latest)
	}
}

func TestDispatchUnclaimableReminderIsSkipped(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	h.reminder.Status = domain.ReminderStatusSent

	outcome, err := orchestrator.Dispatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !outcome.Skipped {
		t.Fatal("terminal reminder should be skipped")
	}
	if rows, _ := h.logs.ListByReminderID(context.Background(), "r1"); len(rows) != 0 {
		t.Fatalf("logs = %d, want 0", len(rows))
	}
	if h.channels.total() != 0 {
		t.Fatal("terminal reminder must not be redispatched")
	}

	if _, err := orchestrator.DispatchNow(context.Background(), "r1", "alice"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("DispatchNow() error = %v, want ErrConflict", err)
	}
}

func TestDispatchConcurrentCyclesSendOnce(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = orchestrator.Dispatch(context.Background(), "r1")
		}()
	}
	wg.Wait()

	if got := h.channels.total(); got != 3 {
		t.Fatalf("channel sends = %d, want 3", got)
	}
	if h.completeCalls != 1 {
		t.Fatalf("completeCalls = %d, want 1", h.completeCalls)
	}
}

func TestDispatchGateErrorReleasesClaim(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	h.features.inputsFn = func(ctx context.Context, subscriberID, planID string, feature domain.Feature) (domain.FeatureInputs, error) {
		return domain.FeatureInputs{}, errors.New("db down")
	}

	if _, err := orchestrator.Dispatch(context.Background(), "r1"); err == nil {
		t.Fatal("expected error")
	}
	if h.releaseCalls != 1 {
		t.Fatalf("releaseCalls = %d, want 1", h.releaseCalls)
	}
	if state := h.state(); state.Status != domain.ReminderStatusPending {
		t.Fatalf("status = %s, want PENDING", state.Status)
	}
}

func TestDispatchMissingLeaseCancels(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	h.leases.getByIDFn = func(ctx context.Context, id string) (*domain.Lease, error) {
		return nil, domain.ErrNotFound
	}

	outcome, err := orchestrator.Dispatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome.Status != domain.ReminderStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", outcome.Status)
	}
}

func TestRetryChannelAppendsOperatorLogs(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	failSMS := true
	h.channels.sendFn = func(channel domain.Channel, address string) domain.SendResult {
		if channel == domain.ChannelSMS && failSMS {
			return domain.SendErr("timeout")
		}
		return domain.SendOk("ok")
	}

	if _, err := orchestrator.Dispatch(context.Background(), "r1"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if _, err := orchestrator.RetryChannel(context.Background(), "r1", domain.ChannelEmail, "alice"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("RetryChannel(email) error = %v, want ErrConflict", err)
	}

	failSMS = false
	status, err := orchestrator.RetryChannel(context.Background(), "r1", domain.ChannelSMS, "alice")
	if err != nil {
		t.Fatalf("RetryChannel(sms) error = %v", err)
	}
	if status != domain.LogStatusSent {
		t.Fatalf("status = %s, want SENT", status)
	}

	assertStatuses(t, h.logs, map[domain.Channel][]domain.LogStatus{
		domain.ChannelEmail: {domain.LogStatusQueued, domain.LogStatusSent},
		domain.ChannelSMS:   {domain.LogStatusQueued, domain.LogStatusFailed, domain.LogStatusQueued, domain.LogStatusSent},
		domain.ChannelInApp: {domain.LogStatusQueued, domain.LogStatusSent},
	})

	latest, _ := h.logs.LatestForChannel(context.Background(), "r1", domain.ChannelSMS)
	if latest.Initiator != "operator:alice" {
		t.Fatalf("initiator = %q, want operator:alice", latest.Initiator)
	}
	if h.completeCalls != 1 || h.state().Attempts != 1 {
		t.Fatal("manual retry must not touch the reminder row")
	}
}

func TestDispatchCompletesWhenAuditWritesFail(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	h.logs.appendFn = func(ctx context.Context, l *domain.ReminderLog) error {
		return errors.New("db down")
	}

	outcome, err := orchestrator.Dispatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome.Status != domain.ReminderStatusSent {
		t.Fatalf("outcome status = %s, want SENT", outcome.Status)
	}

	state := h.state()
	if state.Status != domain.ReminderStatusSent || state.Attempts != 1 {
		t.Fatalf("reminder = %+v, want SENT with 1 attempt", state)
	}
	if got := h.channels.total(); got != 3 {
		t.Fatalf("sends = %d, want 3", got)
	}
	if rows := h.logs.statuses(); len(rows) != 0 {
		t.Fatalf("persisted rows = %v, want none", rows)
	}
}

func TestDispatchCompletesWhenWebhookDropped(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	h.emitter.result = EmitDropped

	outcome, err := orchestrator.Dispatch(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if outcome.Status != domain.ReminderStatusSent {
		t.Fatalf("outcome status = %s, want SENT", outcome.Status)
	}

	state := h.state()
	if state.Status != domain.ReminderStatusSent || state.Attempts != 1 {
		t.Fatalf("reminder = %+v, want SENT with 1 attempt", state)
	}
	if got := h.channels.total(); got != 3 {
		t.Fatalf("sends = %d, want 3", got)
	}
	if len(h.emitter.events) != 1 {
		t.Fatalf("webhook events = %d, want 1", len(h.emitter.events))
	}
}

func TestRetryChannelConcurrentRetriesSendOnce(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	h.channels.sendFn = func(channel domain.Channel, address string) domain.SendResult {
		if channel == domain.ChannelSMS {
			return domain.SendErr("timeout")
		}
		return domain.SendOk("ok")
	}
	if _, err := orchestrator.Dispatch(context.Background(), "r1"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	release := make(chan struct{})
	h.channels.sendFn = func(channel domain.Channel, address string) domain.SendResult {
		<-release
		return domain.SendOk("ok")
	}

	type retryResult struct {
		status domain.LogStatus
		err    error
	}
	results := make(chan retryResult, 2)
	for _, operator := range []string{"alice", "bob"} {
		go func(operator string) {
			status, err := orchestrator.RetryChannel(context.Background(), "r1", domain.ChannelSMS, operator)
			results <- retryResult{status: status, err: err}
		}(operator)
	}

	var first retryResult
	select {
	case first = <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("no retry returned while the other was sending")
	}
	if !errors.Is(first.err, domain.ErrConflict) {
		t.Fatalf("first finished retry error = %v, want ErrConflict", first.err)
	}

	close(release)
	second := <-results
	if second.err != nil || second.status != domain.LogStatusSent {
		t.Fatalf("winning retry = %s, %v, want SENT", second.status, second.err)
	}

	if got := h.channels.count(domain.ChannelSMS); got != 2 {
		t.Fatalf("sms sends = %d, want the dispatch attempt and one retry", got)
	}
	assertStatuses(t, h.logs, map[domain.Channel][]domain.LogStatus{
		domain.ChannelEmail: {domain.LogStatusQueued, domain.LogStatusSent},
		domain.ChannelSMS:   {domain.LogStatusQueued, domain.LogStatusFailed, domain.LogStatusQueued, domain.LogStatusSent},
		domain.ChannelInApp: {domain.LogStatusQueued, domain.LogStatusSent},
	})
}

func TestRetryChannelConflictsWhenFailedRowIsSuperseded(t *testing.T) {
	t.Parallel()

	orchestrator, h := newDispatchHarness(t, fullContactLease())
	h.channels.sendFn = func(channel domain.Channel, address string) domain.SendResult {
		return domain.SendErr("timeout")
	}
	if _, err := orchestrator.Dispatch(context.Background(), "r1"); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	// Another writer appends between the FAILED read and the QUEUED write.
	var once sync.Once
	h.logs.appendFn = func(ctx context.Context, l *domain.ReminderLog) error {
		once.Do(func() {
			h.logs.mu.Lock()
			h.logs.rows = append(h.logs.rows, domain.ReminderLog{
				ReminderID: "r1",
				Channel:    domain.ChannelSMS,
				Status:     domain.LogStatusQueued,
				Seq:        3,
				Initiator:  domain.OperatorInitiator("bob"),
			})
			h.logs.mu.Unlock()
		})
		return nil
	}

	sendsBefore := h.channels.count(domain.ChannelSMS)
	if _, err := orchestrator.RetryChannel(context.Background(), "r1", domain.ChannelSMS, "alice"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("RetryChannel() error = %v, want ErrConflict", err)
	}
	if got := h.channels.count(domain.ChannelSMS); got != sendsBefore {
		t.Fatalf("sms sends = %d, want %d", got, sendsBefore)
	}
}
