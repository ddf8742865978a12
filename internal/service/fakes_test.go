package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/queue"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
)

type fakeReminderRepo struct {
	createIfAbsentFn     func(ctx context.Context, r *domain.Reminder) (bool, error)
	getByIDFn            func(ctx context.Context, id string) (*domain.Reminder, error)
	listFn               func(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error)
	claimFn              func(ctx context.Context, id string, now time.Time) (*domain.Reminder, error)
	releaseFn            func(ctx context.Context, id string) error
	completeFn           func(ctx context.Context, id string, sentAt time.Time) error
	cancelFn             func(ctx context.Context, id string) error
	releaseStaleClaimsFn func(ctx context.Context, claimedBefore time.Time) (int64, error)
	getDuePendingFn      func(ctx context.Context, now, enqueuedBefore time.Time, limit int) ([]domain.Reminder, error)
	markEnqueuedFn       func(ctx context.Context, id string, at time.Time) (bool, error)
}

func (f *fakeReminderRepo) CreateIfAbsent(ctx context.Context, r *domain.Reminder) (bool, error) {
	if f.createIfAbsentFn != nil {
		return f.createIfAbsentFn(ctx, r)
	}
	return true, nil
}

func (f *fakeReminderRepo) GetByID(ctx context.Context, id string) (*domain.Reminder, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReminderRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeReminderRepo) Claim(ctx context.Context, id string, now time.Time) (*domain.Reminder, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, id, now)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeReminderRepo) Release(ctx context.Context, id string) error {
	if f.releaseFn != nil {
		return f.releaseFn(ctx, id)
	}
	return nil
}

func (f *fakeReminderRepo) Complete(ctx context.Context, id string, sentAt time.Time) error {
	if f.completeFn != nil {
		return f.completeFn(ctx, id, sentAt)
	}
	return nil
}

func (f *fakeReminderRepo) Cancel(ctx context.Context, id string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, id)
	}
	return nil
}

func (f *fakeReminderRepo) ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	if f.releaseStaleClaimsFn != nil {
		return f.releaseStaleClaimsFn(ctx, claimedBefore)
	}
	return 0, nil
}

func (f *fakeReminderRepo) GetDuePending(ctx context.Context, now, enqueuedBefore time.Time, limit int) ([]domain.Reminder, error) {
	if f.getDuePendingFn != nil {
		return f.getDuePendingFn(ctx, now, enqueuedBefore, limit)
	}
	return nil, nil
}

func (f *fakeReminderRepo) MarkEnqueued(ctx context.Context, id string, at time.Time) (bool, error) {
	if f.markEnqueuedFn != nil {
		return f.markEnqueuedFn(ctx, id, at)
	}
	return true, nil
}

// memReminderLogs is an append-only in-memory audit trail.
type memReminderLogs struct {
	mu       sync.Mutex
	rows     []domain.ReminderLog
	appendFn func(ctx context.Context, l *domain.ReminderLog) error
}

func (m *memReminderLogs) Append(ctx context.Context, l *domain.ReminderLog) error {
	if m.appendFn != nil {
		if err := m.appendFn(ctx, l); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l.Seq = m.lastSeqLocked(l.ReminderID, l.Channel) + 1
	m.rows = append(m.rows, *l)
	return nil
}

func (m *memReminderLogs) AppendAfter(ctx context.Context, l *domain.ReminderLog, afterSeq int64) (bool, error) {
	if m.appendFn != nil {
		if err := m.appendFn(ctx, l); err != nil {
			return false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastSeqLocked(l.ReminderID, l.Channel) != afterSeq {
		return false, nil
	}
	l.Seq = afterSeq + 1
	m.rows = append(m.rows, *l)
	return true, nil
}

func (m *memReminderLogs) lastSeqLocked(reminderID string, channel domain.Channel) int64 {
	var last int64
	for _, row := range m.rows {
		if row.ReminderID == reminderID && row.Channel == channel && row.Seq > last {
			last = row.Seq
		}
	}
	return last
}

func (m *memReminderLogs) ListByReminderID(ctx context.Context, reminderID string) ([]domain.ReminderLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ReminderLog
	for _, row := range m.rows {
		if row.ReminderID == reminderID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memReminderLogs) LatestForChannel(ctx context.Context, reminderID string, channel domain.Channel) (*domain.ReminderLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].ReminderID == reminderID && m.rows[i].Channel == channel {
			row := m.rows[i]
			return &row, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memReminderLogs) HasStatus(ctx context.Context, reminderID string, channel domain.Channel, status domain.LogStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ReminderID == reminderID && row.Channel == channel && row.Status == status {
			return true, nil
		}
	}
	return false, nil
}

// statuses returns channel -> ordered statuses, with "" for cycle-level rows.
func (m *memReminderLogs) statuses() map[domain.Channel][]domain.LogStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[domain.Channel][]domain.LogStatus)
	for _, row := range m.rows {
		out[row.Channel] = append(out[row.Channel], row.Status)
	}
	return out
}

type fakeLeaseRepo struct {
	listActiveFn func(ctx context.Context, afterID string, limit int) ([]domain.Lease, error)
	getByIDFn    func(ctx context.Context, id string) (*domain.Lease, error)
}

func (f *fakeLeaseRepo) ListActive(ctx context.Context, afterID string, limit int) ([]domain.Lease, error) {
	if f.listActiveFn != nil {
		return f.listActiveFn(ctx, afterID, limit)
	}
	return nil, nil
}

func (f *fakeLeaseRepo) GetByID(ctx context.Context, id string) (*domain.Lease, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

// fakeFeatureRepo allows every feature by plan default unless inputsFn says otherwise.
type fakeFeatureRepo struct {
	inputsFn func(ctx context.Context, subscriberID string, planID string, feature domain.Feature) (domain.FeatureInputs, error)
}

func (f *fakeFeatureRepo) Inputs(ctx context.Context, subscriberID string, planID string, feature domain.Feature) (domain.FeatureInputs, error) {
	if f.inputsFn != nil {
		return f.inputsFn(ctx, subscriberID, planID, feature)
	}
	return domain.FeatureInputs{Feature: feature, PlanDefault: true, Override: domain.OverrideInherit}, nil
}

// memEscalationRepo keeps matrix and policies per scope tier and enforces
// (request, level) uniqueness on events.
type memEscalationRepo struct {
	matrix   map[domain.ScopeLevel][]domain.EscalationMatrixEntry
	policies map[domain.ScopeLevel]*domain.EscalationPolicy

	mu       sync.Mutex
	events   map[string]domain.EscalationEvent
	logs     []domain.EscalationLog
	insertFn func(ctx context.Context, e *domain.EscalationEvent) (bool, error)
}

func newMemEscalationRepo() *memEscalationRepo {
	return &memEscalationRepo{
		matrix:   make(map[domain.ScopeLevel][]domain.EscalationMatrixEntry),
		policies: make(map[domain.ScopeLevel]*domain.EscalationPolicy),
		events:   make(map[string]domain.EscalationEvent),
	}
}

func (m *memEscalationRepo) ListMatrix(ctx context.Context, scope domain.Scope, level domain.ScopeLevel) ([]domain.EscalationMatrixEntry, error) {
	if level == domain.ScopeLevelProperty && scope.PropertyID == "" {
		return nil, nil
	}
	if level == domain.ScopeLevelPlan && scope.PlanID == "" {
		return nil, nil
	}
	return m.matrix[level], nil
}

func (m *memEscalationRepo) FindPolicy(ctx context.Context, category string, scope domain.Scope, level domain.ScopeLevel) (*domain.EscalationPolicy, error) {
	policy, ok := m.policies[level]
	if !ok || policy.Category != category {
		return nil, domain.ErrNotFound
	}
	return policy, nil
}

func (m *memEscalationRepo) InsertIfAbsent(ctx context.Context, e *domain.EscalationEvent) (bool, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s/%d", e.RequestID, e.Level)
	if _, exists := m.events[key]; exists {
		return false, nil
	}
	m.events[key] = *e
	return true, nil
}

func (m *memEscalationRepo) ListByRequestID(ctx context.Context, requestID string) ([]domain.EscalationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EscalationEvent
	for _, e := range m.events {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEscalationRepo) AppendLog(ctx context.Context, l *domain.EscalationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *l)
	return nil
}

func (m *memEscalationRepo) ListLogsByRequestID(ctx context.Context, requestID string) ([]domain.EscalationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EscalationLog
	for _, l := range m.logs {
		if l.RequestID == requestID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memEscalationRepo) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type fakeRequestRepo struct {
	listOpenFn func(ctx context.Context, afterID string, limit int) ([]domain.SupportRequest, error)
}

func (f *fakeRequestRepo) ListOpen(ctx context.Context, afterID string, limit int) ([]domain.SupportRequest, error) {
	if f.listOpenFn != nil {
		return f.listOpenFn(ctx, afterID, limit)
	}
	return nil, nil
}

func (f *fakeRequestRepo) GetByID(ctx context.Context, id string) (*domain.SupportRequest, error) {
	return nil, domain.ErrNotFound
}

type fakeContactRepo struct {
	listForRoleFn     func(ctx context.Context, subscriberID string, propertyID string, role string) ([]domain.RoleContact, error)
	getBySubscriberFn func(ctx context.Context, subscriberID string) (*domain.WebhookEndpoint, error)
}

func (f *fakeContactRepo) ListForRole(ctx context.Context, subscriberID string, propertyID string, role string) ([]domain.RoleContact, error) {
	if f.listForRoleFn != nil {
		return f.listForRoleFn(ctx, subscriberID, propertyID, role)
	}
	return nil, nil
}

func (f *fakeContactRepo) GetBySubscriber(ctx context.Context, subscriberID string) (*domain.WebhookEndpoint, error) {
	if f.getBySubscriberFn != nil {
		return f.getBySubscriberFn(ctx, subscriberID)
	}
	return nil, domain.ErrNotFound
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, channel string) (bool, error)
	waitFn  func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, channel)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

// fakeChannels implements every adapter interface and counts calls per channel.
type fakeChannels struct {
	mu     sync.Mutex
	calls  map[domain.Channel][]string
	sendFn func(channel domain.Channel, address string) domain.SendResult
}

func (f *fakeChannels) record(channel domain.Channel, address string) domain.SendResult {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[domain.Channel][]string)
	}
	f.calls[channel] = append(f.calls[channel], address)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(channel, address)
	}
	return domain.SendOk("msg-" + address)
}

func (f *fakeChannels) SendEmail(_ context.Context, to, _, _ string) domain.SendResult {
	return f.record(domain.ChannelEmail, to)
}

func (f *fakeChannels) SendSMS(_ context.Context, to, _ string) domain.SendResult {
	return f.record(domain.ChannelSMS, to)
}

func (f *fakeChannels) NotifyInApp(_ context.Context, userID, _ string) domain.SendResult {
	return f.record(domain.ChannelInApp, userID)
}

func (f *fakeChannels) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, calls := range f.calls {
		n += len(calls)
	}
	return n
}

func (f *fakeChannels) count(channel domain.Channel) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[channel])
}

type emittedEvent struct {
	subscriberID string
	event        string
	payload      any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
	result EmitResult
}

func (f *fakeEmitter) Emit(_ context.Context, subscriberID string, event string, payload any) EmitResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{subscriberID: subscriberID, event: event, payload: payload})
	if f.result == "" {
		return EmitQueued
	}
	return f.result
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.ReminderMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.ReminderMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }
