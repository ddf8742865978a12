package repository

import (
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
)

// ReminderModel is the persistence model for the reminders table.
type ReminderModel struct {
	ID           string              `gorm:"type:uuid;primaryKey"`
	LeaseID      string              `gorm:"type:varchar(64);not null;uniqueIndex:idx_reminders_dedupe,priority:1"`
	SubscriberID string              `gorm:"type:varchar(64);not null"`
	TenantID     string              `gorm:"type:varchar(64)"`
	Type         domain.ReminderType `gorm:"type:varchar(20);not null;uniqueIndex:idx_reminders_dedupe,priority:2"`
	Message      string              `gorm:"type:text;not null"`
	RunDate      string              `gorm:"type:varchar(10);not null;uniqueIndex:idx_reminders_dedupe,priority:3"`
	DaysUntil    int                 `gorm:"not null"`
	ScheduledAt  time.Time           `gorm:"not null"`
	SentAt       *time.Time
	ClaimedAt    *time.Time
	EnqueuedAt   *time.Time
	Status       domain.ReminderStatus `gorm:"type:varchar(20);not null"`
	Attempts     int                   `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ReminderModel) TableName() string {
	return "reminders"
}

// ReminderLogModel is the persistence model for the append-only reminder_logs table.
type ReminderLogModel struct {
	ID         string           `gorm:"type:uuid;primaryKey"`
	ReminderID string           `gorm:"type:uuid;not null;index;uniqueIndex:idx_reminder_logs_seq,priority:1"`
	Channel    string           `gorm:"type:varchar(10);uniqueIndex:idx_reminder_logs_seq,priority:2"`
	Seq        int64            `gorm:"not null;default:0;uniqueIndex:idx_reminder_logs_seq,priority:3"`
	Status     domain.LogStatus `gorm:"type:varchar(10);not null"`
	Response   *string          `gorm:"type:text"`
	Error      *string          `gorm:"type:text"`
	Initiator  string           `gorm:"type:varchar(128);not null"`
	CreatedAt  time.Time
}

func (ReminderLogModel) TableName() string {
	return "reminder_logs"
}

// EscalationPolicyModel is the persistence model for escalation_policies.
type EscalationPolicyModel struct {
	ID              string  `gorm:"type:uuid;primaryKey"`
	Category        string  `gorm:"type:varchar(64);not null"`
	HoursToDeadline float64 `gorm:"not null"`
	PropertyID      *string `gorm:"type:varchar(64)"`
	PlanID          *string `gorm:"type:varchar(64)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (EscalationPolicyModel) TableName() string {
	return "escalation_policies"
}

// EscalationMatrixModel is the persistence model for escalation_matrix.
type EscalationMatrixModel struct {
	ID                 string  `gorm:"type:uuid;primaryKey"`
	Level              int     `gorm:"not null"`
	Role               string  `gorm:"type:varchar(64);not null"`
	HoursAfterDeadline float64 `gorm:"not null"`
	PropertyID         *string `gorm:"type:varchar(64)"`
	PlanID             *string `gorm:"type:varchar(64)"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (EscalationMatrixModel) TableName() string {
	return "escalation_matrix"
}

// EscalationEventModel is the persistence model for escalation_events.
type EscalationEventModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	RequestID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_escalation_events_request_level,priority:1"`
	Level       int       `gorm:"not null;uniqueIndex:idx_escalation_events_request_level,priority:2"`
	Role        string    `gorm:"type:varchar(64);not null"`
	TriggeredAt time.Time `gorm:"not null"`
}

func (EscalationEventModel) TableName() string {
	return "escalation_events"
}

// EscalationLogModel is the persistence model for the append-only escalation_logs table.
type EscalationLogModel struct {
	ID        string           `gorm:"type:uuid;primaryKey"`
	EventID   string           `gorm:"type:uuid;not null"`
	RequestID string           `gorm:"type:varchar(64);not null;index"`
	Level     int              `gorm:"not null"`
	Role      string           `gorm:"type:varchar(64);not null"`
	Channel   string           `gorm:"type:varchar(10)"`
	Recipient string           `gorm:"type:varchar(255)"`
	Status    domain.LogStatus `gorm:"type:varchar(10);not null"`
	Detail    *string          `gorm:"type:text"`
	Initiator string           `gorm:"type:varchar(128);not null"`
	CreatedAt time.Time
}

func (EscalationLogModel) TableName() string {
	return "escalation_logs"
}

// PlanFeatureModel stores the plan-level default allow flag per feature.
type PlanFeatureModel struct {
	PlanID         string `gorm:"type:varchar(64);primaryKey"`
	Feature        string `gorm:"type:varchar(32);primaryKey"`
	DefaultAllowed bool   `gorm:"not null"`
}

func (PlanFeatureModel) TableName() string {
	return "plan_features"
}

// FeatureOverrideModel stores the admin-forced override per subscriber feature.
type FeatureOverrideModel struct {
	SubscriberID string              `gorm:"type:varchar(64);primaryKey"`
	Feature      string              `gorm:"type:varchar(32);primaryKey"`
	Mode         domain.OverrideMode `gorm:"type:varchar(10);not null"`
	UpdatedAt    time.Time
}

func (FeatureOverrideModel) TableName() string {
	return "subscriber_feature_overrides"
}

// FeatureSettingModel stores the subscriber's own opt-in flag per feature.
type FeatureSettingModel struct {
	SubscriberID string `gorm:"type:varchar(64);primaryKey"`
	Feature      string `gorm:"type:varchar(32);primaryKey"`
	Enabled      bool   `gorm:"not null"`
	UpdatedAt    time.Time
}

func (FeatureSettingModel) TableName() string {
	return "subscriber_feature_settings"
}

// LeaseModel is the lease read model consumed by the reminder scheduler.
type LeaseModel struct {
	ID           string    `gorm:"type:varchar(64);primaryKey"`
	SubscriberID string    `gorm:"type:varchar(64);not null"`
	PlanID       string    `gorm:"type:varchar(64)"`
	PropertyID   string    `gorm:"type:varchar(64)"`
	TenantID     string    `gorm:"type:varchar(64)"`
	TenantName   string    `gorm:"type:varchar(255)"`
	TenantEmail  string    `gorm:"type:varchar(255)"`
	TenantPhone  string    `gorm:"type:varchar(32)"`
	TenantUserID string    `gorm:"type:varchar(64)"`
	RentAmount   int64     `gorm:"not null;default:0"`
	Currency     string    `gorm:"type:varchar(3)"`
	DueDate      time.Time `gorm:"not null"`
	Active       bool      `gorm:"not null"`
}

func (LeaseModel) TableName() string {
	return "leases"
}

// SupportRequestModel is the request read model consumed by the escalation resolver.
type SupportRequestModel struct {
	ID           string               `gorm:"type:varchar(64);primaryKey"`
	SubscriberID string               `gorm:"type:varchar(64);not null"`
	PropertyID   string               `gorm:"type:varchar(64)"`
	PlanID       string               `gorm:"type:varchar(64)"`
	Category     string               `gorm:"type:varchar(64);not null"`
	Title        string               `gorm:"type:varchar(255)"`
	Status       domain.RequestStatus `gorm:"type:varchar(16);not null"`
	Deadline     *time.Time
	CreatedAt    time.Time
}

func (SupportRequestModel) TableName() string {
	return "support_requests"
}

// RoleContactModel maps escalation roles to people.
type RoleContactModel struct {
	ID           string  `gorm:"type:varchar(64);primaryKey"`
	SubscriberID string  `gorm:"type:varchar(64);not null"`
	PropertyID   *string `gorm:"type:varchar(64)"`
	Role         string  `gorm:"type:varchar(64);not null"`
	Name         string  `gorm:"type:varchar(255)"`
	Email        string  `gorm:"type:varchar(255)"`
	Phone        string  `gorm:"type:varchar(32)"`
	UserID       string  `gorm:"type:varchar(64)"`
}

func (RoleContactModel) TableName() string {
	return "role_contacts"
}

// WebhookEndpointModel stores subscriber-configured outbound webhook targets.
type WebhookEndpointModel struct {
	SubscriberID string `gorm:"type:varchar(64);primaryKey"`
	URL          string `gorm:"type:varchar(1024);not null"`
	Secret       string `gorm:"type:varchar(255)"`
	Enabled      bool   `gorm:"not null"`
}

func (WebhookEndpointModel) TableName() string {
	return "webhook_endpoints"
}

func reminderModelFromDomain(r *domain.Reminder) *ReminderModel {
	if r == nil {
		return nil
	}

	return &ReminderModel{
		ID:           r.ID,
		LeaseID:      r.LeaseID,
		SubscriberID: r.SubscriberID,
		TenantID:     r.TenantID,
		Type:         r.Type,
		Message:      r.Message,
		RunDate:      r.RunDate,
		DaysUntil:    r.DaysUntil,
		ScheduledAt:  r.ScheduledAt,
		SentAt:       r.SentAt,
		ClaimedAt:    r.ClaimedAt,
		EnqueuedAt:   r.EnqueuedAt,
		Status:       r.Status,
		Attempts:     r.Attempts,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func reminderModelToDomain(m *ReminderModel) *domain.Reminder {
	if m == nil {
		return nil
	}

	return &domain.Reminder{
		ID:           m.ID,
		LeaseID:      m.LeaseID,
		SubscriberID: m.SubscriberID,
		TenantID:     m.TenantID,
		Type:         m.Type,
		Message:      m.Message,
		RunDate:      m.RunDate,
		DaysUntil:    m.DaysUntil,
		ScheduledAt:  m.ScheduledAt,
		SentAt:       m.SentAt,
		ClaimedAt:    m.ClaimedAt,
		EnqueuedAt:   m.EnqueuedAt,
		Status:       m.Status,
		Attempts:     m.Attempts,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func reminderLogModelFromDomain(l *domain.ReminderLog) *ReminderLogModel {
	if l == nil {
		return nil
	}

	return &ReminderLogModel{
		ID:         l.ID,
		ReminderID: l.ReminderID,
		Channel:    l.Channel.String(),
		Seq:        l.Seq,
		Status:     l.Status,
		Response:   l.Response,
		Error:      l.Error,
		Initiator:  l.Initiator,
		CreatedAt:  l.CreatedAt,
	}
}

func reminderLogModelToDomain(m *ReminderLogModel) *domain.ReminderLog {
	if m == nil {
		return nil
	}

	return &domain.ReminderLog{
		ID:         m.ID,
		ReminderID: m.ReminderID,
		Channel:    domain.Channel(m.Channel),
		Seq:        m.Seq,
		Status:     m.Status,
		Response:   m.Response,
		Error:      m.Error,
		Initiator:  m.Initiator,
		CreatedAt:  m.CreatedAt,
	}
}

func escalationLogModelFromDomain(l *domain.EscalationLog) *EscalationLogModel {
	if l == nil {
		return nil
	}

	return &EscalationLogModel{
		ID:        l.ID,
		EventID:   l.EventID,
		RequestID: l.RequestID,
		Level:     l.Level,
		Role:      l.Role,
		Channel:   l.Channel.String(),
		Recipient: l.Recipient,
		Status:    l.Status,
		Detail:    l.Detail,
		Initiator: l.Initiator,
		CreatedAt: l.CreatedAt,
	}
}

func escalationLogModelToDomain(m *EscalationLogModel) *domain.EscalationLog {
	if m == nil {
		return nil
	}

	return &domain.EscalationLog{
		ID:        m.ID,
		EventID:   m.EventID,
		RequestID: m.RequestID,
		Level:     m.Level,
		Role:      m.Role,
		Channel:   domain.Channel(m.Channel),
		Recipient: m.Recipient,
		Status:    m.Status,
		Detail:    m.Detail,
		Initiator: m.Initiator,
		CreatedAt: m.CreatedAt,
	}
}

func escalationEventModelToDomain(m *EscalationEventModel) *domain.EscalationEvent {
	if m == nil {
		return nil
	}

	return &domain.EscalationEvent{
		ID:          m.ID,
		RequestID:   m.RequestID,
		Level:       m.Level,
		Role:        m.Role,
		TriggeredAt: m.TriggeredAt,
	}
}

func matrixModelToDomain(m *EscalationMatrixModel) *domain.EscalationMatrixEntry {
	if m == nil {
		return nil
	}

	return &domain.EscalationMatrixEntry{
		ID:                 m.ID,
		Level:              m.Level,
		Role:               m.Role,
		HoursAfterDeadline: m.HoursAfterDeadline,
		Scope:              domain.Scope{PropertyID: derefString(m.PropertyID), PlanID: derefString(m.PlanID)},
	}
}

func policyModelToDomain(m *EscalationPolicyModel) *domain.EscalationPolicy {
	if m == nil {
		return nil
	}

	return &domain.EscalationPolicy{
		ID:              m.ID,
		Category:        m.Category,
		HoursToDeadline: m.HoursToDeadline,
		Scope:           domain.Scope{PropertyID: derefString(m.PropertyID), PlanID: derefString(m.PlanID)},
	}
}

func leaseModelToDomain(m *LeaseModel) *domain.Lease {
	if m == nil {
		return nil
	}

	return &domain.Lease{
		ID:           m.ID,
		SubscriberID: m.SubscriberID,
		PlanID:       m.PlanID,
		PropertyID:   m.PropertyID,
		TenantID:     m.TenantID,
		Tenant: domain.Contact{
			Name:      m.TenantName,
			Email:     m.TenantEmail,
			Phone:     m.TenantPhone,
			InAppUser: m.TenantUserID,
		},
		RentAmount: m.RentAmount,
		Currency:   m.Currency,
		DueDate:    m.DueDate,
		Active:     m.Active,
	}
}

func supportRequestModelToDomain(m *SupportRequestModel) *domain.SupportRequest {
	if m == nil {
		return nil
	}

	return &domain.SupportRequest{
		ID:           m.ID,
		SubscriberID: m.SubscriberID,
		PropertyID:   m.PropertyID,
		PlanID:       m.PlanID,
		Category:     m.Category,
		Title:        m.Title,
		Status:       m.Status,
		Deadline:     m.Deadline,
		CreatedAt:    m.CreatedAt,
	}
}

func roleContactModelToDomain(m *RoleContactModel) *domain.RoleContact {
	if m == nil {
		return nil
	}

	return &domain.RoleContact{
		ID:           m.ID,
		SubscriberID: m.SubscriberID,
		PropertyID:   derefString(m.PropertyID),
		Role:         m.Role,
		Contact: domain.Contact{
			Name:      m.Name,
			Email:     m.Email,
			Phone:     m.Phone,
			InAppUser: m.UserID,
		},
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
