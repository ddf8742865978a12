package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReminderType classifies a rent reminder.
type ReminderType string

const (
	ReminderTypeRentDue ReminderType = "rent_due"
	ReminderTypeOverdue ReminderType = "overdue"
)

func (t ReminderType) String() string { return string(t) }

func (t ReminderType) IsValid() bool {
	switch t {
	case ReminderTypeRentDue, ReminderTypeOverdue:
		return true
	}
	return false
}

// ReminderStatus represents the lifecycle state of a reminder.
type ReminderStatus string

const (
	ReminderStatusPending    ReminderStatus = "PENDING"
	ReminderStatusInProgress ReminderStatus = "IN_PROGRESS"
	ReminderStatusSent       ReminderStatus = "SENT"
	ReminderStatusCancelled  ReminderStatus = "CANCELLED"
	ReminderStatusFailed     ReminderStatus = "FAILED"
)

func (s ReminderStatus) String() string { return string(s) }

func (s ReminderStatus) IsValid() bool {
	switch s {
	case ReminderStatusPending, ReminderStatusInProgress, ReminderStatusSent, ReminderStatusCancelled, ReminderStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition may leave the status.
func (s ReminderStatus) IsTerminal() bool {
	switch s {
	case ReminderStatusSent, ReminderStatusCancelled, ReminderStatusFailed:
		return true
	}
	return false
}

func ParseReminderStatusFromString(s string) (ReminderStatus, error) {
	st := ReminderStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid reminder status %q", ErrValidation, s)
	}
	return st, nil
}

// ReminderOffsets are the day offsets relative to the due date at which reminders fire.
var ReminderOffsets = []int{7, 3, 1, 0, -1, -3}

// IsReminderOffset reports whether daysUntil is one of ReminderOffsets.
func IsReminderOffset(daysUntil int) bool {
	for _, offset := range ReminderOffsets {
		if offset == daysUntil {
			return true
		}
	}
	return false
}

// ReminderTypeForOffset returns overdue for negative offsets and rent_due otherwise.
func ReminderTypeForOffset(daysUntil int) ReminderType {
	if daysUntil < 0 {
		return ReminderTypeOverdue
	}
	return ReminderTypeRentDue
}

// Reminder is a scheduled rent notification for one lease.
type Reminder struct {
	ID           string
	LeaseID      string
	SubscriberID string
	TenantID     string
	Type         ReminderType
	Message      string
	// RunDate is the calendar date (YYYY-MM-DD) of the scheduler tick that created the
	// reminder. (LeaseID, Type, RunDate) is unique.
	RunDate     string
	DaysUntil   int
	ScheduledAt time.Time
	SentAt      *time.Time
	ClaimedAt   *time.Time
	// EnqueuedAt is set when the scanner last published the reminder and
	// cleared whenever a claim is released.
	EnqueuedAt *time.Time
	Status     ReminderStatus
	Attempts   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r *Reminder) Validate() error {
	if strings.TrimSpace(r.LeaseID) == "" {
		return fmt.Errorf("%w: lease id is required", ErrValidation)
	}
	if strings.TrimSpace(r.SubscriberID) == "" {
		return fmt.Errorf("%w: subscriber id is required", ErrValidation)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: invalid reminder type %q", ErrValidation, r.Type)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message is required", ErrValidation)
	}
	if _, err := time.Parse(time.DateOnly, r.RunDate); err != nil {
		return fmt.Errorf("%w: run date must be YYYY-MM-DD", ErrValidation)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid reminder status %q", ErrValidation, r.Status)
	}
	return nil
}
