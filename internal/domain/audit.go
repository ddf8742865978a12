package domain

import (
	"fmt"
	"strings"
	"time"
)

// LogStatus is the outcome recorded for one channel step in the audit trail.
type LogStatus string

const (
	LogStatusQueued  LogStatus = "QUEUED"
	LogStatusSent    LogStatus = "SENT"
	LogStatusFailed  LogStatus = "FAILED"
	LogStatusSkipped LogStatus = "SKIPPED"
)

func (s LogStatus) String() string { return string(s) }

func (s LogStatus) IsValid() bool {
	switch s {
	case LogStatusQueued, LogStatusSent, LogStatusFailed, LogStatusSkipped:
		return true
	}
	return false
}

// Initiators recorded on audit rows.
const (
	InitiatorScheduler = "system:scheduler"
	InitiatorResolver  = "system:escalation"
	operatorPrefix     = "operator:"
)

// OperatorInitiator returns the initiator label for a manual operator action.
func OperatorInitiator(operator string) string {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		operator = "unknown"
	}
	return operatorPrefix + operator
}

// ReminderLog is one immutable audit row for a reminder dispatch step.
// Channel is empty for cycle-level rows such as a feature gate denial.
type ReminderLog struct {
	ID         string
	ReminderID string
	Channel    Channel
	// Seq orders rows within one (reminder, channel) stream, starting at 1.
	Seq       int64
	Status    LogStatus
	Response  *string
	Error     *string
	Initiator string
	CreatedAt time.Time
}

func (l *ReminderLog) Validate() error {
	if strings.TrimSpace(l.ReminderID) == "" {
		return fmt.Errorf("%w: reminder id is required", ErrValidation)
	}
	if l.Channel != "" && !l.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, l.Channel)
	}
	if !l.Status.IsValid() {
		return fmt.Errorf("%w: invalid log status %q", ErrValidation, l.Status)
	}
	return nil
}

// EscalationLog is one immutable audit row for an escalation delivery step.
type EscalationLog struct {
	ID        string
	EventID   string
	RequestID string
	Level     int
	Role      string
	Channel   Channel
	Recipient string
	Status    LogStatus
	Detail    *string
	Initiator string
	CreatedAt time.Time
}

func (l *EscalationLog) Validate() error {
	if strings.TrimSpace(l.RequestID) == "" {
		return fmt.Errorf("%w: request id is required", ErrValidation)
	}
	if l.Level < 1 {
		return fmt.Errorf("%w: level must be >= 1", ErrValidation)
	}
	if l.Channel != "" && !l.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, l.Channel)
	}
	if !l.Status.IsValid() {
		return fmt.Errorf("%w: invalid log status %q", ErrValidation, l.Status)
	}
	return nil
}
