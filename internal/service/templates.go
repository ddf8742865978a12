package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/provider"
)

// DaysUntil returns ceil((due - now) / 24h).
func DaysUntil(due time.Time, now time.Time) int {
	return int(math.Ceil(due.Sub(now).Hours() / 24))
}

func offsetPhrase(daysUntil int) string {
	switch {
	case daysUntil == 0:
		return "due today"
	case daysUntil == 1:
		return "due tomorrow"
	case daysUntil > 1:
		return fmt.Sprintf("due in %d days", daysUntil)
	case daysUntil == -1:
		return "1 day overdue"
	default:
		return fmt.Sprintf("%d days overdue", -daysUntil)
	}
}

// formatAmount renders minor units as a decimal amount, e.g. 125050 -> 1250.50.
func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	amount := fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
	if currency = strings.ToUpper(strings.TrimSpace(currency)); currency != "" {
		amount += " " + currency
	}
	return amount
}

// RenderReminderMessage builds the reminder text stored on the Reminder row.
func RenderReminderMessage(lease domain.Lease, daysUntil int) string {
	name := strings.TrimSpace(lease.Tenant.Name)
	if name == "" {
		name = "there"
	}

	return fmt.Sprintf("Hi %s, your rent of %s is %s (due date %s).",
		name,
		formatAmount(lease.RentAmount, lease.Currency),
		offsetPhrase(daysUntil),
		lease.DueDate.Format(time.DateOnly),
	)
}

func reminderMessage(reminder *domain.Reminder) provider.Message {
	subject := "Rent reminder"
	if reminder.Type == domain.ReminderTypeOverdue {
		subject = "Rent overdue"
	}
	return provider.Message{Subject: subject, Body: reminder.Message}
}

func escalationMessage(request *domain.SupportRequest, entry domain.EscalationMatrixEntry, hoursLate float64) provider.Message {
	return provider.Message{
		Subject: fmt.Sprintf("Escalation level %d: %s", entry.Level, request.Title),
		Body: fmt.Sprintf("Request %q (%s) is %.1f hours past its deadline and has been escalated to %s.",
			request.Title,
			request.Category,
			hoursLate,
			entry.Role,
		),
	}
}
