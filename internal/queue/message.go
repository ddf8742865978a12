package queue

import (
	"fmt"
	"strings"
)

// ReminderMessage is the broker payload for one dispatch cycle.
type ReminderMessage struct {
	ReminderID    string `json:"reminderId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func (m ReminderMessage) Validate() error {
	if strings.TrimSpace(m.ReminderID) == "" {
		return fmt.Errorf("reminderId is required")
	}
	return nil
}
