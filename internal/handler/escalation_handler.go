package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/reminder-engine/internal/domain"
)

type EscalationReader interface {
	ListByRequestID(ctx context.Context, requestID string) ([]domain.EscalationEvent, error)
	ListLogsByRequestID(ctx context.Context, requestID string) ([]domain.EscalationLog, error)
}

type EscalationHandler struct {
	escalations EscalationReader
}

func RegisterEscalationRoutes(router fiber.Router, escalations EscalationReader) error {
	if escalations == nil {
		return fmt.Errorf("escalation reader is required")
	}
	h := &EscalationHandler{escalations: escalations}

	router.Get("/v1/requests/:id/escalations", h.ListEscalations)
	return nil
}

type escalationEventResponse struct {
	ID          string    `json:"id"`
	Level       int       `json:"level"`
	Role        string    `json:"role"`
	TriggeredAt time.Time `json:"triggeredAt"`
}

type escalationLogResponse struct {
	EventID   string    `json:"eventId"`
	Level     int       `json:"level"`
	Channel   string    `json:"channel,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Status    string    `json:"status"`
	Detail    *string   `json:"detail,omitempty"`
	Initiator string    `json:"initiator"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListEscalations returns the fired levels of a request and their delivery trail.
func (h *EscalationHandler) ListEscalations(c *fiber.Ctx) error {
	requestID := strings.TrimSpace(c.Params("id"))

	events, err := h.escalations.ListByRequestID(c.UserContext(), requestID)
	if err != nil {
		return toHTTPError(err)
	}
	logs, err := h.escalations.ListLogsByRequestID(c.UserContext(), requestID)
	if err != nil {
		return toHTTPError(err)
	}

	eventData := make([]escalationEventResponse, 0, len(events))
	for _, e := range events {
		eventData = append(eventData, escalationEventResponse{
			ID:          e.ID,
			Level:       e.Level,
			Role:        e.Role,
			TriggeredAt: e.TriggeredAt,
		})
	}

	logData := make([]escalationLogResponse, 0, len(logs))
	for _, l := range logs {
		logData = append(logData, escalationLogResponse{
			EventID:   l.EventID,
			Level:     l.Level,
			Channel:   l.Channel.String(),
			Recipient: l.Recipient,
			Status:    l.Status.String(),
			Detail:    l.Detail,
			Initiator: l.Initiator,
			CreatedAt: l.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"requestId": requestID,
		"events":    eventData,
		"logs":      logData,
	})
}
