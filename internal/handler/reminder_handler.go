package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/reminder-engine/internal/domain"
	"github.com/kursadbilgin/reminder-engine/internal/repository"
	"github.com/kursadbilgin/reminder-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100

	operatorHeader = "X-Operator"
)

type ReminderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Reminder, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Reminder, int64, error)
}

type ReminderLogReader interface {
	ListByReminderID(ctx context.Context, reminderID string) ([]domain.ReminderLog, error)
}

// ManualDispatcher runs operator-initiated dispatch actions.
type ManualDispatcher interface {
	DispatchNow(ctx context.Context, reminderID string, operator string) (*service.DispatchOutcome, error)
	RetryChannel(ctx context.Context, reminderID string, channel domain.Channel, operator string) (domain.LogStatus, error)
}

type ReminderHandler struct {
	reminders  ReminderReader
	logs       ReminderLogReader
	dispatcher ManualDispatcher
}

func NewReminderHandler(reminders ReminderReader, logs ReminderLogReader, dispatcher ManualDispatcher) (*ReminderHandler, error) {
	if reminders == nil || logs == nil || dispatcher == nil {
		return nil, fmt.Errorf("reminder reader, log reader and dispatcher are required")
	}
	return &ReminderHandler{reminders: reminders, logs: logs, dispatcher: dispatcher}, nil
}

func RegisterReminderRoutes(router fiber.Router, reminders ReminderReader, logs ReminderLogReader, dispatcher ManualDispatcher) error {
	h, err := NewReminderHandler(reminders, logs, dispatcher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/reminders", h.ListReminders)
	v1.Get("/reminders/:id", h.GetReminder)
	v1.Get("/reminders/:id/logs", h.ListReminderLogs)
	v1.Post("/reminders/:id/dispatch", h.DispatchNow)
	v1.Post("/reminders/:id/channels/:channel/retry", h.RetryChannel)

	return nil
}

type reminderResponse struct {
	ID           string     `json:"id"`
	LeaseID      string     `json:"leaseId"`
	SubscriberID string     `json:"subscriberId"`
	TenantID     string     `json:"tenantId,omitempty"`
	Type         string     `json:"type"`
	Message      string     `json:"message"`
	RunDate      string     `json:"runDate"`
	DaysUntil    int        `json:"daysUntil"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	Status       string     `json:"status"`
	Attempts     int        `json:"attempts"`
	CreatedAt    time.Time  `json:"createdAt"`
}

type reminderLogResponse struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel,omitempty"`
	Status    string    `json:"status"`
	Response  *string   `json:"response,omitempty"`
	Error     *string   `json:"error,omitempty"`
	Initiator string    `json:"initiator"`
	CreatedAt time.Time `json:"createdAt"`
}

type listRemindersResponse struct {
	Data []reminderResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type operatorRequest struct {
	Operator string `json:"operator"`
}

func (h *ReminderHandler) GetReminder(c *fiber.Ctx) error {
	reminder, err := h.reminders.GetByID(c.UserContext(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toReminderResponse(reminder))
}

func (h *ReminderHandler) ListReminders(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	reminders, total, err := h.reminders.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]reminderResponse, 0, len(reminders))
	for i := range reminders {
		data = append(data, toReminderResponse(&reminders[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listRemindersResponse{
		Data: data,
		Meta: listMeta{Page: params.Page, PageSize: params.PageSize, Total: total},
	})
}

func (h *ReminderHandler) ListReminderLogs(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if _, err := h.reminders.GetByID(c.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	logs, err := h.logs.ListByReminderID(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]reminderLogResponse, 0, len(logs))
	for _, l := range logs {
		data = append(data, reminderLogResponse{
			ID:        l.ID,
			Channel:   l.Channel.String(),
			Status:    l.Status.String(),
			Response:  l.Response,
			Error:     l.Error,
			Initiator: l.Initiator,
			CreatedAt: l.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *ReminderHandler) DispatchNow(c *fiber.Ctx) error {
	operator, err := requestOperator(c)
	if err != nil {
		return toHTTPError(err)
	}

	outcome, err := h.dispatcher.DispatchNow(c.UserContext(), strings.TrimSpace(c.Params("id")), operator)
	if err != nil {
		return toHTTPError(err)
	}

	channels := make(map[string]string, len(outcome.Channels))
	for channel, status := range outcome.Channels {
		channels[channel.String()] = status.String()
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"reminderId": outcome.ReminderID,
		"status":     outcome.Status.String(),
		"reason":     outcome.Reason,
		"channels":   channels,
	})
}

func (h *ReminderHandler) RetryChannel(c *fiber.Ctx) error {
	operator, err := requestOperator(c)
	if err != nil {
		return toHTTPError(err)
	}

	channel, err := domain.ParseChannelFromString(c.Params("channel"))
	if err != nil {
		return toHTTPError(err)
	}

	id := strings.TrimSpace(c.Params("id"))
	status, err := h.dispatcher.RetryChannel(c.UserContext(), id, channel, operator)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"reminderId": id,
		"channel":    channel.String(),
		"status":     status.String(),
	})
}

// requestOperator reads the operator from X-Operator, falling back to the JSON body.
func requestOperator(c *fiber.Ctx) (string, error) {
	if operator := strings.TrimSpace(c.Get(operatorHeader)); operator != "" {
		return operator, nil
	}

	var req operatorRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return "", fmt.Errorf("%w: invalid request body", domain.ErrValidation)
		}
	}
	if operator := strings.TrimSpace(req.Operator); operator != "" {
		return operator, nil
	}
	return "", fmt.Errorf("%w: operator is required", domain.ErrValidation)
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
		LeaseID:  strings.TrimSpace(c.Query("leaseId")),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseReminderStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	if from != nil && to != nil && from.After(*to) {
		return repository.ListParams{}, fmt.Errorf("%w: from must not be after to", domain.ErrValidation)
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toReminderResponse(r *domain.Reminder) reminderResponse {
	if r == nil {
		return reminderResponse{}
	}

	return reminderResponse{
		ID:           r.ID,
		LeaseID:      r.LeaseID,
		SubscriberID: r.SubscriberID,
		TenantID:     r.TenantID,
		Type:         r.Type.String(),
		Message:      r.Message,
		RunDate:      r.RunDate,
		DaysUntil:    r.DaysUntil,
		ScheduledAt:  r.ScheduledAt,
		SentAt:       r.SentAt,
		Status:       r.Status.String(),
		Attempts:     r.Attempts,
		CreatedAt:    r.CreatedAt,
	}
}
