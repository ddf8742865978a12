package handler

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/reminder-engine/internal/service"
)

// JobRunner runs one pass of a periodic job.
type JobRunner interface {
	RunReminders(ctx context.Context) (service.ReminderRunSummary, error)
	RunEscalations(ctx context.Context) (service.EscalationRunSummary, error)
	RunDispatch(ctx context.Context) (service.DispatchScanSummary, error)
}

type JobHandler struct {
	jobs JobRunner
}

func NewJobHandler(jobs JobRunner) (*JobHandler, error) {
	if jobs == nil {
		return nil, fmt.Errorf("job runner is required")
	}
	return &JobHandler{jobs: jobs}, nil
}

// RegisterJobRoutes mounts the trigger surface. Each call runs one pass
// synchronously and answers {"ok": true} once it completes.
func RegisterJobRoutes(router fiber.Router, jobs JobRunner) error {
	h, err := NewJobHandler(jobs)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1/jobs")
	v1.Post("/reminders", h.RunReminders)
	v1.Post("/escalations", h.RunEscalations)
	v1.Post("/dispatch", h.RunDispatch)

	return nil
}

func (h *JobHandler) RunReminders(c *fiber.Ctx) error {
	summary, err := h.jobs.RunReminders(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "summary": summary})
}

func (h *JobHandler) RunEscalations(c *fiber.Ctx) error {
	summary, err := h.jobs.RunEscalations(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "summary": summary})
}

func (h *JobHandler) RunDispatch(c *fiber.Ctx) error {
	summary, err := h.jobs.RunDispatch(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "summary": summary})
}
