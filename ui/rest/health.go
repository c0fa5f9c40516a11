package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/propertydesk/groupqueue/pkg/utils"
	"github.com/propertydesk/groupqueue/queue/repository"
)

type Health struct {
	Repo         repository.IQueueRepository
	Version      string
	QueueEnabled bool
	startedAt    time.Time
}

func InitRestHealth(app fiber.Router, repo repository.IQueueRepository, version string, queueEnabled bool) Health {
	handler := Health{Repo: repo, Version: version, QueueEnabled: queueEnabled, startedAt: time.Now().UTC()}
	app.Get("/health", handler.GetStatus)
	return handler
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	storeOK := true
	if _, err := h.Repo.GetSummary(c.UserContext()); err != nil {
		storeOK = false
	}

	status := 200
	code := "SUCCESS"
	if !storeOK {
		status = 503
		code = "STORE_UNAVAILABLE"
	}

	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    code,
		Message: "Health status retrieved",
		Results: fiber.Map{
			"version":       h.Version,
			"store_ok":      storeOK,
			"queue_enabled": h.QueueEnabled,
			"uptime":        time.Since(h.startedAt).Round(time.Second).String(),
		},
	})
}
