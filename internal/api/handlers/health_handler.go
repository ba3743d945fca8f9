package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	mode string
	now  func() time.Time
}

func NewHealthHandler(mode string, now func() time.Time) *HealthHandler {
	if now == nil {
		now = time.Now
	}
	return &HealthHandler{mode: mode, now: now}
}

func (h *HealthHandler) Alive(c *fiber.Ctx) error {
	return c.SendString("Bot is alive!")
}

func (h *HealthHandler) Healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":   true,
		"time": h.now().UTC().Format(time.RFC3339),
		"mode": h.mode,
	})
}

// Register mounts the keep-alive routes.
func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/", h.Alive)
	app.Get("/healthz", h.Healthz)
}
