package api

import (
	"github.com/gofiber/fiber/v2"
)

func (h *Handler) Health(c *fiber.Ctx) error {
	checks := fiber.Map{"store": "ok"}
	healthy := true

	if err := h.Store.Ping(c.UserContext()); err != nil {
		h.Logger.Error("Document store ping failed", "error", err)
		checks["store"] = "unreachable"
		healthy = false
	}
	if h.Redis != nil {
		checks["redis"] = "ok"
		if err := h.Redis.Ping(c.UserContext()).Err(); err != nil {
			h.Logger.Error("Redis ping failed", "error", err)
			checks["redis"] = "unreachable"
			healthy = false
		}
	}

	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error":  "service unhealthy",
			"status": "unhealthy",
			"checks": checks,
		})
	}
	return c.JSON(fiber.Map{
		"message": "service healthy",
		"status":  "healthy",
		"checks":  checks,
	})
}
