package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/vending-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Unlock  *handlers.UnlockHandler
	Devices *handlers.DevicesHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Vending service running")
	})

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/unlock", cfg.Unlock.Unlock)
	app.Get("/devices", cfg.Devices.List)
}
