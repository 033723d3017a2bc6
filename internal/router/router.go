package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-judge/internal/config"
	"github.com/noah-isme/gema-judge/internal/handler"
	"github.com/noah-isme/gema-judge/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	Probes map[string]handler.Probe
}

// Register wires the ops routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.Probes))

	app.Get("/metrics", observability.MetricsHandler())
}
