package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/observability"
)

// Observability records request metrics and logs failed ops requests.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()

		observability.HTTPRequests().WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		observability.HTTPLatency().WithLabelValues(method, route).Observe(duration.Seconds())

		if status >= fiber.StatusBadRequest {
			event := logger.Warn()
			if status >= fiber.StatusInternalServerError {
				event = logger.Error()
			}
			event.
				Str("correlation_id", CorrelationIDFromContext(c.UserContext())).
				Str("route", route).
				Str("method", method).
				Int("status", status).
				Float64("latency_ms", float64(duration)/float64(time.Millisecond)).
				Msg("ops request failed")
		}

		return err
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}
