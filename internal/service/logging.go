package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-judge/internal/middleware"
)

// loggerFor decorates logger with the correlation id carried by ctx.
func loggerFor(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if id := middleware.CorrelationIDFromContext(ctx); id != "" {
		return logger.With().Str("correlation_id", id).Logger()
	}
	return logger
}
