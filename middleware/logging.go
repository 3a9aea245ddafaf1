package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs remote call start and completion at
// debug level, and failures at warn level.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		logger.Debug("remote call started",
			slog.String("op", c.Op),
			slog.String("cache", c.Cache),
			slog.String("target", c.Target.String()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("remote call failed",
				slog.String("op", c.Op),
				slog.String("target", c.Target.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("remote call completed",
				slog.String("op", c.Op),
				slog.String("target", c.Target.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
