package middleware

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that logs call start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, c *Call, next Handler) error {
		logger.Debug("provider call started",
			slog.String("provider", c.Provider),
			slog.String("operation", c.Operation),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("provider call failed",
				slog.String("provider", c.Provider),
				slog.String("operation", c.Operation),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("provider call completed",
				slog.String("provider", c.Provider),
				slog.String("operation", c.Operation),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
