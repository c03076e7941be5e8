package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/reelmill/conduct/job"
)

// Logging returns middleware that logs each dispatch attempt.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Info("dispatching job",
			slog.String("job_id", j.ID.String()),
			slog.String("content_type", string(j.Spec.Type)),
			slog.String("provider", j.Provider),
			slog.Int("attempt", j.RetryCount+1),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("dispatch attempt failed",
				slog.String("job_id", j.ID.String()),
				slog.String("provider", j.Provider),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job dispatched",
				slog.String("job_id", j.ID.String()),
				slog.String("provider", j.Provider),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
