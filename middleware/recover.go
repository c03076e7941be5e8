package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/reelmill/conduct/job"
)

// Recover returns middleware that recovers from panics in provider
// adapters. Panics are converted to errors and logged with a stack trace
// so a misbehaving adapter cannot take down the dispatch loop.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("provider adapter panicked",
					slog.String("job_id", j.ID.String()),
					slog.String("provider", j.Provider),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic dispatching job %s to %s: %v", j.ID, j.Provider, r)
			}
		}()
		return next(ctx)
	}
}
