// Package hook defines the lifecycle extension system for conduct.
// Extensions are notified of lifecycle events (job enqueued, dispatched,
// completed, batch resolved, etc.) and can react to them — logging,
// metrics, alerting.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a job is successfully enqueued.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobDispatched is called after a job is submitted to a provider.
type JobDispatched interface {
	OnJobDispatched(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after a job's result clears the pipeline.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally (no more retries).
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// JobRetrying is called when a dispatch attempt fails but the job is
// scheduled for retry on its fallback provider.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time) error
}

// JobCancelled is called after a job is cancelled.
type JobCancelled interface {
	OnJobCancelled(ctx context.Context, j *job.Job) error
}

// ScheduleFired is called when a schedule tick creates a batch.
type ScheduleFired interface {
	OnScheduleFired(ctx context.Context, scheduleID id.ScheduleID, batchID id.BatchID, jobIDs []id.JobID) error
}

// BatchResolved is called exactly once per batch, after every member job
// is terminal and post-actions have run.
type BatchResolved interface {
	OnBatchResolved(ctx context.Context, batchID id.BatchID, completed, failed int) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
