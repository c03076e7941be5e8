package schedule

import (
	"context"

	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
)

// JobQueue is the slice of the queue the scheduler depends on. The
// engine adapts the concrete queue to this interface.
type JobQueue interface {
	// EnqueueBatch enqueues the specs tagged with batchID and returns
	// job IDs in spec order.
	EnqueueBatch(ctx context.Context, batchID id.BatchID, specs []job.Spec) ([]id.JobID, error)

	// Status reports the state of one job.
	Status(ctx context.Context, jobID id.JobID) (job.Status, error)
}

// PublishResult is the outcome of one publish attempt.
type PublishResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
	Err     string `json:"error,omitempty"`
}

// Publisher pushes a completed result to a target platform. Failures
// are logged by the scheduler, never retried.
type Publisher interface {
	Publish(ctx context.Context, res *job.Result, platform string) (PublishResult, error)
}

// Summary aggregates a resolved batch for notification.
type Summary struct {
	ScheduleID id.ScheduleID `json:"schedule_id"`
	BatchID    id.BatchID    `json:"batch_id"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
}

// Notifier receives one summary per resolved batch. Fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, s Summary)
}
