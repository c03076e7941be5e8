package job

import (
	"context"

	"github.com/reelmill/conduct/id"
)

// Store defines the persistence contract for jobs.
type Store interface {
	// EnqueueJob persists a new job in queued state and assigns its Seq.
	EnqueueJob(ctx context.Context, j *Job) error

	// ClaimJobs atomically claims up to limit due jobs (queued, or
	// retrying with RunAt reached), marks them dispatched, and returns
	// them. Ordering: priority descending, then Seq ascending (FIFO
	// within a tier).
	ClaimJobs(ctx context.Context, limit int) ([]*Job, error)

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob persists changes to an existing job. Terminal states are
	// final: if the stored job has already reached one, the update is
	// rejected with ErrJobTerminal so a stale writer cannot resurrect a
	// finished or cancelled job.
	UpdateJob(ctx context.Context, j *Job) error

	// ListJobsByState returns jobs in the given state.
	ListJobsByState(ctx context.Context, state State) ([]*Job, error)

	// CountJobsByState returns the number of jobs in the given state.
	CountJobsByState(ctx context.Context, state State) (int64, error)
}
