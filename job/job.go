package job

import (
	"time"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateQueued means the job is waiting for a dispatch slot.
	StateQueued State = "queued"
	// StateDispatched means the job has been submitted to a provider and
	// is being polled for completion.
	StateDispatched State = "dispatched"
	// StateCompleted means the provider finished and the result passed
	// through the pipeline. Terminal.
	StateCompleted State = "completed"
	// StateFailed means the job exhausted its retries or timed out. Terminal.
	StateFailed State = "failed"
	// StateRetrying means the last dispatch attempt failed and the job is
	// waiting out its backoff delay before re-entering the queue.
	StateRetrying State = "retrying"
	// StateCancelled means the job was explicitly cancelled. Terminal.
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Progress milestones driven by dispatch state.
const (
	ProgressQueued     = 0
	ProgressDispatched = 10
	ProgressProcessing = 50
	ProgressCompleted  = 100
)

// Job is the mutable runtime record wrapping a Spec. It is owned
// exclusively by the queue; other components hold IDs and query state.
type Job struct {
	conduct.Entity

	ID      id.JobID   `json:"id"`
	BatchID id.BatchID `json:"batch_id,omitempty"`
	Spec    Spec       `json:"spec"`
	State   State      `json:"state"`

	// Provider is the backend the current (or next) dispatch attempt
	// targets. Starts as Spec.Provider and walks the fallback chain on
	// each retry.
	Provider string `json:"provider"`

	// Handle is the provider-side identifier for the submitted work.
	Handle string `json:"handle,omitempty"`

	// IdempotencyKey dedupes provider submissions. Regenerated for each
	// dispatch attempt.
	IdempotencyKey string `json:"idempotency_key"`

	// Priority is the effective dispatch priority (1–10, higher first).
	Priority int `json:"priority"`

	// Seq orders jobs FIFO within a priority tier.
	Seq int64 `json:"seq"`

	MaxRetries int    `json:"max_retries"`
	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`

	// Progress is a monotonically non-decreasing 0–100 value.
	Progress int `json:"progress"`

	// RunAt defers dispatch until the given time (retry backoff).
	RunAt time.Time `json:"run_at"`

	// Deadline is the wall-clock limit for the current dispatch attempt.
	Deadline time.Time `json:"deadline,omitempty"`

	QueuedAt    time.Time  `json:"queued_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result is attached once the pipeline has processed the raw asset.
	// Only ever set on completed jobs.
	Result *Result `json:"result,omitempty"`
}

// AdvanceProgress raises Progress to p. Lower values are ignored so
// progress never moves backwards, including across retries.
func (j *Job) AdvanceProgress(p int) {
	if p > j.Progress {
		j.Progress = p
	}
}

// Status is the caller-facing view of a job, answered by the queue.
type Status struct {
	ID       id.JobID `json:"id"`
	State    State    `json:"state"`
	Progress int      `json:"progress"`
	Provider string   `json:"provider"`
	Result   *Result  `json:"result,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Stats summarizes queue occupancy by state bucket.
type Stats struct {
	Waiting   int64 `json:"waiting"` // queued + retrying
	Active    int64 `json:"active"`  // dispatched
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
