package conduct

import "time"

// Config holds tuning knobs for the orchestration engine.
type Config struct {
	// Concurrency is the maximum number of jobs in the dispatched state
	// at once, across all providers.
	Concurrency int

	// MaxRetries is the default retry budget per job. Each retry moves
	// the job to the next provider in the fallback chain.
	MaxRetries int

	// DispatchInterval is how often the queue looks for pending jobs to
	// dispatch into free slots.
	DispatchInterval time.Duration

	// PollInterval is how often the queue polls providers for the status
	// of dispatched jobs.
	PollInterval time.Duration

	// DispatchTimeout is the wall-clock deadline for a dispatched job.
	// A job with no terminal provider status by then is force-failed.
	DispatchTimeout time.Duration

	// TickInterval is how often the scheduler checks for due schedules.
	TickInterval time.Duration

	// MonitorInterval is how often the scheduler re-checks open batches
	// for resolution.
	MonitorInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:      5,
		MaxRetries:       3,
		DispatchInterval: 500 * time.Millisecond,
		PollInterval:     10 * time.Second,
		DispatchTimeout:  10 * time.Minute,
		TickInterval:     1 * time.Second,
		MonitorInterval:  5 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}
