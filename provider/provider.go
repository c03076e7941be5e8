package provider

import "context"

// PollState is the provider-side status of submitted work.
type PollState string

const (
	// PollQueued means the provider accepted the work but has not
	// started it.
	PollQueued PollState = "queued"
	// PollProcessing means generation is underway.
	PollProcessing PollState = "processing"
	// PollCompleted means generation finished and a result URL is
	// available.
	PollCompleted PollState = "completed"
	// PollFailed means the provider gave up on the work.
	PollFailed PollState = "failed"
)

// Request describes one generation submission.
type Request struct {
	// IdempotencyKey dedupes resubmissions of the same attempt. The
	// queue generates a fresh key per dispatch attempt.
	IdempotencyKey string

	ContentType string
	Duration    int // seconds
	Style       string
	MusicSync   bool
}

// Status is the answer to a poll.
type Status struct {
	State PollState

	// ResultURL is the raw generated asset. Set only when State is
	// PollCompleted.
	ResultURL string

	// Err describes the failure when State is PollFailed.
	Err string
}

// Provider is the uniform capability wrapping one external generation
// backend. Implementations must be safe for concurrent use.
type Provider interface {
	// Submit starts generation and returns the provider-side handle.
	// Fails with conduct.ErrProviderUnavailable or conduct.ErrInvalidRequest
	// (wrapped). Safe to retry: callers dedupe by Request.IdempotencyKey.
	Submit(ctx context.Context, req Request) (handle string, err error)

	// Poll reports the status of previously submitted work. It must not
	// block; the caller schedules repeated polls.
	Poll(ctx context.Context, handle string) (Status, error)

	// Cancel asks the provider to stop work. Best effort: provider-side
	// completion (and billing) is not guaranteed to be prevented.
	Cancel(ctx context.Context, handle string) error
}
