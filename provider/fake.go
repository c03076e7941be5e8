package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/reelmill/conduct"
)

// Fake is a scriptable in-memory provider for tests and local runs.
// Submitted work completes after CompleteAfterPolls polls with a
// deterministic result URL, unless scripted to fail or stall.
type Fake struct {
	// Name labels the fake in result URLs.
	Name string

	// FailSubmits makes the first n Submit calls fail with
	// conduct.ErrProviderUnavailable. Negative means fail forever.
	FailSubmits int

	// FailPolls makes every submitted work item report PollFailed.
	FailPolls bool

	// NeverComplete keeps every poll answering PollProcessing.
	NeverComplete bool

	// CompleteAfterPolls is how many polls a work item answers
	// PollProcessing before completing. Zero completes on the first poll.
	CompleteAfterPolls int

	mu        sync.Mutex
	submits   int
	polls     map[string]int
	cancelled map[string]bool
}

var _ Provider = (*Fake)(nil)

// NewFake creates a fake provider that completes on the second poll.
func NewFake(name string) *Fake {
	return &Fake{
		Name:               name,
		CompleteAfterPolls: 1,
		polls:              make(map[string]int),
		cancelled:          make(map[string]bool),
	}
}

// Submit returns a synthetic handle, or the scripted failure.
func (f *Fake) Submit(_ context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.submits++
	if f.FailSubmits < 0 || f.submits <= f.FailSubmits {
		return "", fmt.Errorf("%w: %s rejected submit %d", conduct.ErrProviderUnavailable, f.Name, f.submits)
	}

	handle := fmt.Sprintf("%s-handle-%d-%s", f.Name, f.submits, req.IdempotencyKey)
	if f.polls == nil {
		f.polls = make(map[string]int)
	}
	f.polls[handle] = 0
	return handle, nil
}

// Poll walks the scripted status progression for handle.
func (f *Fake) Poll(_ context.Context, handle string) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailPolls {
		return Status{State: PollFailed, Err: f.Name + ": generation failed"}, nil
	}
	if f.NeverComplete {
		return Status{State: PollProcessing}, nil
	}

	n := f.polls[handle]
	f.polls[handle] = n + 1

	if n < f.CompleteAfterPolls {
		return Status{State: PollProcessing}, nil
	}
	return Status{
		State:     PollCompleted,
		ResultURL: fmt.Sprintf("https://assets.%s.example/%s.mp4", f.Name, handle),
	}, nil
}

// Cancel records the cancellation.
func (f *Fake) Cancel(_ context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelled == nil {
		f.cancelled = make(map[string]bool)
	}
	f.cancelled[handle] = true
	return nil
}

// Submits returns how many Submit calls the fake has seen.
func (f *Fake) Submits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

// Cancelled reports whether Cancel was called for handle.
func (f *Fake) Cancelled(handle string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[handle]
}
