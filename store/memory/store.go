// Package memory provides a fully in-memory implementation of
// store.Store. Safe for concurrent access. Intended for unit testing
// and single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
	"github.com/reelmill/conduct/schedule"
)

// Compile-time checks against each subsystem contract. The composite
// store.Store interface is asserted in the engine, which imports both.
var (
	_ job.Store      = (*Store)(nil)
	_ schedule.Store = (*Store)(nil)
)

// Store is a mutex-guarded in-memory store.
type Store struct {
	mu     sync.RWMutex
	closed bool

	jobs      map[string]*job.Job
	schedules map[string]*schedule.Config
	batches   map[string]*schedule.Batch

	// seq orders jobs FIFO within a priority tier.
	seq int64
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:      make(map[string]*job.Job),
		schedules: make(map[string]*schedule.Config),
		batches:   make(map[string]*schedule.Batch),
	}
}

// Ping reports whether the store is usable.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return conduct.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Every operation afterwards returns
// ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// EnqueueJob persists a new job in queued state and assigns its Seq.
func (m *Store) EnqueueJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return conduct.ErrStoreClosed
	}

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return conduct.ErrJobAlreadyExists
	}

	m.seq++
	j.Seq = m.seq

	cp := *j
	m.jobs[key] = &cp
	return nil
}

// ClaimJobs atomically claims up to limit due jobs, marks them
// dispatched, and returns them ordered by priority (descending) then
// Seq (ascending).
func (m *Store) ClaimJobs(_ context.Context, limit int) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, conduct.ErrStoreClosed
	}

	now := time.Now().UTC()

	candidates := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if j.State != job.StateQueued && j.State != job.StateRetrying {
			continue
		}
		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			continue
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Priority != candidates[b].Priority {
			return candidates[a].Priority > candidates[b].Priority
		}
		return candidates[a].Seq < candidates[b].Seq
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]*job.Job, 0, len(candidates))
	for _, j := range candidates {
		j.State = job.StateDispatched
		j.UpdatedAt = now

		cp := *j
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, conduct.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, conduct.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// UpdateJob persists changes to an existing job. A job whose stored
// state is already terminal is never overwritten: the caller holds a
// stale copy and its outcome is discarded with ErrJobTerminal.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return conduct.ErrStoreClosed
	}

	key := j.ID.String()
	existing, ok := m.jobs[key]
	if !ok {
		return conduct.ErrJobNotFound
	}
	if existing.State.Terminal() {
		return conduct.ErrJobTerminal
	}
	cp := *j
	m.jobs[key] = &cp
	return nil
}

// ListJobsByState returns jobs in the given state, ordered by Seq.
func (m *Store) ListJobsByState(_ context.Context, state job.State) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, conduct.ErrStoreClosed
	}

	var out []*job.Job
	for _, j := range m.jobs {
		if j.State != state {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Seq < out[b].Seq })
	return out, nil
}

// CountJobsByState returns the number of jobs in the given state.
func (m *Store) CountJobsByState(_ context.Context, state job.State) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, conduct.ErrStoreClosed
	}

	var n int64
	for _, j := range m.jobs {
		if j.State == state {
			n++
		}
	}
	return n, nil
}

// CreateSchedule persists a new schedule config.
func (m *Store) CreateSchedule(_ context.Context, cfg *schedule.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return conduct.ErrStoreClosed
	}

	key := cfg.ID.String()
	if _, exists := m.schedules[key]; exists {
		return conduct.ErrDuplicateSchedule
	}
	cp := cloneSchedule(cfg)
	m.schedules[key] = cp
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (m *Store) GetSchedule(_ context.Context, scheduleID id.ScheduleID) (*schedule.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, conduct.ErrStoreClosed
	}

	cfg, ok := m.schedules[scheduleID.String()]
	if !ok {
		return nil, conduct.ErrScheduleNotFound
	}
	return cloneSchedule(cfg), nil
}

// ListSchedules returns all schedule configs.
func (m *Store) ListSchedules(_ context.Context) ([]*schedule.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, conduct.ErrStoreClosed
	}

	out := make([]*schedule.Config, 0, len(m.schedules))
	for _, cfg := range m.schedules {
		out = append(out, cloneSchedule(cfg))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

// UpdateSchedule persists changes to an existing schedule.
func (m *Store) UpdateSchedule(_ context.Context, cfg *schedule.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return conduct.ErrStoreClosed
	}

	key := cfg.ID.String()
	if _, ok := m.schedules[key]; !ok {
		return conduct.ErrScheduleNotFound
	}
	m.schedules[key] = cloneSchedule(cfg)
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (m *Store) DeleteSchedule(_ context.Context, scheduleID id.ScheduleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return conduct.ErrStoreClosed
	}

	key := scheduleID.String()
	if _, ok := m.schedules[key]; !ok {
		return conduct.ErrScheduleNotFound
	}
	delete(m.schedules, key)
	return nil
}

// PutBatch persists a batch record.
func (m *Store) PutBatch(_ context.Context, b *schedule.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return conduct.ErrStoreClosed
	}

	m.batches[b.ID.String()] = cloneBatch(b)
	return nil
}

// ListBatches returns all unresolved batches.
func (m *Store) ListBatches(_ context.Context) ([]*schedule.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, conduct.ErrStoreClosed
	}

	out := make([]*schedule.Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

// DeleteBatch removes a resolved batch.
func (m *Store) DeleteBatch(_ context.Context, batchID id.BatchID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return conduct.ErrStoreClosed
	}

	key := batchID.String()
	if _, ok := m.batches[key]; !ok {
		return conduct.ErrBatchNotFound
	}
	delete(m.batches, key)
	return nil
}

// cloneSchedule deep-copies the slices a caller could otherwise mutate.
func cloneSchedule(cfg *schedule.Config) *schedule.Config {
	cp := *cfg
	cp.Templates = append([]schedule.Template(nil), cfg.Templates...)
	cp.Platforms = append([]string(nil), cfg.Platforms...)
	return &cp
}

func cloneBatch(b *schedule.Batch) *schedule.Batch {
	cp := *b
	cp.JobIDs = append([]id.JobID(nil), b.JobIDs...)
	cp.Platforms = append([]string(nil), b.Platforms...)
	return &cp
}
