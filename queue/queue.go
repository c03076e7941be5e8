package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/backoff"
	"github.com/reelmill/conduct/hook"
	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
	"github.com/reelmill/conduct/middleware"
	"github.com/reelmill/conduct/pipeline"
	"github.com/reelmill/conduct/provider"
)

// Queue owns job records and drives them through the dispatch state
// machine. Create one with New, then Start it.
type Queue struct {
	store     job.Store
	providers *provider.Registry
	chain     *provider.Chain
	pipe      *pipeline.Pipeline
	limits    *Limits
	hooks     *hook.Registry
	bo        backoff.Strategy
	mw        middleware.Middleware
	logger    *slog.Logger

	concurrency      int
	maxRetries       int
	dispatchInterval time.Duration
	pollInterval     time.Duration
	dispatchTimeout  time.Duration

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// Option configures a Queue.
type Option func(*Queue)

// WithPipeline sets the content pipeline applied to completed raw assets.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(q *Queue) { q.pipe = p }
}

// WithLimits sets the per-provider dispatch budget manager.
func WithLimits(l *Limits) Option {
	return func(q *Queue) { q.limits = l }
}

// WithHooks sets the lifecycle extension registry.
func WithHooks(h *hook.Registry) Option {
	return func(q *Queue) { q.hooks = h }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(b backoff.Strategy) Option {
	return func(q *Queue) { q.bo = b }
}

// WithMiddleware adds middleware around each dispatch attempt.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(q *Queue) { q.mw = middleware.Chain(mws...) }
}

// WithLogger sets the queue logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithConcurrency sets the global limit on simultaneously dispatched jobs.
func WithConcurrency(n int) Option {
	return func(q *Queue) { q.concurrency = n }
}

// WithMaxRetries sets the retry budget assigned to each job at enqueue.
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// WithDispatchInterval sets how often the queue looks for pending jobs.
func WithDispatchInterval(d time.Duration) Option {
	return func(q *Queue) { q.dispatchInterval = d }
}

// WithPollInterval sets how often dispatched jobs are polled.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) { q.pollInterval = d }
}

// WithDispatchTimeout sets the wall-clock deadline per dispatch attempt.
func WithDispatchTimeout(d time.Duration) Option {
	return func(q *Queue) { q.dispatchTimeout = d }
}

// New creates a Queue. The store, provider registry, and fallback chain
// are required; everything else has defaults from conduct.DefaultConfig.
func New(store job.Store, providers *provider.Registry, chain *provider.Chain, opts ...Option) *Queue {
	cfg := conduct.DefaultConfig()
	q := &Queue{
		store:            store,
		providers:        providers,
		chain:            chain,
		hooks:            hook.NewRegistry(nil),
		bo:               backoff.Default(),
		logger:           slog.Default(),
		concurrency:      cfg.Concurrency,
		maxRetries:       cfg.MaxRetries,
		dispatchInterval: cfg.DispatchInterval,
		pollInterval:     cfg.PollInterval,
		dispatchTimeout:  cfg.DispatchTimeout,
		stopCh:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the dispatch and poll loops. It returns immediately.
func (q *Queue) Start(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil
	}
	q.running = true

	q.wg.Add(2)
	go q.dispatchLoop()
	go q.pollLoop()

	q.logger.Info("queue started",
		slog.Int("concurrency", q.concurrency),
		slog.Duration("poll_interval", q.pollInterval),
	)
	return nil
}

// Stop signals the loops to stop and waits for them to finish.
func (q *Queue) Stop(_ context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	q.running = false
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()
	q.logger.Info("queue stopped")
	return nil
}

// Enqueue validates the spec, wraps it in a job record, and adds it to
// the pending set. The returned ID is the caller's handle for status
// queries and cancellation.
func (q *Queue) Enqueue(ctx context.Context, spec job.Spec) (id.JobID, error) {
	if err := spec.Validate(); err != nil {
		return id.Nil, err
	}
	if !q.providers.Has(spec.Provider) {
		return id.Nil, fmt.Errorf("%w: %q", conduct.ErrUnknownProvider, spec.Provider)
	}

	j := q.newJob(spec, id.Nil)
	if err := q.store.EnqueueJob(ctx, j); err != nil {
		return id.Nil, fmt.Errorf("queue: enqueue: %w", err)
	}

	q.hooks.EmitJobEnqueued(ctx, j)
	q.logger.Info("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("content_type", string(spec.Type)),
		slog.String("provider", spec.Provider),
		slog.Int("priority", j.Priority),
	)
	return j.ID, nil
}

// BatchOption configures EnqueueBatch.
type BatchOption func(*batchOptions)

type batchOptions struct {
	batchID id.BatchID
}

// WithBatchID tags every job in the batch with the given batch ID.
func WithBatchID(batchID id.BatchID) BatchOption {
	return func(o *batchOptions) { o.batchID = batchID }
}

// EnqueueBatch enqueues a group of specs together. Specs are grouped by
// requested provider internally, so jobs sharing a provider land in the
// pending set back to back and make better use of that provider's rate
// window. The returned IDs are in caller-supplied order regardless of
// grouping. Validation is all-or-nothing: one bad spec rejects the batch.
func (q *Queue) EnqueueBatch(ctx context.Context, specs []job.Spec, opts ...BatchOption) ([]id.JobID, error) {
	var bo batchOptions
	for _, opt := range opts {
		opt(&bo)
	}

	for i, spec := range specs {
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("spec %d: %w", i, err)
		}
		if !q.providers.Has(spec.Provider) {
			return nil, fmt.Errorf("spec %d: %w: %q", i, conduct.ErrUnknownProvider, spec.Provider)
		}
	}

	jobs := make([]*job.Job, len(specs))
	for i, spec := range specs {
		jobs[i] = q.newJob(spec, bo.batchID)
	}

	// Group indices by provider before persisting.
	byProvider := make(map[string][]int)
	order := make([]string, 0, 4)
	for i, spec := range specs {
		if _, seen := byProvider[spec.Provider]; !seen {
			order = append(order, spec.Provider)
		}
		byProvider[spec.Provider] = append(byProvider[spec.Provider], i)
	}

	for _, prov := range order {
		for _, i := range byProvider[prov] {
			if err := q.store.EnqueueJob(ctx, jobs[i]); err != nil {
				return nil, fmt.Errorf("queue: enqueue batch: %w", err)
			}
			q.hooks.EmitJobEnqueued(ctx, jobs[i])
		}
	}

	ids := make([]id.JobID, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}

	q.logger.Info("batch enqueued",
		slog.Int("jobs", len(ids)),
		slog.String("batch_id", bo.batchID.String()),
	)
	return ids, nil
}

// newJob builds the runtime record for a spec.
func (q *Queue) newJob(spec job.Spec, batchID id.BatchID) *job.Job {
	now := time.Now().UTC()
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = now
	}

	j := &job.Job{
		ID:             id.NewJobID(),
		BatchID:        batchID,
		Spec:           spec,
		State:          job.StateQueued,
		Provider:       spec.Provider,
		IdempotencyKey: uuid.NewString(),
		Priority:       job.EffectivePriority(spec),
		MaxRetries:     q.maxRetries,
		Progress:       job.ProgressQueued,
		RunAt:          now,
		QueuedAt:       now,
	}
	j.Touch(now)
	return j
}

// Status answers a caller's query about a job.
func (q *Queue) Status(ctx context.Context, jobID id.JobID) (job.Status, error) {
	j, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		return job.Status{}, err
	}

	return job.Status{
		ID:       j.ID,
		State:    j.State,
		Progress: j.Progress,
		Provider: j.Provider,
		Result:   j.Result,
		Error:    j.LastError,
	}, nil
}

// Cancel removes a job from future dispatch and poll cycles. Returns
// true if the job was not yet terminal. A dispatched job's cancellation
// is forwarded to the provider best-effort; a late completed poll after
// cancellation is discarded, not resurrected. The cancelled state is
// persisted before any side effect, so a poll racing this call loses at
// the store and cannot resurrect the job or double-release its slot.
func (q *Queue) Cancel(ctx context.Context, jobID id.JobID) (bool, error) {
	j, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if j.State.Terminal() {
		return false, nil
	}

	wasDispatched := j.State == job.StateDispatched
	handle := j.Handle

	now := time.Now().UTC()
	j.State = job.StateCancelled
	j.CompletedAt = &now
	j.Touch(now)
	if err := q.store.UpdateJob(ctx, j); err != nil {
		if errors.Is(err, conduct.ErrJobTerminal) {
			// Lost the race: the poll loop finished the job first.
			return false, nil
		}
		return false, fmt.Errorf("queue: cancel: %w", err)
	}

	if wasDispatched {
		q.releaseSlot(j.Provider)
		if prov, provErr := q.providers.Get(j.Provider); provErr == nil && handle != "" {
			if cancelErr := prov.Cancel(ctx, handle); cancelErr != nil {
				q.logger.Warn("provider cancel failed",
					slog.String("job_id", j.ID.String()),
					slog.String("provider", j.Provider),
					slog.String("error", cancelErr.Error()),
				)
			}
		}
	}

	q.hooks.EmitJobCancelled(ctx, j)
	q.logger.Info("job cancelled", slog.String("job_id", j.ID.String()))
	return true, nil
}

// Stats summarizes queue occupancy.
func (q *Queue) Stats(ctx context.Context) (job.Stats, error) {
	var s job.Stats

	for _, st := range []struct {
		state job.State
		dst   *int64
	}{
		{job.StateQueued, &s.Waiting},
		{job.StateRetrying, &s.Waiting},
		{job.StateDispatched, &s.Active},
		{job.StateCompleted, &s.Completed},
		{job.StateFailed, &s.Failed},
	} {
		n, err := q.store.CountJobsByState(ctx, st.state)
		if err != nil {
			return job.Stats{}, fmt.Errorf("queue: stats: %w", err)
		}
		*st.dst += n
	}
	return s, nil
}

// releaseSlot returns a provider dispatch slot, if limits are configured.
func (q *Queue) releaseSlot(providerName string) {
	if q.limits != nil {
		q.limits.Release(providerName)
	}
}
