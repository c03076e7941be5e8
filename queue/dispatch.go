package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/job"
	"github.com/reelmill/conduct/provider"
)

// dispatchLoop fills free dispatch slots with pending jobs on each tick.
func (q *Queue) dispatchLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.dispatchDue()
		}
	}
}

func (q *Queue) dispatchDue() {
	ctx := context.Background()

	active, err := q.store.CountJobsByState(ctx, job.StateDispatched)
	if err != nil {
		q.logger.Error("count active jobs error", slog.String("error", err.Error()))
		return
	}

	free := q.concurrency - int(active)
	if free <= 0 {
		return
	}

	claimed, err := q.store.ClaimJobs(ctx, free)
	if err != nil {
		// Jobs claimed before the error already hold the dispatched
		// state and still need a submit, so fall through with them.
		q.logger.Error("claim jobs error", slog.String("error", err.Error()))
	}

	for _, j := range claimed {
		// Check the provider's dispatch budget. Saturated providers
		// return the job to the pending set with a small delay.
		if q.limits != nil && !q.limits.Acquire(j.Provider) {
			j.State = job.StateQueued
			j.RunAt = time.Now().UTC().Add(q.dispatchInterval)
			updateErr := q.store.UpdateJob(ctx, j)
			if updateErr != nil && !errors.Is(updateErr, conduct.ErrJobTerminal) {
				q.logger.Error("failed to return rate-limited job to queue",
					slog.String("job_id", j.ID.String()),
					slog.String("error", updateErr.Error()),
				)
			}
			continue
		}

		q.submit(ctx, j)
	}
}

// submit performs one dispatch attempt through the middleware chain.
// The provider slot acquired for the attempt is released by whichever
// path persists the transition out of the dispatched state.
func (q *Queue) submit(ctx context.Context, j *job.Job) {
	prov, err := q.providers.Get(j.Provider)
	if err != nil {
		q.retryOrFail(ctx, j, err)
		return
	}

	req := provider.Request{
		IdempotencyKey: j.IdempotencyKey,
		ContentType:    string(j.Spec.Type),
		Duration:       j.Spec.Duration,
		Style:          j.Spec.Style,
		MusicSync:      j.Spec.MusicSync,
	}

	var handle string
	attempt := func(ctx context.Context) error {
		h, submitErr := prov.Submit(ctx, req)
		if submitErr != nil {
			return submitErr
		}
		handle = h
		return nil
	}

	var attemptErr error
	if q.mw != nil {
		attemptErr = q.mw(ctx, j, attempt)
	} else {
		attemptErr = attempt(ctx)
	}
	if attemptErr != nil {
		q.retryOrFail(ctx, j, attemptErr)
		return
	}

	now := time.Now().UTC()
	j.Handle = handle
	j.StartedAt = &now
	j.Deadline = now.Add(q.dispatchTimeout)
	j.AdvanceProgress(job.ProgressDispatched)
	j.Touch(now)

	if updateErr := q.store.UpdateJob(ctx, j); updateErr != nil {
		if errors.Is(updateErr, conduct.ErrJobTerminal) {
			// Cancelled while the submit was in flight. The cancel path
			// had no handle to forward yet, so forward it now.
			if cancelErr := prov.Cancel(ctx, handle); cancelErr != nil {
				q.logger.Warn("provider cancel failed",
					slog.String("job_id", j.ID.String()),
					slog.String("provider", j.Provider),
					slog.String("error", cancelErr.Error()),
				)
			}
			return
		}
		q.logger.Error("failed to update job after submit",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return
	}

	q.hooks.EmitJobDispatched(ctx, j)
}

// pollLoop checks every dispatched job's provider status on each tick.
func (q *Queue) pollLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.pollDispatched()
		}
	}
}

func (q *Queue) pollDispatched() {
	ctx := context.Background()

	dispatched, err := q.store.ListJobsByState(ctx, job.StateDispatched)
	if err != nil {
		q.logger.Error("list dispatched jobs error", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, j := range dispatched {
		// The deadline wins over whatever the provider reports next:
		// late results must not resurrect a timed-out job.
		if !j.Deadline.IsZero() && now.After(j.Deadline) {
			q.failJob(ctx, j, conduct.ErrDeadlineExceeded)
			continue
		}

		prov, provErr := q.providers.Get(j.Provider)
		if provErr != nil {
			q.retryOrFail(ctx, j, provErr)
			continue
		}

		st, pollErr := prov.Poll(ctx, j.Handle)
		if pollErr != nil {
			// Transient: keep polling until the deadline decides.
			q.logger.Warn("poll error",
				slog.String("job_id", j.ID.String()),
				slog.String("provider", j.Provider),
				slog.String("error", pollErr.Error()),
			)
			continue
		}

		switch st.State {
		case provider.PollQueued:
			// Still waiting for the provider to pick it up.

		case provider.PollProcessing:
			j.AdvanceProgress(job.ProgressProcessing)
			j.Touch(now)
			updateErr := q.store.UpdateJob(ctx, j)
			if updateErr != nil && !errors.Is(updateErr, conduct.ErrJobTerminal) {
				q.logger.Error("failed to update job progress",
					slog.String("job_id", j.ID.String()),
					slog.String("error", updateErr.Error()),
				)
			}

		case provider.PollCompleted:
			if st.ResultURL == "" {
				q.retryOrFail(ctx, j, fmt.Errorf("%w: provider %s completed without a result URL",
					conduct.ErrInvalidRequest, j.Provider))
				continue
			}
			q.complete(ctx, j, st.ResultURL)

		case provider.PollFailed:
			q.retryOrFail(ctx, j, fmt.Errorf("%w: %s", conduct.ErrProviderUnavailable, st.Err))
		}
	}
}

// retryOrFail routes a failed dispatch attempt. With budget remaining,
// the job re-enters the queue after a backoff delay on the next provider
// in the fallback chain, with a fresh idempotency key. With the budget
// spent, the job fails terminally with the last error. The slot held for
// the attempt is released only once the transition persists; a stale
// outcome rejected by the store (the job already cancelled) leaves the
// release to the cancel path.
func (q *Queue) retryOrFail(ctx context.Context, j *job.Job, cause error) {
	j.LastError = cause.Error()

	if j.RetryCount >= j.MaxRetries {
		q.failJob(ctx, j, fmt.Errorf("%w: %s", conduct.ErrMaxRetriesExceeded, cause.Error()))
		return
	}

	now := time.Now().UTC()
	attempted := j.Provider

	j.RetryCount++
	j.Provider = q.chain.Next(attempted)
	j.IdempotencyKey = uuid.NewString()
	j.Handle = ""
	j.Deadline = time.Time{}
	j.State = job.StateRetrying

	delay := q.bo.Delay(j.RetryCount)
	j.RunAt = now.Add(delay)
	j.Touch(now)

	if updateErr := q.store.UpdateJob(ctx, j); updateErr != nil {
		if !errors.Is(updateErr, conduct.ErrJobTerminal) {
			q.logger.Error("failed to update job for retry",
				slog.String("job_id", j.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
		return
	}

	q.releaseSlot(attempted)
	q.hooks.EmitJobRetrying(ctx, j, j.RetryCount, j.RunAt)
	q.logger.Info("job scheduled for retry",
		slog.String("job_id", j.ID.String()),
		slog.String("failed_provider", attempted),
		slog.String("next_provider", j.Provider),
		slog.Int("attempt", j.RetryCount),
		slog.Int("max_retries", j.MaxRetries),
		slog.Duration("delay", delay),
	)
}

// failJob marks the job terminally failed with the given error.
func (q *Queue) failJob(ctx context.Context, j *job.Job, cause error) {
	now := time.Now().UTC()
	j.LastError = cause.Error()
	j.State = job.StateFailed
	j.CompletedAt = &now
	j.Touch(now)

	if updateErr := q.store.UpdateJob(ctx, j); updateErr != nil {
		if !errors.Is(updateErr, conduct.ErrJobTerminal) {
			q.logger.Error("failed to update job as failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", updateErr.Error()),
			)
		}
		return
	}

	q.releaseSlot(j.Provider)
	q.hooks.EmitJobFailed(ctx, j, cause)
	q.logger.Warn("job failed",
		slog.String("job_id", j.ID.String()),
		slog.String("provider", j.Provider),
		slog.Int("retry_count", j.RetryCount),
		slog.String("error", cause.Error()),
		slog.Bool("timeout", errors.Is(cause, conduct.ErrDeadlineExceeded)),
	)
}

// complete drives the raw asset through the pipeline and marks the job
// completed with its result attached.
func (q *Queue) complete(ctx context.Context, j *job.Job, rawURL string) {
	var res *job.Result
	if q.pipe != nil {
		processed, err := q.pipe.Process(ctx, j, rawURL)
		if err != nil {
			q.failJob(ctx, j, fmt.Errorf("pipeline: %w", err))
			return
		}
		res = processed
	} else {
		res = &job.Result{AssetURL: rawURL}
	}

	now := time.Now().UTC()
	j.Result = res
	j.State = job.StateCompleted
	j.AdvanceProgress(job.ProgressCompleted)
	j.CompletedAt = &now
	j.Touch(now)

	if updateErr := q.store.UpdateJob(ctx, j); updateErr != nil {
		if errors.Is(updateErr, conduct.ErrJobTerminal) {
			// Cancelled while the result was in flight: the cancelled
			// state stays, and this result is discarded.
			q.logger.Info("discarding late result for terminal job",
				slog.String("job_id", j.ID.String()),
				slog.String("provider", j.Provider),
			)
			return
		}
		q.logger.Error("failed to update job after completion",
			slog.String("job_id", j.ID.String()),
			slog.String("error", updateErr.Error()),
		)
		return
	}

	q.releaseSlot(j.Provider)
	elapsed := now.Sub(j.QueuedAt)
	q.hooks.EmitJobCompleted(ctx, j, elapsed)
	q.logger.Info("job completed",
		slog.String("job_id", j.ID.String()),
		slog.String("provider", j.Provider),
		slog.String("asset_url", res.AssetURL),
		slog.Bool("below_threshold", res.BelowThreshold),
		slog.Duration("elapsed", elapsed),
	)
}
