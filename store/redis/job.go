package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
)

// updateJobScript writes the job hash only while the stored state is
// non-terminal. State names must match job.State values. Returns 0 when
// the write was refused.
var updateJobScript = goredis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == 'completed' or state == 'failed' or state == 'cancelled' then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// EnqueueJob stores the job as a Hash, assigns its Seq from a counter,
// and adds it to the pending Sorted Set.
func (s *Store) EnqueueJob(ctx context.Context, j *job.Job) error {
	if err := s.guard(); err != nil {
		return err
	}

	jID := j.ID.String()
	key := jobKey(jID)

	// Check for duplicate.
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("conduct/redis: enqueue check exists: %w", err)
	}
	if exists > 0 {
		return conduct.ErrJobAlreadyExists
	}

	seq, err := s.client.Incr(ctx, jobSeqKey).Result()
	if err != nil {
		return fmt.Errorf("conduct/redis: enqueue seq: %w", err)
	}
	j.Seq = seq

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, jobToMap(j))
	pipe.SAdd(ctx, jobIDsKey, jID)
	pipe.ZAdd(ctx, pendingKey, goredis.Z{Score: jobScore(j.Priority, j.Seq), Member: jID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conduct/redis: enqueue job: %w", err)
	}
	return nil
}

// ClaimJobs atomically pops up to limit due jobs from the pending set
// and marks them dispatched. Jobs whose RunAt has not arrived are put
// back untouched.
func (s *Store) ClaimJobs(ctx context.Context, limit int) ([]*job.Job, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now().UTC()

	// Lowest score = highest priority, earliest Seq.
	members, err := s.client.ZPopMin(ctx, pendingKey, int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("conduct/redis: claim zpopmin: %w", err)
	}

	// Members are removed from the pending set the moment they are
	// popped. A mid-loop error must put the unprocessed remainder back,
	// or those jobs would sit queued but unclaimable forever. Already
	// claimed jobs are returned alongside the error so the caller can
	// still dispatch them.
	var claimed []*job.Job
	for i, z := range members {
		jID, ok := z.Member.(string)
		if !ok {
			continue
		}

		key := jobKey(jID)
		j, getErr := s.getJobByKey(ctx, key)
		if errors.Is(getErr, conduct.ErrJobNotFound) {
			continue // hash gone, drop the stale pending entry
		}
		if getErr != nil {
			s.restorePending(ctx, members[i:])
			return claimed, fmt.Errorf("conduct/redis: claim get: %w", getErr)
		}

		if !j.RunAt.IsZero() && j.RunAt.After(now) {
			// Backoff delay still running. Put it back for a later claim.
			if err := s.client.ZAdd(ctx, pendingKey, goredis.Z{Score: z.Score, Member: jID}).Err(); err != nil {
				s.restorePending(ctx, members[i:])
				return claimed, fmt.Errorf("conduct/redis: claim requeue: %w", err)
			}
			continue
		}

		j.State = job.StateDispatched
		j.UpdatedAt = now
		if err := s.client.HSet(ctx, key,
			"state", string(job.StateDispatched),
			"updated_at", now.Format(time.RFC3339Nano),
		).Err(); err != nil {
			s.restorePending(ctx, members[i:])
			return claimed, fmt.Errorf("conduct/redis: claim update: %w", err)
		}
		claimed = append(claimed, j)
	}
	return claimed, nil
}

// restorePending puts popped-but-unprocessed members back in the
// pending set, keeping their original scores. Best effort.
func (s *Store) restorePending(ctx context.Context, members []goredis.Z) {
	if len(members) == 0 {
		return
	}
	if err := s.client.ZAdd(ctx, pendingKey, members...).Err(); err != nil {
		s.logger.Error("restore pending jobs error",
			slog.Int("members", len(members)),
			slog.String("error", err.Error()),
		)
	}
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// UpdateJob persists changes to an existing job and keeps the pending
// set in sync with the job's state. The hash write runs through a Lua
// script that refuses to touch a job whose stored state is already
// terminal, so a stale writer gets ErrJobTerminal instead of
// resurrecting a finished or cancelled job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	if err := s.guard(); err != nil {
		return err
	}

	jID := j.ID.String()
	key := jobKey(jID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("conduct/redis: update job exists: %w", err)
	}
	if exists == 0 {
		return conduct.ErrJobNotFound
	}

	fields := jobToMap(j)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}

	written, err := updateJobScript.Run(ctx, s.client, []string{key}, args...).Int()
	if err != nil {
		return fmt.Errorf("conduct/redis: update job: %w", err)
	}
	if written == 0 {
		return conduct.ErrJobTerminal
	}

	switch j.State {
	case job.StateQueued, job.StateRetrying:
		err = s.client.ZAdd(ctx, pendingKey, goredis.Z{Score: jobScore(j.Priority, j.Seq), Member: jID}).Err()
	default:
		err = s.client.ZRem(ctx, pendingKey, jID).Err()
	}
	if err != nil {
		return fmt.Errorf("conduct/redis: update job pending set: %w", err)
	}
	return nil
}

// ListJobsByState returns jobs matching the given state.
func (s *Store) ListJobsByState(ctx context.Context, state job.State) ([]*job.Job, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("conduct/redis: list jobs smembers: %w", err)
	}

	var jobs []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		if j.State != state {
			continue
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountJobsByState returns the number of jobs in the given state.
func (s *Store) CountJobsByState(ctx context.Context, state job.State) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("conduct/redis: count smembers: %w", err)
	}

	var count int64
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue
		}
		if j.State == state {
			count++
		}
	}
	return count, nil
}

// ── helpers ──

// jobScore computes a sorted-set score. Lower score = claimed first.
// Priority is negated so higher priority sorts first; the Seq fraction
// keeps FIFO order within a tier.
func jobScore(priority int, seq int64) float64 {
	return float64(-priority) + float64(seq)/1e12
}

func jobToMap(j *job.Job) map[string]interface{} {
	m := map[string]interface{}{
		"id":              j.ID.String(),
		"spec":            marshalJSON(j.Spec),
		"state":           string(j.State),
		"provider":        j.Provider,
		"handle":          j.Handle,
		"idempotency_key": j.IdempotencyKey,
		"priority":        strconv.Itoa(j.Priority),
		"seq":             strconv.FormatInt(j.Seq, 10),
		"max_retries":     strconv.Itoa(j.MaxRetries),
		"retry_count":     strconv.Itoa(j.RetryCount),
		"last_error":      j.LastError,
		"progress":        strconv.Itoa(j.Progress),
		"run_at":          j.RunAt.Format(time.RFC3339Nano),
		"queued_at":       j.QueuedAt.Format(time.RFC3339Nano),
		"created_at":      j.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":      j.UpdatedAt.Format(time.RFC3339Nano),
	}
	if !j.BatchID.IsNil() {
		m["batch_id"] = j.BatchID.String()
	}
	if !j.Deadline.IsZero() {
		m["deadline"] = j.Deadline.Format(time.RFC3339Nano)
	} else {
		m["deadline"] = ""
	}
	if j.StartedAt != nil {
		m["started_at"] = j.StartedAt.Format(time.RFC3339Nano)
	}
	if j.CompletedAt != nil {
		m["completed_at"] = j.CompletedAt.Format(time.RFC3339Nano)
	}
	if j.Result != nil {
		m["result"] = marshalJSON(j.Result)
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("conduct/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, conduct.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("conduct/redis: parse job id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])          //nolint:errcheck // best-effort parse from trusted Redis data
	seq, _ := strconv.ParseInt(m["seq"], 10, 64)        //nolint:errcheck // best-effort parse from trusted Redis data
	maxRetries, _ := strconv.Atoi(m["max_retries"])     //nolint:errcheck // best-effort parse from trusted Redis data
	retryCount, _ := strconv.Atoi(m["retry_count"])     //nolint:errcheck // best-effort parse from trusted Redis data
	progress, _ := strconv.Atoi(m["progress"])          //nolint:errcheck // best-effort parse from trusted Redis data
	runAt, _ := time.Parse(time.RFC3339Nano, m["run_at"])         //nolint:errcheck // best-effort parse from trusted Redis data
	queuedAt, _ := time.Parse(time.RFC3339Nano, m["queued_at"])   //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	var spec job.Spec
	_ = json.Unmarshal([]byte(m["spec"]), &spec) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: conduct.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:             jID,
		Spec:           spec,
		State:          job.State(m["state"]),
		Provider:       m["provider"],
		Handle:         m["handle"],
		IdempotencyKey: m["idempotency_key"],
		Priority:       priority,
		Seq:            seq,
		MaxRetries:     maxRetries,
		RetryCount:     retryCount,
		LastError:      m["last_error"],
		Progress:       progress,
		RunAt:          runAt,
		QueuedAt:       queuedAt,
	}

	if v := m["batch_id"]; v != "" {
		j.BatchID, _ = id.ParseBatchID(v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["deadline"]; v != "" {
		j.Deadline, _ = time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}
	if v := m["result"]; v != "" {
		var r job.Result
		if json.Unmarshal([]byte(v), &r) == nil {
			j.Result = &r
		}
	}

	return j, nil
}

// marshalJSON is a helper to marshal to JSON string.
func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v) //nolint:errcheck // marshal should not fail for basic types
	return string(b)
}
