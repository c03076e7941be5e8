package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/schedule"
)

// CreateSchedule stores the schedule config as a Hash.
func (s *Store) CreateSchedule(ctx context.Context, cfg *schedule.Config) error {
	if err := s.guard(); err != nil {
		return err
	}

	sID := cfg.ID.String()
	key := scheduleKey(sID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("conduct/redis: create schedule exists: %w", err)
	}
	if exists > 0 {
		return conduct.ErrDuplicateSchedule
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, scheduleToMap(cfg))
	pipe.SAdd(ctx, scheduleIDsKey, sID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conduct/redis: create schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID.
func (s *Store) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*schedule.Config, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	return s.getScheduleByKey(ctx, scheduleKey(scheduleID.String()))
}

// ListSchedules returns all schedule configs.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Config, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, scheduleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("conduct/redis: list schedules smembers: %w", err)
	}

	configs := make([]*schedule.Config, 0, len(ids))
	for _, sID := range ids {
		cfg, getErr := s.getScheduleByKey(ctx, scheduleKey(sID))
		if getErr != nil {
			continue // skip missing
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// UpdateSchedule persists changes to an existing schedule.
func (s *Store) UpdateSchedule(ctx context.Context, cfg *schedule.Config) error {
	if err := s.guard(); err != nil {
		return err
	}

	key := scheduleKey(cfg.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("conduct/redis: update schedule exists: %w", err)
	}
	if exists == 0 {
		return conduct.ErrScheduleNotFound
	}

	fields := scheduleToMap(cfg)
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)

	if err := s.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("conduct/redis: update schedule: %w", err)
	}
	return nil
}

// DeleteSchedule removes a schedule by ID.
func (s *Store) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	if err := s.guard(); err != nil {
		return err
	}

	sID := scheduleID.String()
	key := scheduleKey(sID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("conduct/redis: delete schedule exists: %w", err)
	}
	if exists == 0 {
		return conduct.ErrScheduleNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, scheduleIDsKey, sID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conduct/redis: delete schedule: %w", err)
	}
	return nil
}

// PutBatch stores a batch record as a Hash.
func (s *Store) PutBatch(ctx context.Context, b *schedule.Batch) error {
	if err := s.guard(); err != nil {
		return err
	}

	bID := b.ID.String()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, batchKey(bID), batchToMap(b))
	pipe.SAdd(ctx, batchIDsKey, bID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conduct/redis: put batch: %w", err)
	}
	return nil
}

// ListBatches returns all unresolved batches.
func (s *Store) ListBatches(ctx context.Context) ([]*schedule.Batch, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, batchIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("conduct/redis: list batches smembers: %w", err)
	}

	batches := make([]*schedule.Batch, 0, len(ids))
	for _, bID := range ids {
		vals, getErr := s.client.HGetAll(ctx, batchKey(bID)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		b, mapErr := mapToBatch(vals)
		if mapErr != nil {
			continue
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// DeleteBatch removes a resolved batch.
func (s *Store) DeleteBatch(ctx context.Context, batchID id.BatchID) error {
	if err := s.guard(); err != nil {
		return err
	}

	bID := batchID.String()
	key := batchKey(bID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("conduct/redis: delete batch exists: %w", err)
	}
	if exists == 0 {
		return conduct.ErrBatchNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, batchIDsKey, bID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("conduct/redis: delete batch: %w", err)
	}
	return nil
}

// ── helpers ──

func scheduleToMap(cfg *schedule.Config) map[string]interface{} {
	m := map[string]interface{}{
		"id":                 cfg.ID.String(),
		"name":               cfg.Name,
		"frequency":          string(cfg.Frequency),
		"cron_expr":          cfg.CronExpr,
		"templates":          marshalJSON(cfg.Templates),
		"platforms":          marshalJSON(cfg.Platforms),
		"quality_threshold":  strconv.Itoa(cfg.QualityThreshold),
		"auto_publish":       strconv.FormatBool(cfg.AutoPublish),
		"notify_on_complete": strconv.FormatBool(cfg.NotifyOnComplete),
		"enabled":            strconv.FormatBool(cfg.Enabled),
		"created_at":         cfg.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":         cfg.UpdatedAt.Format(time.RFC3339Nano),
	}
	if cfg.LastRunAt != nil {
		m["last_run_at"] = cfg.LastRunAt.Format(time.RFC3339Nano)
	}
	if cfg.NextRunAt != nil {
		m["next_run_at"] = cfg.NextRunAt.Format(time.RFC3339Nano)
	}
	return m
}

func (s *Store) getScheduleByKey(ctx context.Context, key string) (*schedule.Config, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("conduct/redis: get schedule: %w", err)
	}
	if len(vals) == 0 {
		return nil, conduct.ErrScheduleNotFound
	}
	return mapToSchedule(vals)
}

func mapToSchedule(m map[string]string) (*schedule.Config, error) {
	sID, err := id.ParseScheduleID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("conduct/redis: parse schedule id: %w", err)
	}

	threshold, _ := strconv.Atoi(m["quality_threshold"])          //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	var templates []schedule.Template
	_ = json.Unmarshal([]byte(m["templates"]), &templates) //nolint:errcheck // best-effort parse from trusted Redis data

	cfg := &schedule.Config{
		Entity: conduct.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:               sID,
		Name:             m["name"],
		Frequency:        schedule.Frequency(m["frequency"]),
		CronExpr:         m["cron_expr"],
		Templates:        templates,
		Platforms:        unmarshalStrings(m["platforms"]),
		QualityThreshold: threshold,
		AutoPublish:      m["auto_publish"] == "true",
		NotifyOnComplete: m["notify_on_complete"] == "true",
		Enabled:          m["enabled"] == "true",
	}

	if v := m["last_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		cfg.LastRunAt = &t
	}
	if v := m["next_run_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		cfg.NextRunAt = &t
	}

	return cfg, nil
}

func batchToMap(b *schedule.Batch) map[string]interface{} {
	jobIDs := make([]string, len(b.JobIDs))
	for i, jid := range b.JobIDs {
		jobIDs[i] = jid.String()
	}
	return map[string]interface{}{
		"id":                 b.ID.String(),
		"schedule_id":        b.ScheduleID.String(),
		"job_ids":            marshalJSON(jobIDs),
		"platforms":          marshalJSON(b.Platforms),
		"quality_threshold":  strconv.Itoa(b.QualityThreshold),
		"auto_publish":       strconv.FormatBool(b.AutoPublish),
		"notify_on_complete": strconv.FormatBool(b.NotifyOnComplete),
		"created_at":         b.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":         b.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func mapToBatch(m map[string]string) (*schedule.Batch, error) {
	bID, err := id.ParseBatchID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("conduct/redis: parse batch id: %w", err)
	}

	threshold, _ := strconv.Atoi(m["quality_threshold"])          //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	b := &schedule.Batch{
		Entity: conduct.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:               bID,
		Platforms:        unmarshalStrings(m["platforms"]),
		QualityThreshold: threshold,
		AutoPublish:      m["auto_publish"] == "true",
		NotifyOnComplete: m["notify_on_complete"] == "true",
	}

	if v := m["schedule_id"]; v != "" {
		b.ScheduleID, _ = id.ParseScheduleID(v) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	for _, raw := range unmarshalStrings(m["job_ids"]) {
		jid, parseErr := id.ParseJobID(raw)
		if parseErr != nil {
			continue
		}
		b.JobIDs = append(b.JobIDs, jid)
	}

	return b, nil
}

// unmarshalStrings parses a JSON array of strings.
func unmarshalStrings(s string) []string {
	if s == "" || s == "null" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out) //nolint:errcheck // best-effort parse from trusted Redis data
	return out
}
