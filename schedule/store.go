package schedule

import (
	"context"

	"github.com/reelmill/conduct/id"
)

// Store defines the persistence contract for schedules and batches.
type Store interface {
	// CreateSchedule persists a new schedule config.
	CreateSchedule(ctx context.Context, cfg *Config) error

	// GetSchedule retrieves a schedule by ID.
	GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*Config, error)

	// ListSchedules returns all schedule configs.
	ListSchedules(ctx context.Context) ([]*Config, error)

	// UpdateSchedule persists changes to an existing schedule.
	UpdateSchedule(ctx context.Context, cfg *Config) error

	// DeleteSchedule removes a schedule by ID. Batches created by the
	// schedule are unaffected.
	DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error

	// PutBatch persists a batch record.
	PutBatch(ctx context.Context, b *Batch) error

	// ListBatches returns all unresolved batches.
	ListBatches(ctx context.Context) ([]*Batch, error)

	// DeleteBatch removes a resolved batch.
	DeleteBatch(ctx context.Context, batchID id.BatchID) error
}
