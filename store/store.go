package store

import (
	"context"

	"github.com/reelmill/conduct/job"
	"github.com/reelmill/conduct/schedule"
)

// Store is the composite persistence contract: every subsystem store
// plus lifecycle operations.
type Store interface {
	job.Store
	schedule.Store

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
