package schedule

import (
	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/id"
)

// Batch is the set of jobs created by one scheduler tick, plus a
// snapshot of the schedule's post-action policy taken at creation time.
// The snapshot keeps post-actions intact even if the schedule is updated
// or deleted while the batch is in flight. Batches are deleted once
// monitoring resolves them and post-actions have fired.
type Batch struct {
	conduct.Entity

	ID         id.BatchID    `json:"id"`
	ScheduleID id.ScheduleID `json:"schedule_id"`
	JobIDs     []id.JobID    `json:"job_ids"`

	Platforms        []string `json:"platforms,omitempty"`
	QualityThreshold int      `json:"quality_threshold"`
	AutoPublish      bool     `json:"auto_publish"`
	NotifyOnComplete bool     `json:"notify_on_complete"`
}
