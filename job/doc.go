// Package job defines the job data model: the immutable Spec describing
// requested work, the mutable Job runtime record owned by the queue, the
// job state machine, and the Store persistence contract.
//
// A Spec is created by the caller (API layer or scheduler) and never
// mutated. The queue wraps it in a Job, computes an effective dispatch
// priority, and drives the Job through its states:
//
//	queued → dispatched → (completed | failed | retrying)
//	retrying → queued        (retry sub-cycle, bounded by MaxRetries)
//
// completed, failed, and cancelled are terminal. No state is revisited
// once left except through the retrying→queued sub-cycle.
package job
