package redis

// Redis key naming conventions for conduct data.
// All keys are prefixed with "conduct:" to avoid collisions.

const keyPrefix = "conduct:"

// ── Job keys ──

// jobKey returns the key for a job entity: conduct:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// pendingKey is the Sorted Set holding dispatchable jobs. Score encodes
// priority (negated for DESC) plus a Seq fraction for FIFO within a tier.
const pendingKey = keyPrefix + "pending"

// jobIDsKey is the Set tracking all job IDs for enumeration.
const jobIDsKey = keyPrefix + "job_ids"

// jobSeqKey is the counter assigning Seq values on enqueue.
const jobSeqKey = keyPrefix + "job_seq"

// ── Schedule keys ──

// scheduleKey returns the key for a schedule entity: conduct:sched:{id}
func scheduleKey(id string) string { return keyPrefix + "sched:" + id }

// scheduleIDsKey is the Set tracking all schedule IDs for enumeration.
const scheduleIDsKey = keyPrefix + "sched_ids"

// ── Batch keys ──

// batchKey returns the key for a batch entity: conduct:batch:{id}
func batchKey(id string) string { return keyPrefix + "batch:" + id }

// batchIDsKey is the Set tracking all unresolved batch IDs.
const batchIDsKey = keyPrefix + "batch_ids"
