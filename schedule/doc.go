// Package schedule owns recurring generation schedules and the batches
// they produce.
//
// A schedule couples a cadence (named frequency or cron expression) with
// a list of content templates. On each due tick the scheduler builds one
// job spec per template, enqueues them as a batch, and snapshots the
// schedule's post-action policy onto the Batch record. A monitor loop
// polls member job statuses until every member is terminal, then runs
// the post-actions — publish completed results to each configured
// platform, emit one summary notification — exactly once, and forgets
// the batch.
//
// Pausing a schedule only stops future ticks; in-flight batches monitor
// to completion. Deleting a schedule likewise leaves its in-flight
// batches to finish, which is why the policy snapshot lives on the Batch.
package schedule
