// Package queue implements the priority job queue at the center of the
// orchestration core.
//
// The queue accepts validated job specs, wraps each in a Job record it
// owns exclusively, and holds pending jobs in priority order (highest
// effective priority first, FIFO within a tier). A dispatch loop claims
// pending jobs into free slots — bounded globally by the concurrency
// limit and per provider by the Limits manager — and submits them to
// their provider through the middleware chain. A poll loop detects
// completion: completed provider work is driven through the content
// pipeline and the result attached to the job; failures re-enter the
// queue with exponential backoff on the next provider in the fallback
// chain, until the retry budget is spent; work that outlives its
// deadline is force-failed and late provider results are discarded.
//
// All job mutation happens inside the queue's two loops and its public
// operations. Other components hold job IDs and query Status.
package queue
