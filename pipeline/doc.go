// Package pipeline post-processes raw generated assets through three
// ordered stages — asset preparation, post-processing, and quality
// assurance — and applies a single accept/reject quality gate at the end.
//
// Generation itself happens upstream (queue + provider); the pipeline
// starts from the raw asset URL the provider returned. No stage may be
// skipped. The gate never rejects outright: a result whose visual clarity
// misses the threshold is returned with BelowThreshold set, and the
// caller decides whether to re-enqueue. Retry policy lives in the queue.
package pipeline
