// Package store defines the composite persistence contract for conduct.
//
// Each subsystem (job, schedule) declares its own store interface next
// to its types; Store embeds them all plus lifecycle operations. A
// backend implements the whole contract. The core is specified against
// in-memory semantics — a durable backend is a key-value collaborator
// keyed by job, schedule, and batch IDs.
//
// Two implementations ship with the module:
//
//   - store/memory: mutex-guarded maps; the default for tests and
//     single-process deployments.
//   - store/redis: hashes per entity plus a sorted set for the pending
//     queue, for deployments that must survive restarts.
package store
