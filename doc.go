// Package conduct orchestrates content-generation jobs against external
// generative-media providers.
//
// The library is built from four subsystems:
//
//   - queue: a priority job queue that dispatches generation requests to
//     providers, detects completion by polling, and retries failures with
//     exponential backoff and provider fallback.
//   - schedule: a cron-driven scheduler that creates batches of jobs on a
//     cadence, monitors each batch to resolution, and runs publish/notify
//     post-actions exactly once per batch.
//   - pipeline: a staged post-processor that turns a raw generated asset
//     into a quality-scored result, gated on a configurable threshold.
//   - provider: the capability contract (submit / poll / cancel) that
//     adapters to concrete generation backends implement.
//
// The engine package wires the subsystems together. This root package holds
// the shared error taxonomy, engine configuration, and entity metadata.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package conduct
