// Package provider defines the capability contract for external
// generative-media backends: submit a generation request, poll its status,
// and cancel it best-effort.
//
// The queue is provider-agnostic. Concrete adapters (one per backend) are
// registered by name in a Registry, and a Chain declares the fixed fallback
// order used when a dispatch attempt fails: each provider maps to exactly
// one designated successor, forming a cycle. Retry termination is the
// queue's retry cap, not the chain.
package provider
