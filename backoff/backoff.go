// Package backoff provides retry delay strategies for provider dispatch.
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n (1-indexed).
// Attempt 1 is the first retry after the initial dispatch failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same interval before every retry.
type Fixed struct {
	Interval time.Duration
}

// NewFixed creates a fixed-interval strategy.
func NewFixed(interval time.Duration) *Fixed {
	return &Fixed{Interval: interval}
}

// Delay returns the fixed interval.
func (f *Fixed) Delay(_ int) time.Duration {
	return f.Interval
}

// Exponential doubles the delay each attempt:
// Delay = min(Base * 2^(attempt-1), Cap).
type Exponential struct {
	Base time.Duration
	Cap  time.Duration
}

// NewExponential creates a capped exponential strategy.
func NewExponential(base, cap time.Duration) *Exponential {
	return &Exponential{Base: base, Cap: cap}
}

// Delay returns Base * 2^(attempt-1), capped at Cap.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt-1)))
	if e.Cap > 0 && d > e.Cap {
		return e.Cap
	}
	return d
}

// FullJitter draws a uniform delay in [0, min(Base * 2^(attempt-1), Cap)].
// Spreads out retries when many jobs fail over to the same fallback
// provider at once.
type FullJitter struct {
	Base time.Duration
	Cap  time.Duration
}

// NewFullJitter creates a full-jitter exponential strategy.
func NewFullJitter(base, cap time.Duration) *FullJitter {
	return &FullJitter{Base: base, Cap: cap}
}

// Delay returns a random duration in [0, min(Base * 2^(attempt-1), Cap)].
func (j *FullJitter) Delay(attempt int) time.Duration {
	ceil := float64(j.Base) * math.Pow(2, float64(attempt-1))
	if j.Cap > 0 && ceil > float64(j.Cap) {
		ceil = float64(j.Cap)
	}
	return time.Duration(rand.Float64() * ceil) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// Default returns the queue's default strategy: capped exponential with
// a 2s base and 2m cap. Provider outages are typically seconds to
// minutes; jitter is unnecessary at single-process dispatch volumes.
func Default() Strategy {
	return NewExponential(2*time.Second, 2*time.Minute)
}
