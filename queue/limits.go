package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// ProviderConfig defines the per-provider dispatch budget: how many jobs
// may be dispatched to the provider at once, and how fast new work may be
// submitted to it.
type ProviderConfig struct {
	// Name is the provider identifier (must match job.Provider).
	Name string

	// MaxConcurrency limits how many jobs may sit in the dispatched
	// state at this provider simultaneously. Zero means no
	// provider-specific limit (the global concurrency limit still
	// applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained submissions per second to this
	// provider. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

// providerState tracks runtime state for a single provider.
type providerState struct {
	config  ProviderConfig
	limiter *rate.Limiter
	active  int
}

// Limits enforces per-provider rate limiting and concurrency at claim
// time. It is the only cross-job shared resource the queue manages.
// Safe for concurrent use.
type Limits struct {
	mu        sync.Mutex
	providers map[string]*providerState
}

// NewLimits creates a Limits manager with the given provider budgets.
// Providers not listed here have no limits.
func NewLimits(configs ...ProviderConfig) *Limits {
	l := &Limits{providers: make(map[string]*providerState, len(configs))}
	for _, cfg := range configs {
		l.providers[cfg.Name] = newProviderState(cfg)
	}
	return l
}

func newProviderState(cfg ProviderConfig) *providerState {
	ps := &providerState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ps.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return ps
}

// Acquire checks the rate and concurrency budget for the provider. If
// the dispatch may proceed it increments the active counter and returns
// true. The caller MUST call Release when the job leaves the dispatched
// state.
func (l *Limits) Acquire(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ps := l.providers[name]
	if ps != nil {
		if ps.limiter != nil && !ps.limiter.Allow() {
			return false
		}
		if ps.config.MaxConcurrency > 0 && ps.active >= ps.config.MaxConcurrency {
			return false
		}
		ps.active++
	}
	return true
}

// Release decrements the active count for the provider.
func (l *Limits) Release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ps := l.providers[name]; ps != nil && ps.active > 0 {
		ps.active--
	}
}

// SetProviderConfig dynamically updates (or creates) a provider budget.
func (l *Limits) SetProviderConfig(cfg ProviderConfig) {
	l.mu.Lock()
	defer l.mu.Unlock()

	existing := l.providers[cfg.Name]
	ps := newProviderState(cfg)

	// Preserve current active count if reconfiguring.
	if existing != nil {
		ps.active = existing.active
	}
	l.providers[cfg.Name] = ps
}

// ActiveCount returns the number of jobs currently dispatched to the
// provider.
func (l *Limits) ActiveCount(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ps := l.providers[name]; ps != nil {
		return ps.active
	}
	return 0
}
