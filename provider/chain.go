package provider

import "fmt"

// Chain is the fixed fallback order for providers. Each provider falls
// back to its successor in the declared order; the last wraps around to
// the first, forming a cycle. A provider never falls back to itself, so
// a chain needs at least two members.
type Chain struct {
	order []string
	next  map[string]string
}

// NewChain builds a fallback chain from the given provider order.
func NewChain(order ...string) (*Chain, error) {
	if len(order) < 2 {
		return nil, fmt.Errorf("provider: fallback chain needs at least 2 providers, got %d", len(order))
	}

	next := make(map[string]string, len(order))
	for i, name := range order {
		if name == "" {
			return nil, fmt.Errorf("provider: fallback chain member %d is empty", i)
		}
		if _, dup := next[name]; dup {
			return nil, fmt.Errorf("provider: duplicate %q in fallback chain", name)
		}
		next[name] = order[(i+1)%len(order)]
	}

	return &Chain{order: append([]string(nil), order...), next: next}, nil
}

// Next returns the designated fallback for name. Providers outside the
// chain fall back to the chain's first member.
func (c *Chain) Next(name string) string {
	if succ, ok := c.next[name]; ok {
		return succ
	}
	return c.order[0]
}

// Contains reports whether name is a member of the chain.
func (c *Chain) Contains(name string) bool {
	_, ok := c.next[name]
	return ok
}

// Order returns the declared chain order.
func (c *Chain) Order() []string {
	return append([]string(nil), c.order...)
}
