package provider_test

import (
	"testing"

	"github.com/reelmill/conduct/provider"
)

func TestNewChain_RejectsInvalidOrders(t *testing.T) {
	tests := []struct {
		name  string
		order []string
	}{
		{"empty", nil},
		{"single member", []string{"sora"}},
		{"duplicate member", []string{"sora", "runway", "sora"}},
		{"empty member", []string{"sora", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := provider.NewChain(tt.order...); err == nil {
				t.Errorf("NewChain(%v) succeeded, want error", tt.order)
			}
		})
	}
}

func TestChain_NextCyclesThroughOrder(t *testing.T) {
	c, err := provider.NewChain("sora", "runway", "pika", "kling")
	if err != nil {
		t.Fatalf("NewChain error: %v", err)
	}

	tests := []struct{ from, want string }{
		{"sora", "runway"},
		{"runway", "pika"},
		{"pika", "kling"},
		{"kling", "sora"}, // wraps around
	}
	for _, tt := range tests {
		if got := c.Next(tt.from); got != tt.want {
			t.Errorf("Next(%q) = %q, want %q", tt.from, got, tt.want)
		}
	}
}

func TestChain_NeverFallsBackToSelf(t *testing.T) {
	c, err := provider.NewChain("sora", "runway")
	if err != nil {
		t.Fatalf("NewChain error: %v", err)
	}

	for _, name := range c.Order() {
		if got := c.Next(name); got == name {
			t.Errorf("Next(%q) = %q, provider fell back to itself", name, got)
		}
	}
}

func TestChain_UnknownProviderFallsBackToFirst(t *testing.T) {
	c, err := provider.NewChain("sora", "runway", "pika")
	if err != nil {
		t.Fatalf("NewChain error: %v", err)
	}

	if got := c.Next("unregistered"); got != "sora" {
		t.Errorf("Next(unknown) = %q, want %q", got, "sora")
	}
}

func TestChain_Contains(t *testing.T) {
	c, err := provider.NewChain("sora", "runway")
	if err != nil {
		t.Fatalf("NewChain error: %v", err)
	}

	if !c.Contains("sora") {
		t.Error("Contains(sora) = false")
	}
	if c.Contains("pika") {
		t.Error("Contains(pika) = true for non-member")
	}
}
