package job_test

import (
	"errors"
	"testing"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/job"
)

func validSpec() job.Spec {
	return job.Spec{
		Type:     job.TypeEducational,
		Duration: 60,
		Provider: "sora",
		Priority: 5,
	}
}

func TestSpecValidate_AcceptsValid(t *testing.T) {
	if err := validSpec().Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestSpecValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*job.Spec)
	}{
		{"unknown content type", func(s *job.Spec) { s.Type = "podcast" }},
		{"zero duration", func(s *job.Spec) { s.Duration = 0 }},
		{"negative duration", func(s *job.Spec) { s.Duration = -5 }},
		{"duration over max", func(s *job.Spec) { s.Duration = job.MaxDuration + 1 }},
		{"missing provider", func(s *job.Spec) { s.Provider = "" }},
		{"priority too low", func(s *job.Spec) { s.Priority = 0 }},
		{"priority too high", func(s *job.Spec) { s.Priority = 11 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSpec()
			tt.mutate(&s)

			err := s.Validate()
			if !errors.Is(err, conduct.ErrInvalidSpec) {
				t.Errorf("Validate() error = %v, want ErrInvalidSpec", err)
			}
		})
	}
}

func TestEffectivePriority_Boosts(t *testing.T) {
	tests := []struct {
		name string
		spec job.Spec
		want int
	}{
		{"market update gets +2", job.Spec{Type: job.TypeMarketUpdate, Duration: 30, Priority: 5}, 7},
		{"meme gets +1", job.Spec{Type: job.TypeMeme, Duration: 30, Priority: 5}, 6},
		{"short clip gets +1", job.Spec{Type: job.TypeEducational, Duration: 15, Priority: 5}, 6},
		{"long clip gets -1", job.Spec{Type: job.TypeEducational, Duration: 60, Priority: 5}, 4},
		{"mid-length unchanged", job.Spec{Type: job.TypeEducational, Duration: 30, Priority: 5}, 5},
		{"boosts stack", job.Spec{Type: job.TypeMarketUpdate, Duration: 10, Priority: 5}, 8},
		{"clamped at 10", job.Spec{Type: job.TypeMarketUpdate, Duration: 10, Priority: 10}, 10},
		{"clamped at 1", job.Spec{Type: job.TypeNFTShowcase, Duration: 120, Priority: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := job.EffectivePriority(tt.spec); got != tt.want {
				t.Errorf("EffectivePriority = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEffectivePriority_AlwaysInRange(t *testing.T) {
	types := []job.ContentType{
		job.TypeNFTShowcase, job.TypeMarketUpdate, job.TypeProjectSpotlight,
		job.TypeEducational, job.TypeMeme,
	}
	for _, typ := range types {
		for prio := 1; prio <= 10; prio++ {
			for _, dur := range []int{5, 15, 16, 59, 60, 300} {
				got := job.EffectivePriority(job.Spec{Type: typ, Duration: dur, Priority: prio})
				if got < 1 || got > 10 {
					t.Fatalf("EffectivePriority(%s, dur=%d, prio=%d) = %d, out of [1, 10]",
						typ, dur, prio, got)
				}
			}
		}
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := []job.State{job.StateCompleted, job.StateFailed, job.StateCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false", s)
		}
	}

	open := []job.State{job.StateQueued, job.StateDispatched, job.StateRetrying}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true", s)
		}
	}
}

func TestAdvanceProgress_Monotonic(t *testing.T) {
	j := &job.Job{}

	j.AdvanceProgress(job.ProgressDispatched)
	if j.Progress != 10 {
		t.Fatalf("Progress = %d, want 10", j.Progress)
	}

	j.AdvanceProgress(job.ProgressProcessing)
	if j.Progress != 50 {
		t.Fatalf("Progress = %d, want 50", j.Progress)
	}

	// A retry resetting to an earlier milestone must not move it back.
	j.AdvanceProgress(job.ProgressDispatched)
	if j.Progress != 50 {
		t.Errorf("Progress = %d after lower advance, want 50", j.Progress)
	}

	j.AdvanceProgress(job.ProgressCompleted)
	if j.Progress != 100 {
		t.Errorf("Progress = %d, want 100", j.Progress)
	}
}
