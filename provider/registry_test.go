package provider_test

import (
	"context"
	"errors"
	"testing"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/provider"
)

func TestRegistry_GetReturnsRegistered(t *testing.T) {
	r := provider.NewRegistry()
	fake := provider.NewFake("sora")
	r.Register("sora", fake)

	got, err := r.Get("sora")
	if err != nil {
		t.Fatalf("Get(sora) error: %v", err)
	}
	if got != provider.Provider(fake) {
		t.Error("Get(sora) returned a different provider")
	}
	if !r.Has("sora") {
		t.Error("Has(sora) = false")
	}
}

func TestRegistry_GetUnknownFails(t *testing.T) {
	r := provider.NewRegistry()

	_, err := r.Get("runway")
	if !errors.Is(err, conduct.ErrUnknownProvider) {
		t.Errorf("Get(runway) error = %v, want ErrUnknownProvider", err)
	}
	if r.Has("runway") {
		t.Error("Has(runway) = true for empty registry")
	}
}

func TestFake_CompletesAfterScriptedPolls(t *testing.T) {
	ctx := context.Background()
	f := provider.NewFake("sora")
	f.CompleteAfterPolls = 2

	handle, err := f.Submit(ctx, provider.Request{IdempotencyKey: "key-1"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}

	for i := range 2 {
		st, pollErr := f.Poll(ctx, handle)
		if pollErr != nil {
			t.Fatalf("Poll %d error: %v", i, pollErr)
		}
		if st.State != provider.PollProcessing {
			t.Fatalf("poll %d state = %q, want processing", i, st.State)
		}
	}

	st, err := f.Poll(ctx, handle)
	if err != nil {
		t.Fatalf("final Poll error: %v", err)
	}
	if st.State != provider.PollCompleted {
		t.Fatalf("final state = %q, want completed", st.State)
	}
	if st.ResultURL == "" {
		t.Error("completed poll has no result URL")
	}
}

func TestFake_ScriptedSubmitFailures(t *testing.T) {
	ctx := context.Background()
	f := provider.NewFake("runway")
	f.FailSubmits = 2

	for i := range 2 {
		_, err := f.Submit(ctx, provider.Request{IdempotencyKey: "k"})
		if !errors.Is(err, conduct.ErrProviderUnavailable) {
			t.Fatalf("submit %d error = %v, want ErrProviderUnavailable", i, err)
		}
	}

	if _, err := f.Submit(ctx, provider.Request{IdempotencyKey: "k"}); err != nil {
		t.Fatalf("submit after scripted failures error: %v", err)
	}
	if got := f.Submits(); got != 3 {
		t.Errorf("Submits() = %d, want 3", got)
	}
}

func TestFake_CancelRecorded(t *testing.T) {
	ctx := context.Background()
	f := provider.NewFake("pika")

	handle, err := f.Submit(ctx, provider.Request{IdempotencyKey: "k"})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if err := f.Cancel(ctx, handle); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !f.Cancelled(handle) {
		t.Error("Cancelled(handle) = false after Cancel")
	}
}
