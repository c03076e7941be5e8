package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
	"github.com/reelmill/conduct/middleware"
)

func newTestJob() *job.Job {
	return &job.Job{
		ID:         id.NewJobID(),
		Spec:       job.Spec{Type: job.TypeMarketUpdate, Duration: 20, Provider: "sora", Priority: 5},
		Provider:   "sora",
		RetryCount: 2,
	}
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	if err := chain(context.Background(), newTestJob(), handler); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false

	err := chain(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("empty chain did not call the handler")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	sentinel := errors.New("submit rejected")
	chain := middleware.Chain(func(ctx context.Context, _ *job.Job, next middleware.Handler) error {
		return next(ctx)
	})

	err := chain(context.Background(), newTestJob(), func(_ context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want the handler's error", err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := middleware.Recover(logger)

	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		panic("adapter exploded")
	})
	if err == nil {
		t.Fatal("panic was not converted to an error")
	}
	if !strings.Contains(err.Error(), "adapter exploded") {
		t.Errorf("error = %q, want the panic value included", err)
	}
}

func TestRecover_PassesThroughSuccess(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := middleware.Recover(logger)

	if err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLogging_PassesThroughResult(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	m := middleware.Logging(logger)

	sentinel := errors.New("provider down")
	err := m(context.Background(), newTestJob(), func(_ context.Context) error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want pass-through", err)
	}
	if !strings.Contains(buf.String(), "provider down") {
		t.Error("failure not logged")
	}
}
