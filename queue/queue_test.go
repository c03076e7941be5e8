package queue_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/backoff"
	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
	"github.com/reelmill/conduct/pipeline"
	"github.com/reelmill/conduct/provider"
	"github.com/reelmill/conduct/queue"
	"github.com/reelmill/conduct/store/memory"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func fastOptions(extra ...queue.Option) []queue.Option {
	opts := []queue.Option{
		queue.WithDispatchInterval(10 * time.Millisecond),
		queue.WithPollInterval(10 * time.Millisecond),
		queue.WithBackoff(backoff.NewFixed(time.Millisecond)),
	}
	return append(opts, extra...)
}

func fourProviderSetup(t *testing.T) (*provider.Registry, *provider.Chain, map[string]*provider.Fake) {
	t.Helper()

	registry := provider.NewRegistry()
	fakes := make(map[string]*provider.Fake)
	for _, name := range []string{"sora", "runway", "pika", "kling"} {
		f := provider.NewFake(name)
		f.CompleteAfterPolls = 0
		fakes[name] = f
		registry.Register(name, f)
	}

	chain, err := provider.NewChain("sora", "runway", "pika", "kling")
	if err != nil {
		t.Fatalf("NewChain error: %v", err)
	}
	return registry, chain, fakes
}

func startQueue(t *testing.T, q *queue.Queue) {
	t.Helper()
	if err := q.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Stop(context.Background()); err != nil {
			t.Errorf("Stop error: %v", err)
		}
	})
}

func TestEnqueue_RejectsInvalidSpec(t *testing.T) {
	registry, chain, _ := fourProviderSetup(t)
	q := queue.New(memory.New(), registry, chain)

	_, err := q.Enqueue(context.Background(), job.Spec{Type: "podcast", Duration: 30, Provider: "sora", Priority: 5})
	if !errors.Is(err, conduct.ErrInvalidSpec) {
		t.Errorf("Enqueue error = %v, want ErrInvalidSpec", err)
	}
}

func TestEnqueue_RejectsUnknownProvider(t *testing.T) {
	registry, chain, _ := fourProviderSetup(t)
	q := queue.New(memory.New(), registry, chain)

	_, err := q.Enqueue(context.Background(), job.Spec{Type: job.TypeMeme, Duration: 10, Provider: "unheard-of", Priority: 5})
	if !errors.Is(err, conduct.ErrUnknownProvider) {
		t.Errorf("Enqueue error = %v, want ErrUnknownProvider", err)
	}
}

func TestDispatch_CompletesJobEndToEnd(t *testing.T) {
	ctx := context.Background()
	registry, chain, _ := fourProviderSetup(t)

	pipe := pipeline.New(pipeline.WithScorer(pipeline.FixedScorer{
		Metrics: job.QualityMetrics{VisualClarity: 90, AudioBalance: 90},
	}))
	q := queue.New(memory.New(), registry, chain, fastOptions(queue.WithPipeline(pipe))...)
	startQueue(t, q)

	jobID, err := q.Enqueue(ctx, job.Spec{
		Type:         job.TypeNFTShowcase,
		Duration:     30,
		Provider:     "sora",
		SubtitleLang: "en",
		Priority:     5,
	})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var st job.Status
	waitFor(t, 3*time.Second, func() bool {
		st, err = q.Status(ctx, jobID)
		return err == nil && st.State.Terminal()
	})

	if st.State != job.StateCompleted {
		t.Fatalf("state = %s (error %q), want completed", st.State, st.Error)
	}
	if st.Progress != 100 {
		t.Errorf("progress = %d, want 100", st.Progress)
	}
	if st.Provider != "sora" {
		t.Errorf("provider = %q, want sora", st.Provider)
	}
	if st.Result == nil {
		t.Fatal("completed job has no result")
	}
	if st.Result.AssetURL == "" || len(st.Result.ThumbnailURLs) == 0 {
		t.Errorf("result incomplete: %+v", st.Result)
	}
	if !st.Result.Subtitled {
		t.Error("result not subtitled despite subtitle language")
	}
	if st.Result.BelowThreshold {
		t.Error("clarity 90 flagged below threshold")
	}
}

func TestDispatch_FallsBackAcrossChain(t *testing.T) {
	ctx := context.Background()
	registry, chain, fakes := fourProviderSetup(t)
	fakes["sora"].FailSubmits = -1 // down for the whole test

	q := queue.New(memory.New(), registry, chain, fastOptions()...)
	startQueue(t, q)

	jobID, err := q.Enqueue(ctx, job.Spec{Type: job.TypeMarketUpdate, Duration: 20, Provider: "sora", Priority: 5})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var st job.Status
	waitFor(t, 3*time.Second, func() bool {
		st, err = q.Status(ctx, jobID)
		return err == nil && st.State.Terminal()
	})

	if st.State != job.StateCompleted {
		t.Fatalf("state = %s (error %q), want completed via fallback", st.State, st.Error)
	}
	if st.Provider != "runway" {
		t.Errorf("completed on %q, want runway (first fallback)", st.Provider)
	}
	if fakes["runway"].Submits() == 0 {
		t.Error("runway never saw a submit")
	}
}

func TestDispatch_FailsAfterRetryBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	registry, chain, fakes := fourProviderSetup(t)
	for _, f := range fakes {
		f.FailSubmits = -1
	}

	q := queue.New(memory.New(), registry, chain, fastOptions(queue.WithMaxRetries(3))...)
	startQueue(t, q)

	jobID, err := q.Enqueue(ctx, job.Spec{Type: job.TypeEducational, Duration: 45, Provider: "sora", Priority: 5})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var st job.Status
	waitFor(t, 3*time.Second, func() bool {
		st, err = q.Status(ctx, jobID)
		return err == nil && st.State.Terminal()
	})

	if st.State != job.StateFailed {
		t.Fatalf("state = %s, want failed", st.State)
	}
	// Initial attempt on sora plus 3 retries walking the chain: the
	// budget runs out on kling, the third fallback.
	if st.Provider != "kling" {
		t.Errorf("final provider = %q, want kling", st.Provider)
	}
	if !strings.Contains(st.Error, "max retries") {
		t.Errorf("error = %q, want max-retries cause", st.Error)
	}
}

func TestDispatch_FreshIdempotencyKeyPerAttempt(t *testing.T) {
	ctx := context.Background()
	registry, chain, fakes := fourProviderSetup(t)
	fakes["sora"].FailSubmits = -1

	st := memory.New()
	q := queue.New(st, registry, chain, fastOptions()...)

	jobID, err := q.Enqueue(ctx, job.Spec{Type: job.TypeMeme, Duration: 10, Provider: "sora", Priority: 5})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	before, err := st.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}

	startQueue(t, q)
	waitFor(t, 3*time.Second, func() bool {
		j, getErr := st.GetJob(ctx, jobID)
		return getErr == nil && j.RetryCount > 0
	})

	after, err := st.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if after.IdempotencyKey == before.IdempotencyKey {
		t.Error("idempotency key not regenerated for the retry attempt")
	}
	if after.Handle != "" && after.State == job.StateRetrying {
		t.Error("stale provider handle kept across retry")
	}
}

func TestDispatch_TimeoutIsTerminal(t *testing.T) {
	ctx := context.Background()
	registry, chain, fakes := fourProviderSetup(t)
	fakes["sora"].NeverComplete = true

	q := queue.New(memory.New(), registry, chain,
		fastOptions(queue.WithDispatchTimeout(50*time.Millisecond))...)
	startQueue(t, q)

	jobID, err := q.Enqueue(ctx, job.Spec{Type: job.TypeProjectSpotlight, Duration: 30, Provider: "sora", Priority: 5})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var st job.Status
	waitFor(t, 3*time.Second, func() bool {
		st, err = q.Status(ctx, jobID)
		return err == nil && st.State.Terminal()
	})

	if st.State != job.StateFailed {
		t.Fatalf("state = %s, want failed on timeout", st.State)
	}
	if !strings.Contains(st.Error, "deadline") {
		t.Errorf("error = %q, want deadline cause", st.Error)
	}

	// A late provider result must not resurrect the job.
	time.Sleep(50 * time.Millisecond)
	st, err = q.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if st.State != job.StateFailed {
		t.Errorf("state = %s after late polls, want failed to stick", st.State)
	}
}

func TestCancel_QueuedJob(t *testing.T) {
	ctx := context.Background()
	registry, chain, _ := fourProviderSetup(t)
	q := queue.New(memory.New(), registry, chain) // not started: job stays queued

	jobID, err := q.Enqueue(ctx, job.Spec{Type: job.TypeMeme, Duration: 10, Provider: "pika", Priority: 5})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	ok, err := q.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !ok {
		t.Fatal("Cancel = false for queued job")
	}

	st, err := q.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if st.State != job.StateCancelled {
		t.Errorf("state = %s, want cancelled", st.State)
	}

	// Cancelling a terminal job is a no-op.
	ok, err = q.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("second Cancel error: %v", err)
	}
	if ok {
		t.Error("Cancel = true for already-cancelled job")
	}
}

func TestCancel_DispatchedJobForwardsToProvider(t *testing.T) {
	ctx := context.Background()
	registry, chain, fakes := fourProviderSetup(t)
	fakes["sora"].NeverComplete = true

	st := memory.New()
	q := queue.New(st, registry, chain, fastOptions()...)
	startQueue(t, q)

	jobID, err := q.Enqueue(ctx, job.Spec{Type: job.TypeEducational, Duration: 60, Provider: "sora", Priority: 5})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var handle string
	waitFor(t, 3*time.Second, func() bool {
		j, getErr := st.GetJob(ctx, jobID)
		if getErr != nil || j.Handle == "" {
			return false
		}
		handle = j.Handle
		return true
	})

	ok, err := q.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !ok {
		t.Fatal("Cancel = false for dispatched job")
	}
	if !fakes["sora"].Cancelled(handle) {
		t.Error("cancellation not forwarded to the provider")
	}
}

// stallingProvider blocks inside Poll until released, so a test can
// interleave work with an in-flight poll.
type stallingProvider struct {
	polling chan struct{}
	release chan struct{}
}

func newStallingProvider() *stallingProvider {
	return &stallingProvider{
		polling: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (p *stallingProvider) Submit(_ context.Context, req provider.Request) (string, error) {
	return "stall-" + req.IdempotencyKey, nil
}

func (p *stallingProvider) Poll(_ context.Context, _ string) (provider.Status, error) {
	select {
	case p.polling <- struct{}{}:
	default:
	}
	<-p.release
	return provider.Status{
		State:     provider.PollCompleted,
		ResultURL: "https://assets.stall.example/a.mp4",
	}, nil
}

func (p *stallingProvider) Cancel(_ context.Context, _ string) error { return nil }

func TestCancel_DiscardsLateCompletedPoll(t *testing.T) {
	ctx := context.Background()

	stall := newStallingProvider()
	registry := provider.NewRegistry()
	registry.Register("sora", stall)
	registry.Register("runway", provider.NewFake("runway"))
	chain, err := provider.NewChain("sora", "runway")
	if err != nil {
		t.Fatalf("NewChain error: %v", err)
	}

	limits := queue.NewLimits(queue.ProviderConfig{Name: "sora", MaxConcurrency: 2})
	q := queue.New(memory.New(), registry, chain, fastOptions(queue.WithLimits(limits))...)
	startQueue(t, q)

	jobID, err := q.Enqueue(ctx, job.Spec{Type: job.TypeEducational, Duration: 60, Provider: "sora", Priority: 5})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	// Wait for a poll to be in flight, holding a stale copy of the job.
	select {
	case <-stall.polling:
	case <-time.After(3 * time.Second):
		t.Fatal("provider never polled")
	}

	ok, err := q.Cancel(ctx, jobID)
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if !ok {
		t.Fatal("Cancel = false for dispatched job")
	}

	// Release the blocked poll: its completed outcome arrives after the
	// cancellation and must be discarded.
	close(stall.release)
	time.Sleep(100 * time.Millisecond)

	st, err := q.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if st.State != job.StateCancelled {
		t.Fatalf("state = %q after late completed poll, want cancelled to stick", st.State)
	}
	if st.Result != nil {
		t.Error("late result attached to a cancelled job")
	}
	if got := limits.ActiveCount("sora"); got != 0 {
		t.Errorf("ActiveCount = %d after cancel, want the slot released exactly once", got)
	}
}

func TestEnqueueBatch_PreservesCallerOrder(t *testing.T) {
	ctx := context.Background()
	registry, chain, _ := fourProviderSetup(t)
	st := memory.New()
	q := queue.New(st, registry, chain)

	specs := []job.Spec{
		{Type: job.TypeMeme, Duration: 10, Provider: "pika", Priority: 5},
		{Type: job.TypeEducational, Duration: 60, Provider: "sora", Priority: 5},
		{Type: job.TypeMeme, Duration: 12, Provider: "pika", Priority: 5},
	}
	batchID := id.NewBatchID()
	ids, err := q.EnqueueBatch(ctx, specs, queue.WithBatchID(batchID))
	if err != nil {
		t.Fatalf("EnqueueBatch error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("got %d ids, want 3", len(ids))
	}

	for i, jobID := range ids {
		j, getErr := st.GetJob(ctx, jobID)
		if getErr != nil {
			t.Fatalf("GetJob(%d) error: %v", i, getErr)
		}
		if j.Spec.Provider != specs[i].Provider || j.Spec.Duration != specs[i].Duration {
			t.Errorf("ids[%d] maps to spec %+v, want %+v", i, j.Spec, specs[i])
		}
		if j.BatchID != batchID {
			t.Errorf("ids[%d] batch = %s, want %s", i, j.BatchID, batchID)
		}
	}
}

func TestEnqueueBatch_AllOrNothingValidation(t *testing.T) {
	ctx := context.Background()
	registry, chain, _ := fourProviderSetup(t)
	q := queue.New(memory.New(), registry, chain)

	specs := []job.Spec{
		{Type: job.TypeMeme, Duration: 10, Provider: "pika", Priority: 5},
		{Type: job.TypeMeme, Duration: 0, Provider: "pika", Priority: 5}, // invalid
	}
	if _, err := q.EnqueueBatch(ctx, specs); !errors.Is(err, conduct.ErrInvalidSpec) {
		t.Fatalf("EnqueueBatch error = %v, want ErrInvalidSpec", err)
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.Waiting != 0 {
		t.Errorf("waiting = %d after rejected batch, want 0", stats.Waiting)
	}
}

func TestStats_BucketsByState(t *testing.T) {
	ctx := context.Background()
	registry, chain, _ := fourProviderSetup(t)
	q := queue.New(memory.New(), registry, chain, fastOptions()...)

	for range 3 {
		if _, err := q.Enqueue(ctx, job.Spec{Type: job.TypeMeme, Duration: 10, Provider: "pika", Priority: 5}); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.Waiting != 3 || stats.Active != 0 || stats.Completed != 0 || stats.Failed != 0 {
		t.Errorf("stats = %+v, want 3 waiting", stats)
	}

	startQueue(t, q)
	waitFor(t, 3*time.Second, func() bool {
		s, statsErr := q.Stats(ctx)
		return statsErr == nil && s.Completed == 3
	})
}

func TestLimits_ProviderConcurrencyRespected(t *testing.T) {
	ctx := context.Background()
	registry, chain, fakes := fourProviderSetup(t)
	fakes["sora"].NeverComplete = true

	limits := queue.NewLimits(queue.ProviderConfig{Name: "sora", MaxConcurrency: 1})
	q := queue.New(memory.New(), registry, chain,
		fastOptions(queue.WithLimits(limits), queue.WithConcurrency(10))...)
	startQueue(t, q)

	for range 3 {
		if _, err := q.Enqueue(ctx, job.Spec{Type: job.TypeEducational, Duration: 60, Provider: "sora", Priority: 5}); err != nil {
			t.Fatalf("Enqueue error: %v", err)
		}
	}

	waitFor(t, 3*time.Second, func() bool {
		return limits.ActiveCount("sora") == 1
	})

	// Give the dispatcher a few more ticks: the cap must hold.
	time.Sleep(100 * time.Millisecond)
	if got := limits.ActiveCount("sora"); got != 1 {
		t.Errorf("ActiveCount = %d with MaxConcurrency 1, want 1", got)
	}
	if got := fakes["sora"].Submits(); got != 1 {
		t.Errorf("Submits = %d, want 1", got)
	}
}
