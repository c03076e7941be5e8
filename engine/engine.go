// Package engine wires all conduct subsystems together: store, provider
// registry, fallback chain, dispatch queue, content pipeline, and the
// scheduler. It provides a single Start/Stop lifecycle over all of them.
//
// This package exists to break the import cycle: the root conduct package
// defines Entity and the sentinel errors (imported by job, schedule, etc.)
// and so cannot import those packages back. The engine package sits above
// all subsystem packages and below the application layer.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/backoff"
	"github.com/reelmill/conduct/hook"
	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
	mw "github.com/reelmill/conduct/middleware"
	"github.com/reelmill/conduct/pipeline"
	"github.com/reelmill/conduct/provider"
	"github.com/reelmill/conduct/queue"
	"github.com/reelmill/conduct/schedule"
	"github.com/reelmill/conduct/store"
)

// queueAdapter narrows *queue.Queue to the schedule.JobQueue contract.
// The schedule package defines the interface, the queue package provides
// the implementation, and the engine layer plugs them together.
type queueAdapter struct {
	q *queue.Queue
}

func (a *queueAdapter) EnqueueBatch(ctx context.Context, batchID id.BatchID, specs []job.Spec) ([]id.JobID, error) {
	return a.q.EnqueueBatch(ctx, specs, queue.WithBatchID(batchID))
}

func (a *queueAdapter) Status(ctx context.Context, jobID id.JobID) (job.Status, error) {
	return a.q.Status(ctx, jobID)
}

// Engine owns the fully wired generation core. Use New to create one.
type Engine struct {
	cfg       conduct.Config
	store     store.Store
	providers *provider.Registry
	chain     *provider.Chain
	hooks     *hook.Registry
	limits    *queue.Limits
	pipe      *pipeline.Pipeline
	bo        backoff.Strategy
	mws       []mw.Middleware
	logger    *slog.Logger

	publisher schedule.Publisher
	notifier  schedule.Notifier

	providerConfigs []queue.ProviderConfig

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	queue     *queue.Queue
	scheduler *schedule.Scheduler
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default timing and budget configuration.
func WithConfig(cfg conduct.Config) Option {
	return func(eng *Engine) { eng.cfg = cfg }
}

// WithLogger sets the logger shared by all subsystems.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithExtension registers a lifecycle extension with the engine.
func WithExtension(e hook.Extension) Option {
	return func(eng *Engine) { eng.hooks.Register(e) }
}

// WithMiddleware adds middleware to the dispatch chain, after the
// built-in recover/tracing/metrics/logging stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithBackoff sets the retry backoff strategy.
// If not set, backoff.Default() (exponential) is used.
func WithBackoff(b backoff.Strategy) Option {
	return func(eng *Engine) { eng.bo = b }
}

// WithProviderConfig registers per-provider rate limiting and
// concurrency budgets. Providers not listed have no limits.
func WithProviderConfig(configs ...queue.ProviderConfig) Option {
	return func(eng *Engine) {
		eng.providerConfigs = append(eng.providerConfigs, configs...)
	}
}

// WithPipeline replaces the default content pipeline.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(eng *Engine) { eng.pipe = p }
}

// WithPublisher sets the publish collaborator for auto-publish batches.
func WithPublisher(p schedule.Publisher) Option {
	return func(eng *Engine) { eng.publisher = p }
}

// WithNotifier sets the batch notification collaborator.
func WithNotifier(n schedule.Notifier) Option {
	return func(eng *Engine) { eng.notifier = n }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider for the engine.
// If not set, the global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New wires an Engine from a store, a provider registry, and a fallback
// chain. Every provider in the chain must be registered.
func New(st store.Store, providers *provider.Registry, chain *provider.Chain, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, conduct.ErrNoStore
	}
	if providers == nil {
		return nil, fmt.Errorf("conduct: engine requires a provider registry")
	}
	if chain == nil {
		return nil, fmt.Errorf("conduct: engine requires a fallback chain")
	}
	for _, name := range chain.Order() {
		if !providers.Has(name) {
			return nil, fmt.Errorf("%w: chain member %q", conduct.ErrUnknownProvider, name)
		}
	}

	eng := &Engine{
		cfg:       conduct.DefaultConfig(),
		store:     st,
		providers: providers,
		chain:     chain,
		logger:    slog.Default(),
	}
	eng.hooks = hook.NewRegistry(eng.logger)

	for _, opt := range opts {
		opt(eng)
	}

	if eng.bo == nil {
		eng.bo = backoff.Default()
	}
	if eng.pipe == nil {
		eng.pipe = pipeline.New(pipeline.WithLogger(eng.logger))
	}
	eng.limits = queue.NewLimits(eng.providerConfigs...)

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracer := eng.tracerProvider.Tracer("github.com/reelmill/conduct")
		tracingMw = mw.TracingWithTracer(tracer)
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		meter := eng.meterProvider.Meter("github.com/reelmill/conduct")
		metricsMw = mw.MetricsWithMeter(meter)
	} else {
		metricsMw = mw.Metrics()
	}

	// Default middleware stack: recover → tracing → metrics → logging.
	allMws := make([]mw.Middleware, 0, 4+len(eng.mws))
	allMws = append(allMws,
		mw.Recover(eng.logger),
		tracingMw,
		metricsMw,
		mw.Logging(eng.logger),
	)
	allMws = append(allMws, eng.mws...)

	eng.queue = queue.New(st, providers, chain,
		queue.WithPipeline(eng.pipe),
		queue.WithLimits(eng.limits),
		queue.WithHooks(eng.hooks),
		queue.WithBackoff(eng.bo),
		queue.WithMiddleware(allMws...),
		queue.WithLogger(eng.logger),
		queue.WithConcurrency(eng.cfg.Concurrency),
		queue.WithMaxRetries(eng.cfg.MaxRetries),
		queue.WithDispatchInterval(eng.cfg.DispatchInterval),
		queue.WithPollInterval(eng.cfg.PollInterval),
		queue.WithDispatchTimeout(eng.cfg.DispatchTimeout),
	)

	schedOpts := []schedule.SchedulerOption{
		schedule.WithHooks(eng.hooks),
		schedule.WithTickInterval(eng.cfg.TickInterval),
		schedule.WithMonitorInterval(eng.cfg.MonitorInterval),
	}
	if eng.publisher != nil {
		schedOpts = append(schedOpts, schedule.WithPublisher(eng.publisher))
	}
	if eng.notifier != nil {
		schedOpts = append(schedOpts, schedule.WithNotifier(eng.notifier))
	}
	eng.scheduler = schedule.NewScheduler(st, &queueAdapter{q: eng.queue}, eng.logger, schedOpts...)

	return eng, nil
}

// Start verifies the store connection and launches the queue and
// scheduler loops. It returns immediately.
func (eng *Engine) Start(ctx context.Context) error {
	if err := eng.store.Ping(ctx); err != nil {
		return fmt.Errorf("conduct: store ping: %w", err)
	}
	if err := eng.queue.Start(ctx); err != nil {
		return fmt.Errorf("conduct: start queue: %w", err)
	}
	if err := eng.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("conduct: start scheduler: %w", err)
	}

	eng.logger.Info("engine started", slog.Int("providers", len(eng.providers.Names())))
	return nil
}

// Stop gracefully shuts the engine down: scheduler first so no new
// batches fire, then the queue, then extension shutdown hooks. The
// configured ShutdownTimeout bounds the whole sequence unless the
// caller's context already carries a deadline.
func (eng *Engine) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok && eng.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, eng.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := eng.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	if err := eng.queue.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop queue: %w", err))
	}

	eng.hooks.EmitShutdown(ctx)

	if err := eng.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	eng.logger.Info("engine stopped")
	return nil
}

// Enqueue submits a single generation request to the queue.
func (eng *Engine) Enqueue(ctx context.Context, spec job.Spec) (id.JobID, error) {
	return eng.queue.Enqueue(ctx, spec)
}

// Status answers a caller's query about a job.
func (eng *Engine) Status(ctx context.Context, jobID id.JobID) (job.Status, error) {
	return eng.queue.Status(ctx, jobID)
}

// Cancel removes a job from future dispatch and poll cycles.
func (eng *Engine) Cancel(ctx context.Context, jobID id.JobID) (bool, error) {
	return eng.queue.Cancel(ctx, jobID)
}

// Stats summarizes queue occupancy.
func (eng *Engine) Stats(ctx context.Context) (job.Stats, error) {
	return eng.queue.Stats(ctx)
}

// Queue returns the dispatch queue.
func (eng *Engine) Queue() *queue.Queue { return eng.queue }

// Scheduler returns the scheduler.
func (eng *Engine) Scheduler() *schedule.Scheduler { return eng.scheduler }

// Hooks returns the extension registry.
func (eng *Engine) Hooks() *hook.Registry { return eng.hooks }

// Providers returns the provider registry.
func (eng *Engine) Providers() *provider.Registry { return eng.providers }

// Limits returns the per-provider budget manager.
func (eng *Engine) Limits() *queue.Limits { return eng.limits }

// Store returns the composite store.
func (eng *Engine) Store() store.Store { return eng.store }
