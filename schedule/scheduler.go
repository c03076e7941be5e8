package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/reelmill/conduct"
	"github.com/reelmill/conduct/hook"
	"github.com/reelmill/conduct/id"
	"github.com/reelmill/conduct/job"
)

// cadenceParser supports standard 5-field cron and descriptors like
// "@hourly" or "@every 30m".
var cadenceParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseCadence parses a cron expression and returns the cadence.
func ParseCadence(expr string) (cronlib.Schedule, error) {
	return cadenceParser.Parse(expr)
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithTickInterval sets how often the scheduler checks for due schedules.
func WithTickInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.tickInterval = d }
}

// WithMonitorInterval sets how often open batches are re-checked.
func WithMonitorInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.monitorInterval = d }
}

// WithPublisher sets the publish collaborator for auto-publish batches.
func WithPublisher(p Publisher) SchedulerOption {
	return func(s *Scheduler) { s.publisher = p }
}

// WithNotifier sets the notification collaborator.
func WithNotifier(n Notifier) SchedulerOption {
	return func(s *Scheduler) { s.notifier = n }
}

// WithHooks sets the lifecycle extension registry.
func WithHooks(h *hook.Registry) SchedulerOption {
	return func(s *Scheduler) { s.hooks = h }
}

// Scheduler owns schedule configs, fires batches of job specs on each
// cadence tick, and monitors every batch to resolution.
type Scheduler struct {
	store  Store
	queue  JobQueue
	logger *slog.Logger

	publisher Publisher
	notifier  Notifier
	hooks     *hook.Registry

	tickInterval    time.Duration
	monitorInterval time.Duration

	// parsed caches parsed cadence expressions.
	parsedMu sync.RWMutex
	parsed   map[string]cronlib.Schedule

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a Scheduler.
func NewScheduler(store Store, queue JobQueue, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := conduct.DefaultConfig()
	s := &Scheduler{
		store:           store,
		queue:           queue,
		logger:          logger,
		hooks:           hook.NewRegistry(logger),
		tickInterval:    cfg.TickInterval,
		monitorInterval: cfg.MonitorInterval,
		parsed:          make(map[string]cronlib.Schedule),
		stopCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the tick and batch-monitor goroutines.
func (s *Scheduler) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	s.wg.Add(2)
	go s.tickLoop()
	go s.monitorLoop()

	s.logger.Info("scheduler started",
		slog.Duration("tick_interval", s.tickInterval),
		slog.Duration("monitor_interval", s.monitorInterval),
	)
	return nil
}

// Stop signals the scheduler to stop and waits for goroutines to finish.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

// CreateSchedule validates and registers a schedule, returning its ID
// with the first run time already computed.
func (s *Scheduler) CreateSchedule(ctx context.Context, cfg *Config) (id.ScheduleID, error) {
	if err := cfg.Validate(); err != nil {
		return id.Nil, err
	}

	now := time.Now().UTC()
	if cfg.ID.IsNil() {
		cfg.ID = id.NewScheduleID()
	}
	cfg.Touch(now)

	sched, err := s.cadence(cfg)
	if err != nil {
		return id.Nil, err
	}
	next := sched.Next(now)
	cfg.NextRunAt = &next

	if err := s.store.CreateSchedule(ctx, cfg); err != nil {
		return id.Nil, err
	}

	s.logger.Info("schedule created",
		slog.String("schedule_id", cfg.ID.String()),
		slog.String("name", cfg.Name),
		slog.String("frequency", string(cfg.Frequency)),
		slog.Time("next_run_at", next),
	)
	return cfg.ID, nil
}

// UpdateSchedule validates and replaces an existing schedule config,
// recomputing its next run time.
func (s *Scheduler) UpdateSchedule(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if _, err := s.store.GetSchedule(ctx, cfg.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	sched, err := s.cadence(cfg)
	if err != nil {
		return err
	}
	next := sched.Next(now)
	cfg.NextRunAt = &next
	cfg.Touch(now)

	return s.store.UpdateSchedule(ctx, cfg)
}

// PauseSchedule stops future ticks. In-flight batches continue
// monitoring to completion.
func (s *Scheduler) PauseSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	return s.setEnabled(ctx, scheduleID, false)
}

// ResumeSchedule re-enables ticks, recomputing the next run time so the
// paused period is skipped rather than fired retroactively.
func (s *Scheduler) ResumeSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	return s.setEnabled(ctx, scheduleID, true)
}

func (s *Scheduler) setEnabled(ctx context.Context, scheduleID id.ScheduleID, enabled bool) error {
	cfg, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	cfg.Enabled = enabled
	if enabled {
		sched, cadErr := s.cadence(cfg)
		if cadErr != nil {
			return cadErr
		}
		next := sched.Next(now)
		cfg.NextRunAt = &next
	}
	cfg.Touch(now)

	return s.store.UpdateSchedule(ctx, cfg)
}

// DeleteSchedule releases the schedule's timer and forgets the config.
// In-flight batches for it still finish, driven by their policy snapshot.
func (s *Scheduler) DeleteSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	if err := s.store.DeleteSchedule(ctx, scheduleID); err != nil {
		return err
	}
	s.logger.Info("schedule deleted", slog.String("schedule_id", scheduleID.String()))
	return nil
}

// TriggerSchedule forces one tick immediately, without altering the next
// scheduled tick.
func (s *Scheduler) TriggerSchedule(ctx context.Context, scheduleID id.ScheduleID) error {
	cfg, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	s.fire(ctx, cfg, time.Now().UTC(), false)
	return nil
}

// GetSchedule retrieves one schedule config.
func (s *Scheduler) GetSchedule(ctx context.Context, scheduleID id.ScheduleID) (*Config, error) {
	return s.store.GetSchedule(ctx, scheduleID)
}

// GetAllSchedules lists every schedule config.
func (s *Scheduler) GetAllSchedules(ctx context.Context) ([]*Config, error) {
	return s.store.ListSchedules(ctx)
}

// tickLoop fires due schedules on each tick interval.
func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()

	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		s.logger.Error("list schedules error", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, cfg := range schedules {
		if !cfg.Enabled {
			continue
		}
		if cfg.NextRunAt == nil || cfg.NextRunAt.After(now) {
			continue
		}
		s.fire(ctx, cfg, now, true)
	}
}

// fire runs one tick of a schedule: build one spec per template, enqueue
// them as a batch, and record the batch for monitoring. A tick that
// fails to enqueue records an empty batch (vacuously resolved) — it
// never stops future ticks.
func (s *Scheduler) fire(ctx context.Context, cfg *Config, now time.Time, advanceNext bool) {
	specs := make([]job.Spec, len(cfg.Templates))
	for i, t := range cfg.Templates {
		specs[i] = t.Spec(now)
	}

	batchID := id.NewBatchID()
	jobIDs, err := s.queue.EnqueueBatch(ctx, batchID, specs)
	if err != nil {
		s.logger.Error("schedule tick enqueue error",
			slog.String("schedule_id", cfg.ID.String()),
			slog.String("name", cfg.Name),
			slog.String("error", err.Error()),
		)
		jobIDs = nil
	}

	b := &Batch{
		ID:               batchID,
		ScheduleID:       cfg.ID,
		JobIDs:           jobIDs,
		Platforms:        append([]string(nil), cfg.Platforms...),
		QualityThreshold: cfg.Threshold(),
		AutoPublish:      cfg.AutoPublish,
		NotifyOnComplete: cfg.NotifyOnComplete,
	}
	b.Touch(now)

	if putErr := s.store.PutBatch(ctx, b); putErr != nil {
		s.logger.Error("record batch error",
			slog.String("batch_id", batchID.String()),
			slog.String("error", putErr.Error()),
		)
		return
	}

	cfg.LastRunAt = &now
	if advanceNext {
		if sched, cadErr := s.cadence(cfg); cadErr == nil {
			next := sched.Next(now)
			cfg.NextRunAt = &next
		}
	}
	cfg.Touch(now)
	if updateErr := s.store.UpdateSchedule(ctx, cfg); updateErr != nil {
		s.logger.Error("update schedule after tick error",
			slog.String("schedule_id", cfg.ID.String()),
			slog.String("error", updateErr.Error()),
		)
	}

	s.hooks.EmitScheduleFired(ctx, cfg.ID, batchID, jobIDs)
	s.logger.Info("schedule fired",
		slog.String("schedule_id", cfg.ID.String()),
		slog.String("name", cfg.Name),
		slog.String("batch_id", batchID.String()),
		slog.Int("jobs", len(jobIDs)),
	)
}

// monitorLoop re-checks open batches for resolution on each interval.
func (s *Scheduler) monitorLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.monitor()
		}
	}
}

func (s *Scheduler) monitor() {
	ctx := context.Background()

	batches, err := s.store.ListBatches(ctx)
	if err != nil {
		s.logger.Error("list batches error", slog.String("error", err.Error()))
		return
	}

	for _, b := range batches {
		s.checkBatch(ctx, b)
	}
}

// checkBatch resolves the batch if every member job is terminal. Running
// in the single monitor goroutine and deleting the batch after its
// post-actions gives exactly-once resolution semantics.
func (s *Scheduler) checkBatch(ctx context.Context, b *Batch) {
	statuses := make([]job.Status, len(b.JobIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, jobID := range b.JobIDs {
		g.Go(func() error {
			st, err := s.queue.Status(gctx, jobID)
			if err != nil {
				return err
			}
			statuses[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("batch status poll error",
			slog.String("batch_id", b.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	completed, failed := 0, 0
	for _, st := range statuses {
		switch {
		case !st.State.Terminal():
			return // not resolved yet
		case st.State == job.StateCompleted:
			completed++
		default:
			failed++
		}
	}

	if b.AutoPublish {
		s.publishBatch(ctx, b, statuses)
	}

	if b.NotifyOnComplete && s.notifier != nil {
		s.notifier.Notify(ctx, Summary{
			ScheduleID: b.ScheduleID,
			BatchID:    b.ID,
			Completed:  completed,
			Failed:     failed,
		})
	}

	if err := s.store.DeleteBatch(ctx, b.ID); err != nil {
		s.logger.Error("delete resolved batch error",
			slog.String("batch_id", b.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	s.hooks.EmitBatchResolved(ctx, b.ID, completed, failed)
	s.logger.Info("batch resolved",
		slog.String("batch_id", b.ID.String()),
		slog.String("schedule_id", b.ScheduleID.String()),
		slog.Int("completed", completed),
		slog.Int("failed", failed),
	)
}

// publishBatch hands every completed result to the publisher, once per
// configured platform. Publish failures are logged, never retried.
func (s *Scheduler) publishBatch(ctx context.Context, b *Batch, statuses []job.Status) {
	if s.publisher == nil {
		s.logger.Warn("auto-publish configured but no publisher wired",
			slog.String("batch_id", b.ID.String()))
		return
	}

	for _, st := range statuses {
		if st.State != job.StateCompleted || st.Result == nil {
			continue
		}
		// Results under the batch's quality gate are flagged for
		// regeneration, not published.
		if st.Result.Metrics.VisualClarity < b.QualityThreshold {
			s.logger.Warn("skipping publish of below-threshold result",
				slog.String("job_id", st.ID.String()),
				slog.Int("visual_clarity", st.Result.Metrics.VisualClarity),
				slog.Int("threshold", b.QualityThreshold),
			)
			continue
		}
		for _, platform := range b.Platforms {
			res, err := s.publisher.Publish(ctx, st.Result, platform)
			switch {
			case err != nil:
				s.logger.Error("publish error",
					slog.String("job_id", st.ID.String()),
					slog.String("platform", platform),
					slog.String("error", err.Error()),
				)
			case !res.Success:
				s.logger.Warn("publish rejected",
					slog.String("job_id", st.ID.String()),
					slog.String("platform", platform),
					slog.String("error", res.Err),
				)
			default:
				s.logger.Info("published",
					slog.String("job_id", st.ID.String()),
					slog.String("platform", platform),
					slog.String("url", res.URL),
				)
			}
		}
	}
}

// cadence returns the parsed cadence for cfg, caching by expression.
func (s *Scheduler) cadence(cfg *Config) (cronlib.Schedule, error) {
	expr := cfg.cadenceExpr()

	s.parsedMu.RLock()
	sched, ok := s.parsed[expr]
	s.parsedMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := ParseCadence(expr)
	if err != nil {
		return nil, err
	}

	s.parsedMu.Lock()
	s.parsed[expr] = sched
	s.parsedMu.Unlock()
	return sched, nil
}
