package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/platinummonkey/providerstats/pkg/distlock"
	"github.com/platinummonkey/providerstats/pkg/observability"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default cron expressions, evaluated in UTC.
const (
	DefaultDailySchedule     = "0 2 * * *"
	DefaultHourlySchedule    = "0 * * * *"
	DefaultWeeklySchedule    = "0 8 * * 1"
	DefaultRetentionSchedule = "0 3 1 * *"
)

var (
	// ErrJobLocked means another replica holds the job lock.
	ErrJobLocked = errors.New("job is running elsewhere")
	// ErrUnknownJob is returned by RunOnce for an unregistered name.
	ErrUnknownJob = errors.New("unknown job")
	// ErrBackfillAll rejects a dated run of every job, which would also send
	// the weekly emails and run the retention sweep.
	ErrBackfillAll = errors.New("a dated run needs a single job")
)

// Config tunes retries and run limits.
type Config struct {
	// MaxRetries is the number of retries after the first failed attempt.
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
	Timeout      time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 30 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5 * time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = time.Hour
	}
}

// Scheduler runs registered jobs on cron schedules. Each run holds a
// distributed lock, is retried with exponential backoff and gets its own
// run ID.
type Scheduler struct {
	cron    *cron.Cron
	locks   distlock.Factory
	logger  *observability.Logger
	metrics *observability.Metrics
	otel    *observability.OTelMetrics
	cfg     Config

	mu    sync.RWMutex
	jobs  map[string]Job
	order []string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. metrics and otel may be nil.
func NewScheduler(cfg Config, locks distlock.Factory, logger *observability.Logger,
	metrics *observability.Metrics, otel *observability.OTelMetrics) *Scheduler {
	cfg.setDefaults()
	if logger == nil {
		logger = observability.NopLogger()
	}
	if locks == nil {
		locks = distlock.NewLocalLocks().Lock
	}

	cronLogger := observability.CronLogger{Logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		locks:   locks,
		logger:  logger,
		metrics: metrics,
		otel:    otel,
		cfg:     cfg,
		jobs:    make(map[string]Job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a job. An empty spec registers it for RunOnce only.
func (s *Scheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	if spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.runScheduled(job) }); err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
		}
		s.logger.WithFields(map[string]interface{}{"job": name, "schedule": spec}).Info("Job scheduled")
	}
	s.jobs[name] = job
	s.order = append(s.order, name)
	return nil
}

// Jobs lists registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Start starts the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Scheduler started")
}

// Stop stops scheduling and waits for running jobs until ctx is done, then
// cancels whatever is still running.
func (s *Scheduler) Stop(ctx context.Context) error {
	defer s.cancel()
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out, cancelling running jobs")
		return ctx.Err()
	}
}

// CheckRunOnce validates a --run-once request. A backfill for a past date
// may name one job but not NameAll.
func CheckRunOnce(name string, backfill bool) error {
	if backfill && name == NameAll {
		return ErrBackfillAll
	}
	return nil
}

// RunOnce runs the named job now, or every registered job for NameAll.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	if name == NameAll {
		var errs []error
		for _, n := range s.Jobs() {
			if err := s.RunOnce(ctx, n); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", n, err))
			}
		}
		return errors.Join(errs...)
	}

	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, job)
}

func (s *Scheduler) runScheduled(job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.execute(ctx, job); err != nil && !errors.Is(err, ErrJobLocked) {
		s.logger.WithError(err).WithField("job", job.Name()).Error("Scheduled job failed")
	}
}

// execute runs one job under its lock with retries.
func (s *Scheduler) execute(ctx context.Context, job Job) (err error) {
	name := job.Name()
	runID := uuid.NewString()
	logger := s.logger.WithFields(map[string]interface{}{"job": name, "run_id": runID})
	ctx = observability.WithLogger(observability.WithRunID(ctx, runID), logger)

	ctx, span := observability.Tracer().Start(ctx, "jobs."+name, trace.WithAttributes(
		attribute.String("job.name", name),
		attribute.String("job.run_id", runID),
	))
	defer func() {
		if err != nil && !errors.Is(err, ErrJobLocked) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	lock := s.locks(name)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to acquire job lock")
		s.metrics.ObserveJob(name, time.Now(), err)
		return err
	}
	if !acquired {
		logger.Info("Job lock held by another instance, skipping run")
		if s.metrics != nil {
			s.metrics.JobSkippedTotal.WithLabelValues(name).Inc()
		}
		return ErrJobLocked
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := lock.Release(releaseCtx); rerr != nil {
			logger.WithError(rerr).Warn("Failed to release job lock")
		}
	}()

	started := time.Now()
	logger.Info("Job started")

	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		return s.runJob(ctx, job, logger)
	}, s.policy(ctx), func(err error, wait time.Duration) {
		logger.WithError(err).Warnf("Job attempt %d failed, retrying in %s", attempt, wait)
		if s.metrics != nil {
			s.metrics.JobRetriesTotal.WithLabelValues(name).Inc()
		}
	})

	s.metrics.ObserveJob(name, started, err)
	s.otel.RecordJob(ctx, name, time.Since(started), err)

	fields := map[string]interface{}{"attempts": attempt, "duration": time.Since(started).String()}
	if err != nil {
		logger.WithFields(fields).WithError(err).Error("Job failed")
		return err
	}
	logger.WithFields(fields).Info("Job completed")
	return nil
}

// runJob turns a panic into an error so it can be retried.
func (s *Scheduler) runJob(ctx context.Context, job Job, logger *observability.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Job panicked")
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

func (s *Scheduler) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitial
	b.MaxInterval = s.cfg.RetryMax
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxRetries)), ctx)
}
