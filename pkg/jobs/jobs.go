package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/archive"
	"github.com/platinummonkey/providerstats/pkg/observability"
)

// Job names, also used as lock keys and metric labels.
const (
	NameDaily     = "daily"
	NameHourly    = "hourly"
	NameWeekly    = "weekly"
	NameRetention = "retention"
	NameAll       = "all"
)

// Job is one idempotent unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// ReportNotifier delivers the weekly report.
type ReportNotifier interface {
	SendProviderWeeklySummary(ctx context.Context, report *analytics.WeeklyReport, wt analytics.WeekTotals) error
	SendAdminWeeklySummary(ctx context.Context, report *analytics.WeeklyReport, admins []string) error
}

// Sweeper runs the retention sweep.
type Sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (*archive.SweepResult, error)
}

func loggerFrom(ctx context.Context, fallback *observability.Logger) *observability.Logger {
	if l, ok := ctx.Value(observability.LoggerKey).(*observability.Logger); ok {
		return l
	}
	if fallback == nil {
		return observability.NopLogger()
	}
	return fallback
}

// DailyJob computes today's metrics for every approved provider.
type DailyJob struct {
	collector *analytics.Collector
	clock     clockwork.Clock
	logger    *observability.Logger
}

// NewDailyJob creates the daily job.
func NewDailyJob(collector *analytics.Collector, clock clockwork.Clock, logger *observability.Logger) *DailyJob {
	return &DailyJob{collector: collector, clock: clock, logger: logger}
}

// Name implements Job.
func (j *DailyJob) Name() string { return NameDaily }

// Run implements Job. Any failed provider fails the run so it is retried;
// the upserts make a rerun safe.
func (j *DailyJob) Run(ctx context.Context) error {
	logger := loggerFrom(ctx, j.logger)
	today := analytics.DayStart(j.clock.Now())

	res, err := j.collector.UpdateAllDailyMetrics(ctx, today)
	if err != nil {
		logger.WithError(err).Error("Daily metrics could not start")
		return err
	}
	if err := res.Err(); err != nil {
		logger.WithError(err).Errorf("Daily metrics failed for %d of %d providers", len(res.Failures), res.Total())
		return fmt.Errorf("daily metrics failed for %d providers: %w", len(res.Failures), err)
	}
	return nil
}

// HourlyJob refreshes today's counts and the rollup cache.
type HourlyJob struct {
	collector *analytics.Collector
	rollups   *analytics.Rollups
	clock     clockwork.Clock
	logger    *observability.Logger
}

// NewHourlyJob creates the hourly job.
func NewHourlyJob(collector *analytics.Collector, rollups *analytics.Rollups, clock clockwork.Clock,
	logger *observability.Logger) *HourlyJob {
	return &HourlyJob{collector: collector, rollups: rollups, clock: clock, logger: logger}
}

// Name implements Job.
func (j *HourlyJob) Name() string { return NameHourly }

// Run implements Job. Provider failures are logged and do not fail the run;
// the next hour refreshes them again.
func (j *HourlyJob) Run(ctx context.Context) error {
	logger := loggerFrom(ctx, j.logger)
	now := j.clock.Now().UTC()

	res, err := j.collector.ForEachApprovedProvider(ctx, "hourly refresh", func(ctx context.Context, p *analytics.Provider) error {
		_, err := j.collector.RefreshCounts(ctx, p, now)
		return err
	})
	if err != nil {
		return err
	}
	j.collector.RecordBatch(ctx, NameHourly, res)

	summary, err := j.rollups.RefreshHourly(ctx, now)
	if err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"providers":   res.Total(),
		"failed":      len(res.Failures),
		"leads":       summary.TotalLeads,
		"conversions": summary.TotalConversions,
	}).Info("Hourly refresh complete")
	return nil
}

// WeeklyReportJob emails last week's report.
type WeeklyReportJob struct {
	store    analytics.Store
	notifier ReportNotifier
	clock    clockwork.Clock
	logger   *observability.Logger
}

// NewWeeklyReportJob creates the weekly report job.
func NewWeeklyReportJob(store analytics.Store, notifier ReportNotifier, clock clockwork.Clock,
	logger *observability.Logger) *WeeklyReportJob {
	return &WeeklyReportJob{store: store, notifier: notifier, clock: clock, logger: logger}
}

// Name implements Job.
func (j *WeeklyReportJob) Name() string { return NameWeekly }

// Run implements Job. Errors before the first email is sent are retried.
// Delivery errors are not, since a retry would mail every provider again.
func (j *WeeklyReportJob) Run(ctx context.Context) error {
	logger := loggerFrom(ctx, j.logger)

	report, err := analytics.BuildWeeklyReport(ctx, j.store, j.clock.Now())
	if err != nil {
		return err
	}
	admins, err := j.store.ListAdminEmails(ctx)
	if err != nil {
		return fmt.Errorf("failed to list admins: %w", err)
	}

	sent, failed, skipped := 0, 0, 0
	for _, wt := range report.Providers {
		if !wt.Provider.WeeklyReportOptIn {
			skipped++
			continue
		}
		if err := j.notifier.SendProviderWeeklySummary(ctx, report, wt); err != nil {
			failed++
			logger.WithError(err).WithField("provider_id", wt.Provider.ID).Warn("Failed to send provider weekly summary")
			continue
		}
		sent++
	}

	adminErr := j.notifier.SendAdminWeeklySummary(ctx, report, admins)
	if adminErr != nil {
		logger.WithError(adminErr).Error("Failed to send admin weekly summary")
	}

	logger.WithFields(map[string]interface{}{
		"week_start": report.WeekStart.Format("2006-01-02"),
		"sent":       sent,
		"failed":     failed,
		"opted_out":  skipped,
		"admins":     len(admins),
	}).Info("Weekly report sent")

	if adminErr != nil {
		return backoff.Permanent(adminErr)
	}
	return nil
}

// RetentionJob archives and deletes expired metrics.
type RetentionJob struct {
	sweeper Sweeper
	logger  *observability.Logger
}

// NewRetentionJob creates the retention job.
func NewRetentionJob(sweeper Sweeper, logger *observability.Logger) *RetentionJob {
	return &RetentionJob{sweeper: sweeper, logger: logger}
}

// Name implements Job.
func (j *RetentionJob) Name() string { return NameRetention }

// Run implements Job.
func (j *RetentionJob) Run(ctx context.Context) error {
	res, err := j.sweeper.Sweep(ctx, time.Time{})
	if err != nil {
		return err
	}
	loggerFrom(ctx, j.logger).WithFields(map[string]interface{}{
		"sweep_id": res.RunID,
		"archived": res.Archived,
		"deleted":  res.Deleted,
	}).Info("Retention sweep finished")
	return nil
}
