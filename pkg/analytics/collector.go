package analytics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/providerstats/pkg/async"
	"github.com/platinummonkey/providerstats/pkg/cache"
	"github.com/platinummonkey/providerstats/pkg/observability"
	"golang.org/x/sync/errgroup"
)

// CollectorConfig tunes the collector. Zero values get defaults.
type CollectorConfig struct {
	Workers         int
	ProviderTimeout time.Duration
	// EstimatePageViews enables the estimator as the last page view fallback.
	// When off, a provider with no page view source records 0 as unknown.
	EstimatePageViews bool
	Estimator         *Estimator
	Clock             clockwork.Clock
	Logger            *observability.Logger
	Metrics           *observability.Metrics
	OTel              *observability.OTelMetrics
}

// Collector derives per-provider daily metrics from the raw event tables.
type Collector struct {
	store     Store
	cache     cache.Cache
	estimator *Estimator
	clock     clockwork.Clock
	logger    *observability.Logger
	metrics   *observability.Metrics
	otel      *observability.OTelMetrics
	cfg       CollectorConfig
}

// NewCollector creates a collector. cache may be nil.
func NewCollector(store Store, c cache.Cache, cfg CollectorConfig) *Collector {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 30 * time.Second
	}
	if cfg.Estimator == nil {
		cfg.Estimator = NewEstimator(0)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	return &Collector{
		store:     store,
		cache:     c,
		estimator: cfg.Estimator,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		otel:      cfg.OTel,
		cfg:       cfg,
	}
}

// Today is the current UTC day by the collector clock.
func (c *Collector) Today() time.Time {
	return DayStart(c.clock.Now())
}

func (c *Collector) day(date time.Time) time.Time {
	if date.IsZero() {
		return c.Today()
	}
	return DayStart(date)
}

// rawCounts are the day's counts read from the event tables.
type rawCounts struct {
	leads           int64
	conversions     int64
	pageViews       int64
	pageViewSource  PageViewSource
	monthToDate     int64
	priorMonth      int64
	averageRating   float64
	totalReviews    int64
}

// readCounts runs the raw reads for p over [day, day+1) concurrently.
func (c *Collector) readCounts(ctx context.Context, p *Provider, day time.Time) (*rawCounts, error) {
	next := day.AddDate(0, 0, 1)
	month := MonthStart(day)
	prevMonth := month.AddDate(0, -1, 0)

	var rc rawCounts
	pageViewsMissing := false

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rc.leads, err = c.store.CountLeads(gctx, p.ID, day, next)
		return wrap(err, "count leads")
	})
	g.Go(func() (err error) {
		rc.conversions, err = c.store.CountConversions(gctx, p.ID, day, next)
		return wrap(err, "count conversions")
	})
	g.Go(func() (err error) {
		rc.monthToDate, err = c.store.CountLeads(gctx, p.ID, month, next)
		return wrap(err, "count month-to-date leads")
	})
	g.Go(func() (err error) {
		rc.priorMonth, err = c.store.CountLeads(gctx, p.ID, prevMonth, month)
		return wrap(err, "count prior month leads")
	})
	g.Go(func() (err error) {
		rc.averageRating, rc.totalReviews, err = c.store.ReviewStats(gctx, p.ID)
		return wrap(err, "review stats")
	})
	g.Go(func() error {
		n, err := c.store.CountPageViews(gctx, p.ID, day, next)
		if errors.Is(err, ErrSourceUnavailable) {
			pageViewsMissing = true
			return nil
		}
		rc.pageViews = n
		return wrap(err, "count page views")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rc.pageViewSource = SourceObserved
	if pageViewsMissing {
		c.fallbackPageViews(ctx, p, day, &rc)
	}
	return &rc, nil
}

// fallbackPageViews walks tracked counter, estimator, unknown.
func (c *Collector) fallbackPageViews(ctx context.Context, p *Provider, day time.Time, rc *rawCounts) {
	logger := c.logger.WithField("provider_id", p.ID)

	if c.cache != nil {
		n, ok, err := cache.GetCounter(ctx, c.cache, cache.CounterKey(p.ID, day, cache.CounterPageViews))
		if err != nil {
			logger.WithError(err).Warn("Failed to read tracked page views")
		} else if ok {
			rc.pageViews = n
			rc.pageViewSource = SourceTracked
			return
		}
	}

	if c.cfg.EstimatePageViews {
		rc.pageViews = c.estimator.Estimate(*p, day, -1).PageViews
		rc.pageViewSource = SourceEstimated
		logger.Debug("Page views estimated")
		return
	}

	rc.pageViews = 0
	rc.pageViewSource = SourceUnknown
	logger.Debug("Page views unknown")
}

func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// buildRecord derives the full record from rc. Profile views are always a
// fraction of the page views being recorded, whatever their source.
func (c *Collector) buildRecord(p *Provider, day time.Time, rc *rawCounts) *MetricRecord {
	est := c.estimator.Estimate(*p, day, rc.pageViews)
	return &MetricRecord{
		ProviderID:           p.ID,
		Date:                 day,
		LeadsReceived:        rc.leads,
		PageViews:            rc.pageViews,
		Conversions:          rc.conversions,
		ConversionRate:       ConversionRate(rc.conversions, rc.pageViews),
		MonthlyGrowth:        MonthlyGrowth(rc.monthToDate, rc.priorMonth),
		AverageRating:        rc.averageRating,
		TotalReviews:         rc.totalReviews,
		ResponseTime:         est.ResponseTime,
		ProfileViews:         est.ProfileViews,
		IntentionScore:       est.IntentionScore,
		ConversionPointLeads: ConversionPointLeads(rc.conversions),
		PageViewsSource:      rc.pageViewSource,
		Simulated:            true,
	}
}

// Compute builds and upserts the MetricRecord for providerID on date. A
// zero date means today.
func (c *Collector) Compute(ctx context.Context, providerID int64, date time.Time) (*MetricRecord, error) {
	p, err := c.store.GetProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return c.computeFor(ctx, p, c.day(date))
}

func (c *Collector) computeFor(ctx context.Context, p *Provider, day time.Time) (*MetricRecord, error) {
	rc, err := c.readCounts(ctx, p, day)
	if err != nil {
		return nil, err
	}

	rec := c.buildRecord(p, day, rc)
	if err := c.store.UpsertMetric(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to upsert metrics: %w", err)
	}
	if c.metrics != nil {
		c.metrics.MetricsUpserted.Inc()
		c.metrics.EstimatedRecords.WithLabelValues(string(rec.PageViewsSource)).Inc()
	}

	c.writeThrough(ctx, rec)
	return rec, nil
}

// writeThrough refreshes the day counters from the authoritative counts.
// Estimated page views are never written back as tracked.
func (c *Collector) writeThrough(ctx context.Context, rec *MetricRecord) {
	if c.cache == nil {
		return
	}
	expireAt := cache.CounterExpiry(rec.Date)
	counters := map[string]int64{
		cache.CounterLeads:       rec.LeadsReceived,
		cache.CounterConversions: rec.Conversions,
	}
	if rec.PageViewsSource == SourceObserved || rec.PageViewsSource == SourceTracked {
		counters[cache.CounterPageViews] = rec.PageViews
	}
	for name, v := range counters {
		key := cache.CounterKey(rec.ProviderID, rec.Date, name)
		if err := cache.SetCounter(ctx, c.cache, key, v, expireAt); err != nil {
			c.logger.WithError(err).WithField("key", key).Warn("Failed to write metric counter")
		}
	}
}

// ComputeDailyMetrics computes and stores one provider-day. Failures are
// logged and reported as nil so callers can retry later.
func (c *Collector) ComputeDailyMetrics(ctx context.Context, providerID int64, date time.Time) *MetricRecord {
	rec, err := c.Compute(ctx, providerID, date)
	if err != nil {
		c.logger.WithError(err).
			WithField("provider_id", providerID).
			WithField("date", c.day(date).Format("2006-01-02")).
			Error("Failed to compute daily metrics")
		return nil
	}
	return rec
}

// UpdateAllDailyMetrics computes date for every approved provider on a
// bounded worker pool. One provider's failure never stops the others. The
// error is only set when the provider list cannot be loaded.
func (c *Collector) UpdateAllDailyMetrics(ctx context.Context, date time.Time) (*async.BatchResult, error) {
	day := c.day(date)

	providers, err := c.store.ListApprovedProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}

	res := c.forEachProvider(ctx, providers, "daily metrics", func(ctx context.Context, p *Provider) error {
		_, err := c.computeFor(ctx, p, day)
		return err
	})

	c.logger.WithFields(map[string]interface{}{
		"date":      day.Format("2006-01-02"),
		"succeeded": res.Succeeded,
		"failed":    len(res.Failures),
	}).Info("Daily metrics updated")
	c.RecordBatch(ctx, "daily", res)

	return res, nil
}

// RecordBatch reports the per-provider outcome of a batch job to the
// configured metrics backends.
func (c *Collector) RecordBatch(ctx context.Context, job string, res *async.BatchResult) {
	c.metrics.ObserveProviders(job, res.Succeeded, len(res.Failures))
	c.otel.RecordProviders(ctx, job, res.Succeeded, len(res.Failures))
}

// RefreshCounts is the hourly path: find or create the day's record, persist
// fresh counts, review stats and simulated fields, then persist the derived
// rates in a second write.
func (c *Collector) RefreshCounts(ctx context.Context, p *Provider, date time.Time) (*MetricRecord, error) {
	day := c.day(date)

	rec, err := c.store.EnsureMetric(ctx, p.ID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create metrics: %w", err)
	}

	rc, err := c.readCounts(ctx, p, day)
	if err != nil {
		return nil, err
	}

	fresh := c.buildRecord(p, day, rc)
	fresh.ID = rec.ID
	fresh.CreatedAt = rec.CreatedAt
	if err := c.store.UpdateMetricCounts(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to update counts: %w", err)
	}
	if err := c.store.UpdateMetricDerived(ctx, fresh.ID, fresh.ConversionRate, fresh.MonthlyGrowth); err != nil {
		return nil, fmt.Errorf("failed to update derived metrics: %w", err)
	}

	c.writeThrough(ctx, fresh)
	return fresh, nil
}

// ForEachApprovedProvider runs fn over approved providers on the collector's
// worker pool.
func (c *Collector) ForEachApprovedProvider(ctx context.Context, taskName string,
	fn func(context.Context, *Provider) error) (*async.BatchResult, error) {

	providers, err := c.store.ListApprovedProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return c.forEachProvider(ctx, providers, taskName, fn), nil
}

func (c *Collector) forEachProvider(ctx context.Context, providers []Provider, taskName string,
	fn func(context.Context, *Provider) error) *async.BatchResult {

	return async.Batch(ctx, providers, c.cfg.Workers, taskName, c.cfg.ProviderTimeout,
		func(p Provider) string { return strconv.FormatInt(p.ID, 10) },
		func(ctx context.Context, p Provider) error {
			if err := fn(ctx, &p); err != nil {
				c.logger.WithError(err).WithField("provider_id", p.ID).Warnf("%s failed for provider", taskName)
				return err
			}
			return nil
		})
}
