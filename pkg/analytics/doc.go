// Package analytics computes per-provider daily metrics for the marketplace.
//
// # Overview
//
// A MetricRecord holds one provider's numbers for one UTC day: leads,
// page views, conversions, the derived conversion rate and monthly growth,
// review stats, and a few estimated engagement values. The Collector reads
// the raw lead, page view and review tables through a Store, derives the
// record and upserts it, so recomputing a day is always safe.
//
// # Page Views
//
// Page views are taken from the first source that can answer:
//
//   - observed: the page view log
//   - tracked: the real-time counter in the cache
//   - estimated: the seeded Estimator, when enabled
//   - unknown: recorded as 0
//
// The source is stored on the record as PageViewsSource.
//
// # Usage Example
//
// Compute one provider-day:
//
//	collector := analytics.NewCollector(store, cache, analytics.CollectorConfig{
//		Workers:           8,
//		EstimatePageViews: true,
//		Estimator:         analytics.NewEstimator(seed),
//	})
//	rec, err := collector.Compute(ctx, providerID, time.Time{}) // today
//
// Record activity as it happens:
//
//	tracker := analytics.NewTracker(collector, cache, throttle)
//	tracker.TrackLead(ctx, providerID)
//
// Read cached platform summaries:
//
//	rollups := analytics.NewRollups(store, cache, clock, logger, metrics, 10)
//	today, err := rollups.DailySummary(ctx, time.Now())
//
// # Related Packages
//
//   - pkg/cache: counter and summary keys
//   - pkg/storage/sqlstore: the SQL Store
//   - pkg/jobs: the periodic jobs that drive the collector
package analytics
