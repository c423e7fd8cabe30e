package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/providerstats/pkg/cache"
	"github.com/platinummonkey/providerstats/pkg/observability"
)

// PlatformSummary totals all providers over [From, To).
type PlatformSummary struct {
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
	Providers        int       `json:"providers"`
	TotalLeads       int64     `json:"total_leads"`
	TotalPageViews   int64     `json:"total_page_views"`
	TotalConversions int64     `json:"total_conversions"`
	ConversionRate   float64   `json:"conversion_rate"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// Summarize folds per-provider totals into a platform summary.
func Summarize(totals []ProviderTotals, from, to, now time.Time) PlatformSummary {
	s := PlatformSummary{From: from, To: to, Providers: len(totals), GeneratedAt: now}
	for _, t := range totals {
		s.TotalLeads += t.Leads
		s.TotalPageViews += t.PageViews
		s.TotalConversions += t.Conversions
	}
	s.ConversionRate = ConversionRate(s.TotalConversions, s.TotalPageViews)
	return s
}

// TopBy returns the first n totals ordered by the given key, descending, ties
// broken by provider id.
func TopBy(totals []ProviderTotals, n int, key func(ProviderTotals) int64) []ProviderTotals {
	sorted := append([]ProviderTotals(nil), totals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ki, kj := key(sorted[i]), key(sorted[j])
		if ki != kj {
			return ki > kj
		}
		return sorted[i].ProviderID < sorted[j].ProviderID
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

func byConversions(t ProviderTotals) int64 { return t.Conversions }
func byLeads(t ProviderTotals) int64       { return t.Leads }

// Rollups serves platform summaries cache-aside. A cache miss or cache error
// always falls through to the store.
type Rollups struct {
	store   Store
	cache   cache.Cache
	clock   clockwork.Clock
	logger  *observability.Logger
	metrics *observability.Metrics
	topN    int
}

// NewRollups creates a rollup reader. c may be nil.
func NewRollups(store Store, c cache.Cache, clock clockwork.Clock, logger *observability.Logger,
	metrics *observability.Metrics, topN int) *Rollups {

	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	if topN <= 0 {
		topN = 10
	}
	return &Rollups{store: store, cache: c, clock: clock, logger: logger, metrics: metrics, topN: topN}
}

func (r *Rollups) summary(ctx context.Context, kind, key string, ttl time.Duration, from, to time.Time) (*PlatformSummary, error) {
	var s PlatformSummary
	if r.cache != nil {
		ok, err := cache.GetJSON(ctx, r.cache, key, &s)
		if err != nil {
			r.logger.WithError(err).WithField("key", key).Warn("Rollup cache read failed")
		}
		r.metrics.ObserveCache(kind, ok)
		if ok {
			return &s, nil
		}
	}

	totals, err := r.store.SummarizeMetrics(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize %s metrics: %w", kind, err)
	}
	s = Summarize(totals, from, to, r.clock.Now())
	r.put(ctx, key, s, ttl)
	return &s, nil
}

func (r *Rollups) put(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	if r.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, r.cache, key, v, ttl); err != nil {
		r.logger.WithError(err).WithField("key", key).Warn("Rollup cache write failed")
	}
}

// DailySummary covers one UTC day.
func (r *Rollups) DailySummary(ctx context.Context, day time.Time) (*PlatformSummary, error) {
	d := DayStart(day)
	return r.summary(ctx, "daily", cache.DailySummaryKey(d), cache.DailySummaryTTL, d, d.AddDate(0, 0, 1))
}

// WeeklySummary covers the Monday-to-Sunday week containing t.
func (r *Rollups) WeeklySummary(ctx context.Context, t time.Time) (*PlatformSummary, error) {
	from := WeekStart(t)
	return r.summary(ctx, "weekly", cache.WeeklySummaryKey(from), cache.WeeklySummaryTTL, from, from.AddDate(0, 0, 7))
}

// MonthlySummary covers the calendar month containing t.
func (r *Rollups) MonthlySummary(ctx context.Context, t time.Time) (*PlatformSummary, error) {
	from := MonthStart(t)
	return r.summary(ctx, "monthly", cache.MonthlySummaryKey(from), cache.MonthlySummaryTTL, from, from.AddDate(0, 1, 0))
}

// TopProviders returns the day's top providers by conversions.
func (r *Rollups) TopProviders(ctx context.Context, day time.Time) ([]ProviderTotals, error) {
	d := DayStart(day)
	key := cache.TopProvidersKey(d)

	var top []ProviderTotals
	if r.cache != nil {
		ok, err := cache.GetJSON(ctx, r.cache, key, &top)
		if err != nil {
			r.logger.WithError(err).WithField("key", key).Warn("Rollup cache read failed")
		}
		r.metrics.ObserveCache("top", ok)
		if ok {
			return top, nil
		}
	}

	totals, err := r.store.SummarizeMetrics(ctx, d, d.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize top providers: %w", err)
	}
	top = TopBy(totals, r.topN, byConversions)
	r.put(ctx, key, top, cache.TopProvidersTTL)
	return top, nil
}

// RefreshHourly recomputes today's summary and top providers from the store,
// caches them, and drops the week and month summaries so they rebuild from
// fresh data.
func (r *Rollups) RefreshHourly(ctx context.Context, now time.Time) (*PlatformSummary, error) {
	day := DayStart(now)
	totals, err := r.store.SummarizeMetrics(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize hourly metrics: %w", err)
	}

	s := Summarize(totals, day, day.AddDate(0, 0, 1), r.clock.Now())
	r.put(ctx, cache.HourlySummaryKey(now), s, cache.HourlySummaryTTL)
	r.put(ctx, cache.DailySummaryKey(day), s, cache.DailySummaryTTL)
	r.put(ctx, cache.TopProvidersKey(day), TopBy(totals, r.topN, byConversions), cache.TopProvidersTTL)

	if r.cache != nil {
		stale := []string{cache.WeeklySummaryKey(WeekStart(now)), cache.MonthlySummaryKey(MonthStart(now))}
		if err := r.cache.Delete(ctx, stale...); err != nil {
			r.logger.WithError(err).Warn("Failed to invalidate rollup summaries")
		}
	}
	return &s, nil
}
