package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/analytics/analyticstest"
	"github.com/platinummonkey/providerstats/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testNow = time.Date(2024, 6, 12, 10, 30, 0, 0, time.UTC)
	testDay = analytics.DayStart(testNow)
)

func newMemoryCache(t *testing.T, clock clockwork.Clock) *cache.MemoryCache {
	t.Helper()
	c, err := cache.NewMemoryCache(1000, clock)
	require.NoError(t, err)
	return c
}

func TestSummarize(t *testing.T) {
	totals := []analytics.ProviderTotals{
		{ProviderID: 1, Leads: 5, PageViews: 100, Conversions: 2},
		{ProviderID: 2, Leads: 3, PageViews: 0, Conversions: 1},
	}
	s := analytics.Summarize(totals, testDay, testDay.AddDate(0, 0, 1), testNow)

	assert.Equal(t, 2, s.Providers)
	assert.Equal(t, int64(8), s.TotalLeads)
	assert.Equal(t, int64(100), s.TotalPageViews)
	assert.Equal(t, int64(3), s.TotalConversions)
	assert.Equal(t, 3.0, s.ConversionRate)
	assert.Equal(t, testNow, s.GeneratedAt)

	empty := analytics.Summarize(nil, testDay, testDay, testNow)
	assert.Zero(t, empty.Providers)
	assert.Zero(t, empty.ConversionRate)
}

func TestTopBy(t *testing.T) {
	totals := []analytics.ProviderTotals{
		{ProviderID: 3, Conversions: 4},
		{ProviderID: 1, Conversions: 9},
		{ProviderID: 2, Conversions: 4},
		{ProviderID: 4, Conversions: 0},
	}
	byConversions := func(t analytics.ProviderTotals) int64 { return t.Conversions }

	top := analytics.TopBy(totals, 3, byConversions)
	require.Len(t, top, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{top[0].ProviderID, top[1].ProviderID, top[2].ProviderID})

	assert.Len(t, analytics.TopBy(totals, 10, byConversions), 4)
	assert.Equal(t, int64(3), totals[0].ProviderID, "input must not be reordered")
}

func TestReportWeek(t *testing.T) {
	// Wednesday: the report covers the previous Monday to Sunday
	from, to := analytics.ReportWeek(testNow)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), to)

	// Monday morning when the job runs
	from, _ = analytics.ReportWeek(time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), from)
}

func seedMetrics(store *analyticstest.Store) {
	store.AddProvider(analytics.Provider{ID: 1, Name: "Acme", Status: analytics.StatusApproved})
	store.AddProvider(analytics.Provider{ID: 2, Name: "Globex", Status: analytics.StatusApproved})
	store.PutMetric(analytics.MetricRecord{ProviderID: 1, Date: testDay, LeadsReceived: 4, PageViews: 40, Conversions: 2})
	store.PutMetric(analytics.MetricRecord{ProviderID: 2, Date: testDay, LeadsReceived: 6, PageViews: 60, Conversions: 1})
	store.PutMetric(analytics.MetricRecord{ProviderID: 1, Date: testDay.AddDate(0, 0, -1), LeadsReceived: 10, PageViews: 100})
}

func TestRollups_DailySummaryCacheAside(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testNow)
	store := analyticstest.New()
	seedMetrics(store)
	c := newMemoryCache(t, clock)

	r := analytics.NewRollups(store, c, clock, nil, nil, 0)

	s, err := r.DailySummary(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.TotalLeads)
	assert.Equal(t, int64(100), s.TotalPageViews)
	assert.Equal(t, 3.0, s.ConversionRate)

	var cached analytics.PlatformSummary
	ok, err := cache.GetJSON(ctx, c, cache.DailySummaryKey(testDay), &cached)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), cached.TotalLeads)

	// served from cache while fresh
	store.SummarizeErr = errors.New("db down")
	s, err = r.DailySummary(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.TotalLeads)

	// expired entries fall through to the store
	clock.Advance(cache.DailySummaryTTL + time.Second)
	_, err = r.DailySummary(ctx, testNow)
	assert.Error(t, err)
}

func TestRollups_WithoutCache(t *testing.T) {
	ctx := context.Background()
	store := analyticstest.New()
	seedMetrics(store)

	r := analytics.NewRollups(store, nil, clockwork.NewFakeClockAt(testNow), nil, nil, 0)

	week, err := r.WeeklySummary(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(20), week.TotalLeads)
	assert.Equal(t, 2, week.Providers)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), week.From)

	month, err := r.MonthlySummary(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(20), month.TotalLeads)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), month.To)
}

func TestRollups_TopProviders(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testNow)
	store := analyticstest.New()
	seedMetrics(store)
	c := newMemoryCache(t, clock)

	r := analytics.NewRollups(store, c, clock, nil, nil, 1)

	top, err := r.TopProviders(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(1), top[0].ProviderID)
	assert.Equal(t, "Acme", top[0].ProviderName)

	var cached []analytics.ProviderTotals
	ok, err := cache.GetJSON(ctx, c, cache.TopProvidersKey(testDay), &cached)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, cached, 1)
}

func TestRollups_RefreshHourlyInvalidates(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(testNow)
	store := analyticstest.New()
	seedMetrics(store)
	c := newMemoryCache(t, clock)

	r := analytics.NewRollups(store, c, clock, nil, nil, 0)

	_, err := r.WeeklySummary(ctx, testNow)
	require.NoError(t, err)
	_, err = r.MonthlySummary(ctx, testNow)
	require.NoError(t, err)

	s, err := r.RefreshHourly(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(10), s.TotalLeads)

	for _, key := range []string{cache.WeeklySummaryKey(testNow), cache.MonthlySummaryKey(testNow)} {
		_, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, "%s should be invalidated", key)
	}
	for _, key := range []string{cache.HourlySummaryKey(testNow), cache.DailySummaryKey(testDay), cache.TopProvidersKey(testDay)} {
		_, ok, err := c.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "%s should be cached", key)
	}
}
