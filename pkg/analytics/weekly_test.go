package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/analytics/analyticstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWeeklyReport(t *testing.T) {
	store := analyticstest.New()
	store.AddProvider(analytics.Provider{ID: 1, Name: "Acme", Status: analytics.StatusApproved, WeeklyReportOptIn: true})
	store.AddProvider(analytics.Provider{ID: 2, Name: "Globex", Status: analytics.StatusApproved})
	store.AddProvider(analytics.Provider{ID: 3, Name: "Pending", Status: analytics.StatusPending})

	thisWeek := time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC)
	lastWeek := time.Date(2024, 5, 28, 0, 0, 0, 0, time.UTC)
	store.PutMetric(analytics.MetricRecord{ProviderID: 1, Date: thisWeek, LeadsReceived: 9, PageViews: 90, Conversions: 3})
	store.PutMetric(analytics.MetricRecord{ProviderID: 1, Date: lastWeek, LeadsReceived: 4, PageViews: 100, Conversions: 3})
	store.PutMetric(analytics.MetricRecord{ProviderID: 3, Date: thisWeek, LeadsReceived: 50})
	// the running week is not reported
	store.PutMetric(analytics.MetricRecord{ProviderID: 2, Date: testDay, LeadsReceived: 100})

	report, err := analytics.BuildWeeklyReport(context.Background(), store, testNow)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), report.WeekStart)
	assert.Equal(t, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC), report.WeekEnd)
	assert.Equal(t, int64(59), report.Current.TotalLeads)
	assert.Equal(t, int64(4), report.Previous.TotalLeads)

	require.Len(t, report.Providers, 2)
	acme := report.Providers[0]
	assert.Equal(t, "Acme", acme.Provider.Name)
	assert.Equal(t, int64(9), acme.Current.Leads)
	assert.Equal(t, int64(4), acme.Previous.Leads)
	assert.Equal(t, 125.0, acme.LeadsGrowth)
	assert.Equal(t, -10.0, acme.PageViewsGrowth)
	assert.Equal(t, 0.0, acme.ConversionsGrowth)

	globex := report.Providers[1]
	assert.Equal(t, int64(2), globex.Current.ProviderID)
	assert.Equal(t, "Globex", globex.Current.ProviderName)
	assert.Zero(t, globex.Current.Leads)
	assert.Zero(t, globex.LeadsGrowth)

	require.NotEmpty(t, report.TopByLeads)
	assert.Equal(t, int64(3), report.TopByLeads[0].ProviderID)
}

func TestBuildWeeklyReport_Errors(t *testing.T) {
	store := analyticstest.New()
	store.ListErr = errors.New("db down")
	_, err := analytics.BuildWeeklyReport(context.Background(), store, testNow)
	assert.Error(t, err)

	store = analyticstest.New()
	store.SummarizeErr = errors.New("db down")
	_, err = analytics.BuildWeeklyReport(context.Background(), store, testNow)
	assert.Error(t, err)
}
