package analytics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/analytics/analyticstest"
	"github.com/platinummonkey/providerstats/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestCollector_RecordsBatchOutcome(t *testing.T) {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	om, err := observability.NewOTelMetrics()
	require.NoError(t, err)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	store := analyticstest.New()
	for id := int64(1); id <= 3; id++ {
		store.AddProvider(analytics.Provider{ID: id, Status: analytics.StatusApproved})
	}
	store.ProviderErrors[2] = errors.New("timeout")

	clock := clockwork.NewFakeClockAt(testNow)
	collector := analytics.NewCollector(store, newMemoryCache(t, clock), analytics.CollectorConfig{
		Workers: 2,
		Clock:   clock,
		Metrics: metrics,
		OTel:    om,
	})

	_, err = collector.UpdateAllDailyMetrics(ctx, testDay)
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ProvidersTotal.WithLabelValues("daily", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ProvidersTotal.WithLabelValues("daily", "failure")))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "providerstats.providers.processed" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				status, _ := dp.Attributes.Value("status")
				got[status.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"success": 2, "failure": 1}, got)
}
