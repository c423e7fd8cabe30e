package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics mirrors the job and sweep metrics onto the OTLP meter so they
// reach the collector alongside traces.
type OTelMetrics struct {
	jobRuns      metric.Int64Counter
	jobDuration  metric.Float64Histogram
	sweepRows    metric.Int64Counter
	providerRuns metric.Int64Counter
}

// NewOTelMetrics creates the instruments on the global meter provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter(TracerName)

	m := &OTelMetrics{}
	var err error

	m.jobRuns, err = meter.Int64Counter(
		"providerstats.job.runs",
		metric.WithDescription("Scheduled job runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job runs counter: %w", err)
	}

	m.jobDuration, err = meter.Float64Histogram(
		"providerstats.job.duration",
		metric.WithDescription("Job run duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job duration histogram: %w", err)
	}

	m.sweepRows, err = meter.Int64Counter(
		"providerstats.sweep.rows",
		metric.WithDescription("Rows archived or deleted by the retention sweeper"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep rows counter: %w", err)
	}

	m.providerRuns, err = meter.Int64Counter(
		"providerstats.providers.processed",
		metric.WithDescription("Providers processed by batch jobs"),
		metric.WithUnit("{provider}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create providers counter: %w", err)
	}

	return m, nil
}

// RecordJob records one job run. Safe on a nil receiver.
func (m *OTelMetrics) RecordJob(ctx context.Context, job string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status),
	)
	m.jobRuns.Add(ctx, 1, attrs)
	m.jobDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("job", job)))
}

// RecordProviders records the per-provider outcome counts of a batch job.
func (m *OTelMetrics) RecordProviders(ctx context.Context, job string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.providerRuns.Add(ctx, int64(succeeded), metric.WithAttributes(
		attribute.String("job", job), attribute.String("status", "success")))
	m.providerRuns.Add(ctx, int64(failed), metric.WithAttributes(
		attribute.String("job", job), attribute.String("status", "failure")))
}

// RecordSweep records rows handled by one sweep step.
func (m *OTelMetrics) RecordSweep(ctx context.Context, action string, rows int64) {
	if m == nil {
		return
	}
	m.sweepRows.Add(ctx, rows, metric.WithAttributes(attribute.String("action", action)))
}
