package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Job metrics
	JobRunsTotal     *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	JobLastSuccess   *prometheus.GaugeVec
	JobSkippedTotal  *prometheus.CounterVec
	JobRetriesTotal  *prometheus.CounterVec
	ProvidersTotal   *prometheus.CounterVec
	MetricsUpserted  prometheus.Counter
	EstimatedRecords *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Retention metrics
	SweepRowsTotal    *prometheus.CounterVec
	SweepArchiveBytes prometheus.Gauge
	SweepLastRunTime  prometheus.Gauge

	// Notification metrics
	EmailsSentTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerstats_job_runs_total",
				Help: "Total number of scheduled job runs",
			},
			[]string{"job", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "providerstats_job_duration_seconds",
				Help:    "Job run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"job"},
		),
		JobLastSuccess: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "providerstats_job_last_success_timestamp_seconds",
				Help: "Unix time of the last successful run per job",
			},
			[]string{"job"},
		),
		JobSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerstats_job_skipped_total",
				Help: "Job runs skipped because another replica held the lock",
			},
			[]string{"job"},
		),
		JobRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerstats_job_retries_total",
				Help: "Job attempts retried after a failure",
			},
			[]string{"job"},
		),
		ProvidersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerstats_providers_processed_total",
				Help: "Providers processed by batch jobs",
			},
			[]string{"job", "status"},
		),
		MetricsUpserted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "providerstats_metric_records_upserted_total",
				Help: "Daily metric records written",
			},
		),
		EstimatedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerstats_page_views_source_total",
				Help: "Daily metric records by page view source",
			},
			[]string{"source"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerstats_cache_hits_total",
				Help: "Rollup cache hits",
			},
			[]string{"kind"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerstats_cache_misses_total",
				Help: "Rollup cache misses",
			},
			[]string{"kind"},
		),
		SweepRowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerstats_sweep_rows_total",
				Help: "Rows handled by the retention sweeper",
			},
			[]string{"action"},
		),
		SweepArchiveBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "providerstats_sweep_archive_bytes",
				Help: "Size of the most recent archive file",
			},
		),
		SweepLastRunTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "providerstats_sweep_last_run_timestamp_seconds",
				Help: "Unix time of the last completed sweep",
			},
		),
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "providerstats_emails_sent_total",
				Help: "Report emails sent",
			},
			[]string{"kind", "status"},
		),
	}

	registry.MustRegister(
		m.JobRunsTotal,
		m.JobDuration,
		m.JobLastSuccess,
		m.JobSkippedTotal,
		m.JobRetriesTotal,
		m.ProvidersTotal,
		m.MetricsUpserted,
		m.EstimatedRecords,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.SweepRowsTotal,
		m.SweepArchiveBytes,
		m.SweepLastRunTime,
		m.EmailsSentTotal,
	)

	return m
}

// ObserveJob records the outcome of one job run. Safe on a nil receiver.
func (m *Metrics) ObserveJob(job string, started time.Time, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	} else {
		m.JobLastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

// ObserveProviders records per-provider outcomes of a batch job. Safe on a nil receiver.
func (m *Metrics) ObserveProviders(job string, succeeded, failed int) {
	if m == nil {
		return
	}
	m.ProvidersTotal.WithLabelValues(job, "success").Add(float64(succeeded))
	m.ProvidersTotal.WithLabelValues(job, "failure").Add(float64(failed))
}

// ObserveCache records a rollup cache lookup. Safe on a nil receiver.
func (m *Metrics) ObserveCache(kind string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(kind).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(kind).Inc()
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format.
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
