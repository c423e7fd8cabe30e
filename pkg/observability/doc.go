// Package observability provides structured logging, Prometheus metrics,
// health probes and OpenTelemetry wiring for the aggregator.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("provider_id", 42).Info("metrics computed")
//
// Job runs attach a run ID to the context; FromContext picks it up together
// with the active trace IDs.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveJob("daily", started, err)
//
// # Health Checks
//
// NewRouter serves /health/live, /health/ready and /metrics. The database is
// required; Redis only degrades readiness.
//
// # OpenTelemetry
//
// InitOTel exports traces and metrics over OTLP gRPC when enabled. Tracer
// returns the module tracer used for store and archive spans.
package observability
