package analytics

import (
	"context"
	"time"
)

// Store is the relational store behind the collector and the jobs. Windows
// are half-open: [from, to).
type Store interface {
	// GetProvider returns ErrProviderNotFound for unknown ids.
	GetProvider(ctx context.Context, id int64) (*Provider, error)
	ListApprovedProviders(ctx context.Context) ([]Provider, error)
	ListAdminEmails(ctx context.Context) ([]string, error)

	CountLeads(ctx context.Context, providerID int64, from, to time.Time) (int64, error)
	CountConversions(ctx context.Context, providerID int64, from, to time.Time) (int64, error)
	// CountPageViews returns ErrSourceUnavailable when the page view log
	// cannot be read.
	CountPageViews(ctx context.Context, providerID int64, from, to time.Time) (int64, error)
	// ReviewStats returns the mean rating (1 decimal) and review count.
	ReviewStats(ctx context.Context, providerID int64) (float64, int64, error)

	// UpsertMetric writes rec keyed by (ProviderID, Date) and sets rec.ID.
	UpsertMetric(ctx context.Context, rec *MetricRecord) error
	// GetMetric returns nil without error when no record exists.
	GetMetric(ctx context.Context, providerID int64, day time.Time) (*MetricRecord, error)
	// EnsureMetric finds the record or creates one with zeroed fields.
	EnsureMetric(ctx context.Context, providerID int64, day time.Time) (*MetricRecord, error)
	// UpdateMetricCounts writes every field of rec except ConversionRate and
	// MonthlyGrowth to the row with rec.ID.
	UpdateMetricCounts(ctx context.Context, rec *MetricRecord) error
	UpdateMetricDerived(ctx context.Context, id int64, conversionRate, monthlyGrowth float64) error

	// SummarizeMetrics totals MetricRecords per provider with Date in [from, to).
	SummarizeMetrics(ctx context.Context, from, to time.Time) ([]ProviderTotals, error)
}
