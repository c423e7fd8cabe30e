package analytics

import (
	"errors"
	"time"
)

var (
	// ErrProviderNotFound is returned when a provider id does not exist.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrSourceUnavailable marks a raw data source that is missing or
	// temporarily unreadable. Callers fall back instead of failing.
	ErrSourceUnavailable = errors.New("data source unavailable")
)

// Provider status values.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusSuspended = "suspended"
	StatusRejected  = "rejected"
)

// Tier drives the estimator ranges and the intention score bonus.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierApproved Tier = "approved"
	TierOther    Tier = "other"
)

// Provider is a marketplace listing. This package only reads providers.
type Provider struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	Status            string    `json:"status"`
	Premium           bool      `json:"premium"`
	WeeklyReportOptIn bool      `json:"weekly_report_opt_in"`
	CreatedAt         time.Time `json:"created_at"`
}

// Tier classifies the provider. Premium only counts for approved providers.
func (p Provider) Tier() Tier {
	switch {
	case p.Status == StatusApproved && p.Premium:
		return TierPremium
	case p.Status == StatusApproved:
		return TierApproved
	default:
		return TierOther
	}
}

// PageViewSource records where a record's page_views came from.
type PageViewSource string

const (
	SourceObserved  PageViewSource = "observed"
	SourceTracked   PageViewSource = "tracked"
	SourceEstimated PageViewSource = "estimated"
	SourceUnknown   PageViewSource = "unknown"
)

// MetricRecord is one provider's metrics for one UTC day. At most one exists
// per (ProviderID, Date).
type MetricRecord struct {
	ID                   int64          `json:"id"`
	ProviderID           int64          `json:"provider_id"`
	Date                 time.Time      `json:"date"`
	LeadsReceived        int64          `json:"leads_received"`
	PageViews            int64          `json:"page_views"`
	Conversions          int64          `json:"conversions"`
	ConversionRate       float64        `json:"conversion_rate"`
	MonthlyGrowth        float64        `json:"monthly_growth"`
	AverageRating        float64        `json:"average_rating"`
	TotalReviews         int64          `json:"total_reviews"`
	ResponseTime         float64        `json:"response_time"`
	ProfileViews         int64          `json:"profile_views"`
	IntentionScore       int            `json:"intention_score"`
	ConversionPointLeads int64          `json:"conversion_point_leads"`
	PageViewsSource      PageViewSource `json:"page_views_source"`
	// Simulated is set when ResponseTime, ProfileViews and IntentionScore
	// come from the estimator rather than observed data.
	Simulated bool      `json:"simulated"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProviderTotals aggregates MetricRecords for one provider over a window.
type ProviderTotals struct {
	ProviderID   int64  `json:"provider_id"`
	ProviderName string `json:"provider_name"`
	Leads        int64  `json:"leads"`
	PageViews    int64  `json:"page_views"`
	Conversions  int64  `json:"conversions"`
	Days         int    `json:"days"`
}

// ConversionRate of the totals, in percent.
func (t ProviderTotals) ConversionRate() float64 {
	return ConversionRate(t.Conversions, t.PageViews)
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first instant of t's UTC month.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// WeekStart returns Monday 00:00 UTC of t's week.
func WeekStart(t time.Time) time.Time {
	d := DayStart(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
