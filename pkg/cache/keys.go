package cache

import (
	"fmt"
	"time"
)

const (
	// CounterGrace keeps day counters readable for an hour past midnight.
	CounterGrace = 25 * time.Hour

	DailySummaryTTL   = time.Hour
	HourlySummaryTTL  = time.Hour
	TopProvidersTTL   = time.Hour
	WeeklySummaryTTL  = 6 * time.Hour
	MonthlySummaryTTL = 12 * time.Hour
)

// Counter names for real-time day counters.
const (
	CounterLeads       = "leads"
	CounterPageViews   = "page_views"
	CounterConversions = "conversions"
)

const dateLayout = "2006-01-02"

// CounterKey is the per-provider day counter key.
func CounterKey(providerID int64, day time.Time, counter string) string {
	return fmt.Sprintf("metrics:%d:%s:%s", providerID, day.UTC().Format(dateLayout), counter)
}

// CounterExpiry is when a day counter for day stops being useful.
func CounterExpiry(day time.Time) time.Time {
	d := day.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Add(CounterGrace)
}

// DailySummaryKey holds the platform summary for one day.
func DailySummaryKey(day time.Time) string {
	return "metrics-summary:" + day.UTC().Format(dateLayout)
}

// HourlySummaryKey holds the platform summary written by one hourly run.
func HourlySummaryKey(t time.Time) string {
	return "metrics-summary:hourly:" + t.UTC().Format("2006-01-02T15")
}

// TopProvidersKey holds the top providers by conversions for one day.
func TopProvidersKey(day time.Time) string {
	return "top-providers:" + day.UTC().Format(dateLayout)
}

// WeeklySummaryKey is keyed by ISO week.
func WeeklySummaryKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("metrics-summary:weekly:%d-W%02d", year, week)
}

// MonthlySummaryKey is keyed by calendar month.
func MonthlySummaryKey(t time.Time) string {
	return "metrics-summary:monthly:" + t.UTC().Format("2006-01")
}

// ThrottleKey stores the last recompute time for a provider.
func ThrottleKey(providerID int64) string {
	return fmt.Sprintf("metrics-throttle:%d", providerID)
}
