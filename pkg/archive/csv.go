package archive

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"time"
)

// UnknownProvider names rows whose provider no longer exists.
const UnknownProvider = "Unknown Provider"

// Header is the archive CSV header.
var Header = []string{
	"id",
	"provider_name",
	"provider_id",
	"date",
	"leads_received",
	"page_views",
	"conversions",
	"conversion_rate",
	"monthly_growth",
	"average_rating",
	"total_reviews",
	"response_time",
	"profile_views",
	"intention_score",
	"conversion_point_leads",
	"created_at",
	"updated_at",
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func record(r Row) []string {
	name := r.ProviderName
	if name == "" {
		name = UnknownProvider
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		name,
		strconv.FormatInt(r.ProviderID, 10),
		r.Date.UTC().Format("2006-01-02"),
		strconv.FormatInt(r.LeadsReceived, 10),
		strconv.FormatInt(r.PageViews, 10),
		strconv.FormatInt(r.Conversions, 10),
		formatFloat(r.ConversionRate),
		formatFloat(r.MonthlyGrowth),
		formatFloat(r.AverageRating),
		strconv.FormatInt(r.TotalReviews, 10),
		formatFloat(r.ResponseTime),
		strconv.FormatInt(r.ProfileViews, 10),
		strconv.Itoa(r.IntentionScore),
		strconv.FormatInt(r.ConversionPointLeads, 10),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// rowWriter appends rows to a CSV stream and tracks the highest id seen.
type rowWriter struct {
	w     *csv.Writer
	count int64
	maxID int64
}

func newRowWriter(w *csv.Writer) (*rowWriter, error) {
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	return &rowWriter{w: w}, nil
}

func (rw *rowWriter) write(rows []Row) error {
	for _, r := range rows {
		if err := rw.w.Write(record(r)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r.ID, err)
		}
		rw.count++
		if r.ID > rw.maxID {
			rw.maxID = r.ID
		}
	}
	rw.w.Flush()
	return rw.w.Error()
}
