package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/platinummonkey/providerstats/pkg/analytics"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres, nil), mock
}

func TestStore_GetProvider(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM providers WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "status", "premium", "weekly_report_opt_in", "created_at"}).
			AddRow(1, "Acme", "ops@acme.test", "approved", true, false, created))

	p, err := s.GetProvider(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProvider failed: %v", err)
	}
	if p.Name != "Acme" || !p.Premium || p.Tier() != analytics.TierPremium {
		t.Errorf("Unexpected provider: %+v", p)
	}

	mock.ExpectQuery(regexp.QuoteMeta("FROM providers WHERE id = $1")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := s.GetProvider(context.Background(), 2); !errors.Is(err, analytics.ErrProviderNotFound) {
		t.Errorf("Expected ErrProviderNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestStore_ListApprovedProviders(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM providers WHERE status = $1 ORDER BY id")).
		WithArgs("approved").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "status", "premium", "weekly_report_opt_in", "created_at"}).
			AddRow(1, "Acme", "a@test", "approved", false, true, now).
			AddRow(4, "Globex", "g@test", "approved", true, false, now))

	providers, err := s.ListApprovedProviders(context.Background())
	if err != nil {
		t.Fatalf("ListApprovedProviders failed: %v", err)
	}
	if len(providers) != 2 || providers[1].ID != 4 || !providers[0].WeeklyReportOptIn {
		t.Errorf("Unexpected providers: %+v", providers)
	}
}

func TestStore_CountPageViewsMissingTable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM page_views")).
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "page_views" does not exist`})

	_, err := s.CountPageViews(context.Background(), 1, time.Now(), time.Now())
	if !errors.Is(err, analytics.ErrSourceUnavailable) {
		t.Errorf("Expected ErrSourceUnavailable, got %v", err)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM page_views")).
		WillReturnError(errors.New("connection reset"))

	_, err = s.CountPageViews(context.Background(), 1, time.Now(), time.Now())
	if err == nil || errors.Is(err, analytics.ErrSourceUnavailable) {
		t.Errorf("Expected a plain error, got %v", err)
	}
}

func TestStore_CountConversions(t *testing.T) {
	s, mock := newMockStore(t)
	from := time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mock.ExpectQuery(regexp.QuoteMeta("status = 'converted'")).
		WithArgs(int64(3), from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountConversions(context.Background(), 3, from, to)
	if err != nil {
		t.Fatalf("CountConversions failed: %v", err)
	}
	if n != 7 {
		t.Errorf("Expected 7 conversions, got %d", n)
	}
}

func TestStore_ReviewStats(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT AVG(rating), COUNT(*) FROM reviews")).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "count"}).AddRow(4.666666, 3))
	avg, total, err := s.ReviewStats(context.Background(), 1)
	if err != nil {
		t.Fatalf("ReviewStats failed: %v", err)
	}
	if avg != 4.7 || total != 3 {
		t.Errorf("Expected 4.7 over 3 reviews, got %v over %d", avg, total)
	}

	mock.ExpectQuery(regexp.QuoteMeta("SELECT AVG(rating), COUNT(*) FROM reviews")).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "count"}).AddRow(nil, 0))
	avg, total, err = s.ReviewStats(context.Background(), 2)
	if err != nil {
		t.Fatalf("ReviewStats failed: %v", err)
	}
	if avg != 0 || total != 0 {
		t.Errorf("Expected no reviews, got %v over %d", avg, total)
	}
}

func TestStore_UpsertMetric(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (provider_id, date) DO UPDATE SET")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	rec := &analytics.MetricRecord{
		ProviderID:      1,
		Date:            time.Date(2024, 6, 12, 15, 0, 0, 0, time.UTC),
		LeadsReceived:   3,
		PageViewsSource: analytics.SourceObserved,
	}
	if err := s.UpsertMetric(context.Background(), rec); err != nil {
		t.Fatalf("UpsertMetric failed: %v", err)
	}
	if rec.ID != 42 {
		t.Errorf("Expected id 42, got %d", rec.ID)
	}
	if !rec.Date.Equal(time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected date truncated to the day, got %v", rec.Date)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO provider_metrics")).
		WillReturnError(errors.New("deadlock detected"))
	if err := s.UpsertMetric(context.Background(), &analytics.MetricRecord{ProviderID: 2}); err == nil {
		t.Error("Expected upsert error")
	}
}

func TestStore_GetMetricMissing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM provider_metrics WHERE provider_id = $1 AND date = $2")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	m, err := s.GetMetric(context.Background(), 1, time.Now())
	if err != nil {
		t.Fatalf("GetMetric failed: %v", err)
	}
	if m != nil {
		t.Errorf("Expected no record, got %+v", m)
	}
}

func TestStore_DeleteExpired(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2021, 6, 12, 8, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM provider_metrics")).
		WithArgs(time.Date(2021, 6, 12, 0, 0, 0, 0, time.UTC), int64(500), 100).
		WillReturnResult(sqlmock.NewResult(0, 100))

	n, err := s.DeleteExpired(context.Background(), cutoff, 500, 100)
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 100 {
		t.Errorf("Expected 100 rows deleted, got %d", n)
	}
}
