package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/providerstats/pkg/analytics"
)

var _ analytics.Store = (*Store)(nil)

const providerColumns = `id, name, email, status, premium, weekly_report_opt_in, created_at`

func scanProvider(row interface{ Scan(...interface{}) error }) (*analytics.Provider, error) {
	var p analytics.Provider
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Status, &p.Premium, &p.WeeklyReportOptIn, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// GetProvider implements analytics.Store.
func (s *Store) GetProvider(ctx context.Context, id int64) (*analytics.Provider, error) {
	p, err := scanProvider(s.queryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("provider %d: %w", id, analytics.ErrProviderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider %d: %w", id, err)
	}
	return p, nil
}

// ListApprovedProviders implements analytics.Store.
func (s *Store) ListApprovedProviders(ctx context.Context) (providers []analytics.Provider, err error) {
	ctx, span := s.span(ctx, "ListApprovedProviders")
	defer func() { endSpan(span, err) }()

	rows, err := s.query(ctx, `SELECT `+providerColumns+` FROM providers WHERE status = $1 ORDER BY id`, analytics.StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate providers: %w", err)
	}
	return providers, nil
}

// ListAdminEmails implements analytics.Store.
func (s *Store) ListAdminEmails(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT email FROM users WHERE role = $1 ORDER BY id`, "admin")
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan admin: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

func (s *Store) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	var n int64
	if err := s.queryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CountLeads implements analytics.Store.
func (s *Store) CountLeads(ctx context.Context, providerID int64, from, to time.Time) (int64, error) {
	return s.count(ctx, `
		SELECT COUNT(*) FROM leads
		WHERE provider_id = $1 AND created_at >= $2 AND created_at < $3`,
		providerID, from.UTC(), to.UTC())
}

// CountConversions implements analytics.Store. A conversion is a lead created
// in the window whose status is converted.
func (s *Store) CountConversions(ctx context.Context, providerID int64, from, to time.Time) (int64, error) {
	return s.count(ctx, `
		SELECT COUNT(*) FROM leads
		WHERE provider_id = $1 AND status = 'converted' AND created_at >= $2 AND created_at < $3`,
		providerID, from.UTC(), to.UTC())
}

// CountPageViews implements analytics.Store.
func (s *Store) CountPageViews(ctx context.Context, providerID int64, from, to time.Time) (int64, error) {
	n, err := s.count(ctx, `
		SELECT COUNT(*) FROM page_views
		WHERE provider_id = $1 AND viewed_at >= $2 AND viewed_at < $3`,
		providerID, from.UTC(), to.UTC())
	if isMissingTable(err) {
		return 0, fmt.Errorf("page views: %w", analytics.ErrSourceUnavailable)
	}
	return n, err
}

// ReviewStats implements analytics.Store.
func (s *Store) ReviewStats(ctx context.Context, providerID int64) (float64, int64, error) {
	var (
		avg   sql.NullFloat64
		total int64
	)
	err := s.queryRow(ctx, `SELECT AVG(rating), COUNT(*) FROM reviews WHERE provider_id = $1`, providerID).
		Scan(&avg, &total)
	if err != nil {
		return 0, 0, err
	}
	if !avg.Valid {
		return 0, total, nil
	}
	return analytics.Round(avg.Float64, 1), total, nil
}

const metricColumns = `id, provider_id, date, leads_received, page_views, conversions,
	conversion_rate, monthly_growth, average_rating, total_reviews, response_time,
	profile_views, intention_score, conversion_point_leads, page_views_source,
	simulated, created_at, updated_at`

func scanMetric(row interface{ Scan(...interface{}) error }) (*analytics.MetricRecord, error) {
	var (
		m      analytics.MetricRecord
		source string
	)
	err := row.Scan(&m.ID, &m.ProviderID, &m.Date, &m.LeadsReceived, &m.PageViews, &m.Conversions,
		&m.ConversionRate, &m.MonthlyGrowth, &m.AverageRating, &m.TotalReviews, &m.ResponseTime,
		&m.ProfileViews, &m.IntentionScore, &m.ConversionPointLeads, &source,
		&m.Simulated, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.PageViewsSource = analytics.PageViewSource(source)
	m.Date = analytics.DayStart(m.Date)
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

// UpsertMetric implements analytics.Store.
func (s *Store) UpsertMetric(ctx context.Context, rec *analytics.MetricRecord) (err error) {
	ctx, span := s.span(ctx, "UpsertMetric")
	defer func() { endSpan(span, err) }()

	now := time.Now().UTC()
	query := `
		INSERT INTO provider_metrics (
			provider_id, date, leads_received, page_views, conversions,
			conversion_rate, monthly_growth, average_rating, total_reviews, response_time,
			profile_views, intention_score, conversion_point_leads, page_views_source,
			simulated, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		ON CONFLICT (provider_id, date) DO UPDATE SET
			leads_received = EXCLUDED.leads_received,
			page_views = EXCLUDED.page_views,
			conversions = EXCLUDED.conversions,
			conversion_rate = EXCLUDED.conversion_rate,
			monthly_growth = EXCLUDED.monthly_growth,
			average_rating = EXCLUDED.average_rating,
			total_reviews = EXCLUDED.total_reviews,
			response_time = EXCLUDED.response_time,
			profile_views = EXCLUDED.profile_views,
			intention_score = EXCLUDED.intention_score,
			conversion_point_leads = EXCLUDED.conversion_point_leads,
			page_views_source = EXCLUDED.page_views_source,
			simulated = EXCLUDED.simulated,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	day := analytics.DayStart(rec.Date)
	err = s.queryRow(ctx, query,
		rec.ProviderID, day, rec.LeadsReceived, rec.PageViews, rec.Conversions,
		rec.ConversionRate, rec.MonthlyGrowth, rec.AverageRating, rec.TotalReviews, rec.ResponseTime,
		rec.ProfileViews, rec.IntentionScore, rec.ConversionPointLeads, string(rec.PageViewsSource),
		rec.Simulated, now,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics for provider %d: %w", rec.ProviderID, err)
	}
	rec.Date = day
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	return nil
}

// GetMetric implements analytics.Store.
func (s *Store) GetMetric(ctx context.Context, providerID int64, day time.Time) (*analytics.MetricRecord, error) {
	m, err := scanMetric(s.queryRow(ctx,
		`SELECT `+metricColumns+` FROM provider_metrics WHERE provider_id = $1 AND date = $2`,
		providerID, analytics.DayStart(day)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics for provider %d: %w", providerID, err)
	}
	return m, nil
}

// EnsureMetric implements analytics.Store.
func (s *Store) EnsureMetric(ctx context.Context, providerID int64, day time.Time) (*analytics.MetricRecord, error) {
	now := time.Now().UTC()
	_, err := s.exec(ctx, `
		INSERT INTO provider_metrics (provider_id, date, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (provider_id, date) DO NOTHING`,
		providerID, analytics.DayStart(day), now)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics for provider %d: %w", providerID, err)
	}

	m, err := s.GetMetric(ctx, providerID, day)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("metrics for provider %d vanished after insert", providerID)
	}
	return m, nil
}

// UpdateMetricCounts implements analytics.Store. It writes everything but
// conversion_rate and monthly_growth to the row with rec.ID.
func (s *Store) UpdateMetricCounts(ctx context.Context, rec *analytics.MetricRecord) error {
	now := time.Now().UTC()
	_, err := s.exec(ctx, `
		UPDATE provider_metrics
		SET leads_received = $1, page_views = $2, conversions = $3,
			conversion_point_leads = $4, page_views_source = $5,
			average_rating = $6, total_reviews = $7, response_time = $8,
			profile_views = $9, intention_score = $10, simulated = $11, updated_at = $12
		WHERE id = $13`,
		rec.LeadsReceived, rec.PageViews, rec.Conversions,
		analytics.ConversionPointLeads(rec.Conversions), string(rec.PageViewsSource),
		rec.AverageRating, rec.TotalReviews, rec.ResponseTime,
		rec.ProfileViews, rec.IntentionScore, rec.Simulated, now, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to update counts for metrics %d: %w", rec.ID, err)
	}
	rec.UpdatedAt = now
	return nil
}

// UpdateMetricDerived implements analytics.Store.
func (s *Store) UpdateMetricDerived(ctx context.Context, id int64, conversionRate, monthlyGrowth float64) error {
	_, err := s.exec(ctx, `
		UPDATE provider_metrics
		SET conversion_rate = $1, monthly_growth = $2, updated_at = $3
		WHERE id = $4`,
		conversionRate, monthlyGrowth, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update derived metrics %d: %w", id, err)
	}
	return nil
}

// SummarizeMetrics implements analytics.Store.
func (s *Store) SummarizeMetrics(ctx context.Context, from, to time.Time) (totals []analytics.ProviderTotals, err error) {
	ctx, span := s.span(ctx, "SummarizeMetrics")
	defer func() { endSpan(span, err) }()

	rows, err := s.query(ctx, `
		SELECT m.provider_id, COALESCE(p.name, ''),
			COALESCE(SUM(m.leads_received), 0),
			COALESCE(SUM(m.page_views), 0),
			COALESCE(SUM(m.conversions), 0),
			COUNT(*)
		FROM provider_metrics m
		LEFT JOIN providers p ON p.id = m.provider_id
		WHERE m.date >= $1 AND m.date < $2
		GROUP BY m.provider_id, p.name
		ORDER BY m.provider_id`,
		analytics.DayStart(from), analytics.DayStart(to))
	if err != nil {
		return nil, fmt.Errorf("failed to summarize metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t analytics.ProviderTotals
		if err := rows.Scan(&t.ProviderID, &t.ProviderName, &t.Leads, &t.PageViews, &t.Conversions, &t.Days); err != nil {
			return nil, fmt.Errorf("failed to scan totals: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate totals: %w", err)
	}
	return totals, nil
}
