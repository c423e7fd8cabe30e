package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/archive"
)

var _ archive.Store = (*Store)(nil)

// CountExpired implements archive.Store.
func (s *Store) CountExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.count(ctx, `SELECT COUNT(*) FROM provider_metrics WHERE date < $1`, analytics.DayStart(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to count expired metrics: %w", err)
	}
	return n, nil
}

// StreamExpired implements archive.Store.
func (s *Store) StreamExpired(ctx context.Context, cutoff time.Time, batchSize int, fn func([]archive.Row) error) (err error) {
	ctx, span := s.span(ctx, "StreamExpired")
	defer func() { endSpan(span, err) }()

	query := `
		SELECT m.id, m.provider_id, m.date, m.leads_received, m.page_views, m.conversions,
			m.conversion_rate, m.monthly_growth, m.average_rating, m.total_reviews, m.response_time,
			m.profile_views, m.intention_score, m.conversion_point_leads, m.page_views_source,
			m.simulated, m.created_at, m.updated_at, p.name
		FROM provider_metrics m
		LEFT JOIN providers p ON p.id = m.provider_id
		WHERE m.date < $1
		ORDER BY m.provider_id, m.date, m.id
		LIMIT $2 OFFSET $3`

	day := analytics.DayStart(cutoff)
	for offset := 0; ; offset += batchSize {
		page, err := s.expiredPage(ctx, query, day, batchSize, offset)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < batchSize {
			return nil
		}
	}
}

func (s *Store) expiredPage(ctx context.Context, query string, cutoff time.Time, limit, offset int) ([]archive.Row, error) {
	rows, err := s.query(ctx, query, cutoff, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to read expired metrics: %w", err)
	}
	defer rows.Close()

	var page []archive.Row
	for rows.Next() {
		var (
			r      archive.Row
			m      = &r.MetricRecord
			source string
			name   sql.NullString
		)
		err := rows.Scan(&m.ID, &m.ProviderID, &m.Date, &m.LeadsReceived, &m.PageViews, &m.Conversions,
			&m.ConversionRate, &m.MonthlyGrowth, &m.AverageRating, &m.TotalReviews, &m.ResponseTime,
			&m.ProfileViews, &m.IntentionScore, &m.ConversionPointLeads, &source,
			&m.Simulated, &m.CreatedAt, &m.UpdatedAt, &name)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired metric: %w", err)
		}
		m.PageViewsSource = analytics.PageViewSource(source)
		m.Date = analytics.DayStart(m.Date)
		m.CreatedAt = m.CreatedAt.UTC()
		m.UpdatedAt = m.UpdatedAt.UTC()
		r.ProviderName = name.String
		page = append(page, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired metrics: %w", err)
	}
	return page, nil
}

// DeleteExpired implements archive.Store.
func (s *Store) DeleteExpired(ctx context.Context, cutoff time.Time, maxID int64, batchSize int) (int64, error) {
	res, err := s.exec(ctx, `
		DELETE FROM provider_metrics
		WHERE id IN (
			SELECT id FROM provider_metrics
			WHERE date < $1 AND id <= $2
			ORDER BY id
			LIMIT $3
		)`, analytics.DayStart(cutoff), maxID, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired metrics: %w", err)
	}
	return res.RowsAffected()
}

// DeleteOrphans implements archive.Store.
func (s *Store) DeleteOrphans(ctx context.Context, batchSize int) (int64, error) {
	res, err := s.exec(ctx, `
		DELETE FROM provider_metrics
		WHERE id IN (
			SELECT m.id FROM provider_metrics m
			LEFT JOIN providers p ON p.id = m.provider_id
			WHERE p.id IS NULL
			ORDER BY m.id
			LIMIT $1
		)`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphaned metrics: %w", err)
	}
	return res.RowsAffected()
}

// Maintain implements archive.Store.
func (s *Store) Maintain(ctx context.Context) error {
	var stmt string
	switch s.dialect {
	case Postgres:
		stmt = `VACUUM ANALYZE provider_metrics`
	case SQLite:
		stmt = `ANALYZE provider_metrics`
	default:
		return archive.ErrMaintenanceUnsupported
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to refresh statistics: %w", err)
	}
	return nil
}
