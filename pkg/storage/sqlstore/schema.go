package sqlstore

import (
	"context"
	"fmt"
)

// The raw event tables belong to the marketplace application. They are
// created here only when missing so development and test databases work.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		premium BOOLEAN NOT NULL DEFAULT FALSE,
		weekly_report_opt_in BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id BIGSERIAL PRIMARY KEY,
		provider_id BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'new',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_provider_created ON leads (provider_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id BIGSERIAL PRIMARY KEY,
		provider_id BIGINT NOT NULL,
		rating INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_provider ON reviews (provider_id)`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user'
	)`,
	`CREATE TABLE IF NOT EXISTS provider_metrics (
		id BIGSERIAL PRIMARY KEY,
		provider_id BIGINT NOT NULL,
		date DATE NOT NULL,
		leads_received BIGINT NOT NULL DEFAULT 0,
		page_views BIGINT NOT NULL DEFAULT 0,
		conversions BIGINT NOT NULL DEFAULT 0,
		conversion_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		monthly_growth DOUBLE PRECISION NOT NULL DEFAULT 0,
		average_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_reviews BIGINT NOT NULL DEFAULT 0,
		response_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		profile_views BIGINT NOT NULL DEFAULT 0,
		intention_score INTEGER NOT NULL DEFAULT 0,
		conversion_point_leads BIGINT NOT NULL DEFAULT 0,
		page_views_source TEXT NOT NULL DEFAULT 'unknown',
		simulated BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (provider_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_metrics_date ON provider_metrics (date)`,
}

// page_views is optional; WithPageViews adds it.
var postgresPageViews = `CREATE TABLE IF NOT EXISTS page_views (
		id BIGSERIAL PRIMARY KEY,
		provider_id BIGINT NOT NULL,
		viewed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS providers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		premium BOOLEAN NOT NULL DEFAULT 0,
		weekly_report_opt_in BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_id INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'new',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_provider_created ON leads (provider_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_id INTEGER NOT NULL,
		rating INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user'
	)`,
	`CREATE TABLE IF NOT EXISTS provider_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_id INTEGER NOT NULL,
		date DATE NOT NULL,
		leads_received INTEGER NOT NULL DEFAULT 0,
		page_views INTEGER NOT NULL DEFAULT 0,
		conversions INTEGER NOT NULL DEFAULT 0,
		conversion_rate REAL NOT NULL DEFAULT 0,
		monthly_growth REAL NOT NULL DEFAULT 0,
		average_rating REAL NOT NULL DEFAULT 0,
		total_reviews INTEGER NOT NULL DEFAULT 0,
		response_time REAL NOT NULL DEFAULT 0,
		profile_views INTEGER NOT NULL DEFAULT 0,
		intention_score INTEGER NOT NULL DEFAULT 0,
		conversion_point_leads INTEGER NOT NULL DEFAULT 0,
		page_views_source TEXT NOT NULL DEFAULT 'unknown',
		simulated BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (provider_id, date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_metrics_date ON provider_metrics (date)`,
}

var sqlitePageViews = `CREATE TABLE IF NOT EXISTS page_views (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_id INTEGER NOT NULL,
		viewed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

// MigrateOptions controls optional tables.
type MigrateOptions struct {
	// PageViews creates the page view log table.
	PageViews bool
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context, opts MigrateOptions) error {
	stmts, pageViews := postgresSchema, postgresPageViews
	if s.dialect == SQLite {
		stmts, pageViews = sqliteSchema, sqlitePageViews
	}
	if opts.PageViews {
		stmts = append(append([]string(nil), stmts...), pageViews)
	}

	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d failed: %w", i, err)
		}
	}
	s.logger.Infof("Schema migrated (%d statements)", len(stmts))
	return nil
}
