// Package sqlstore implements analytics.Store and archive.Store over
// database/sql for PostgreSQL and SQLite.
//
// Queries are written once with $n placeholders and rebound for SQLite.
// provider_metrics is owned by this package; the providers, leads, reviews,
// users and page_views tables belong to the marketplace and Migrate only
// creates them when missing. A missing page_views table is reported as
// analytics.ErrSourceUnavailable so the collector can fall back.
//
//	store, err := sqlstore.Open(ctx, sqlstore.Config{Driver: "postgres", URL: dsn}, logger)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
package sqlstore
