// Package config provides application configuration management.
//
// # Overview
//
// Configuration is layered. Defaults come first, then an optional YAML file,
// then environment variables. A .env file in the working directory is loaded
// into the environment before anything else and never overrides variables
// that are already set.
//
// # Configuration Structure
//
// Database settings:
//
//	PROVIDERSTATS_DB_DRIVER="postgres"  # postgres, sqlite3
//	PROVIDERSTATS_DATABASE_URL="postgres://localhost/providerstats"
//	PROVIDERSTATS_DB_MAX_CONNS="20"
//
// Cache settings:
//
//	PROVIDERSTATS_CACHE_BACKEND="redis"  # redis, memory, none
//	PROVIDERSTATS_REDIS_URL="redis://localhost:6379/0"
//
// Collector and scheduler settings:
//
//	PROVIDERSTATS_COLLECTOR_WORKERS="8"
//	PROVIDERSTATS_ESTIMATE_PAGE_VIEWS="true"
//	PROVIDERSTATS_SCHEDULE_DAILY="0 2 * * *"
//	PROVIDERSTATS_JOB_MAX_RETRIES="3"
//
// Archive settings:
//
//	PROVIDERSTATS_ARCHIVE_DIR="/var/lib/providerstats/archive"
//	PROVIDERSTATS_RETENTION_YEARS="2"
//	PROVIDERSTATS_S3_BUCKET="metrics-archive"
//
// Email settings:
//
//	PROVIDERSTATS_EMAIL_SENDER="ses"  # ses, log
//	PROVIDERSTATS_EMAIL_FROM="reports@example.com"
//
// Observability settings:
//
//	PROVIDERSTATS_LOG_LEVEL="info"  # debug, info, warn, error
//	PROVIDERSTATS_HEALTH_PORT="9090"
//	PROVIDERSTATS_OTEL_ENABLED="true"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	store, err := sqlstore.Open(ctx, cfg.StoreConfig(), logger)
package config
