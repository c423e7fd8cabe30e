package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/platinummonkey/providerstats/pkg/cache"
	"github.com/platinummonkey/providerstats/pkg/jobs"
	"github.com/platinummonkey/providerstats/pkg/observability"
	"github.com/platinummonkey/providerstats/pkg/storage/objectstore"
	"github.com/platinummonkey/providerstats/pkg/storage/sqlstore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "PROVIDERSTATS_"

// Cache backends.
const (
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// Email senders.
const (
	SenderLog = "log"
	SenderSES = "ses"
)

// Config holds all application configuration
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Collector     CollectorConfig     `yaml:"collector"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Notify        NotifyConfig        `yaml:"notify"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// DatabaseConfig holds relational store settings
type DatabaseConfig struct {
	Driver      string        `yaml:"driver"`
	URL         string        `yaml:"url"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	// PageViewsTable creates the page view log on migrate.
	PageViewsTable bool `yaml:"page_views_table"`
}

// CacheConfig holds rollup cache settings
type CacheConfig struct {
	Backend         string `yaml:"backend"`
	RedisURL        string `yaml:"redis_url"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	RedisMaxRetries int    `yaml:"redis_max_retries"`
	RedisPoolSize   int    `yaml:"redis_pool_size"`
	MemorySize      int    `yaml:"memory_size"`
}

// CollectorConfig holds metric computation settings
type CollectorConfig struct {
	Workers           int           `yaml:"workers"`
	ProviderTimeout   time.Duration `yaml:"provider_timeout"`
	EstimatorSeed     uint64        `yaml:"estimator_seed"`
	EstimatePageViews bool          `yaml:"estimate_page_views"`
	ThrottleInterval  time.Duration `yaml:"throttle_interval"`
	TopProviders      int           `yaml:"top_providers"`
}

// SchedulerConfig holds cron expressions and retry settings
type SchedulerConfig struct {
	Daily        string        `yaml:"daily"`
	Hourly       string        `yaml:"hourly"`
	Weekly       string        `yaml:"weekly"`
	Retention    string        `yaml:"retention"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryInitial time.Duration `yaml:"retry_initial"`
	RetryMax     time.Duration `yaml:"retry_max"`
	JobTimeout   time.Duration `yaml:"job_timeout"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
}

// ArchiveConfig holds retention sweep settings
type ArchiveConfig struct {
	Dir            string `yaml:"dir"`
	RetentionYears int    `yaml:"retention_years"`
	ReadBatch      int    `yaml:"read_batch"`
	DeleteBatch    int    `yaml:"delete_batch"`

	// An empty bucket keeps archives local only.
	S3Bucket       string `yaml:"s3_bucket"`
	S3Prefix       string `yaml:"s3_prefix"`
	S3Region       string `yaml:"s3_region"`
	S3Endpoint     string `yaml:"s3_endpoint"`
	S3AccessKey    string `yaml:"s3_access_key"`
	S3SecretKey    string `yaml:"s3_secret_key"`
	S3UsePathStyle bool   `yaml:"s3_use_path_style"`
	S3CreateBucket bool   `yaml:"s3_create_bucket"`
}

// NotifyConfig holds report email settings
type NotifyConfig struct {
	Sender       string `yaml:"sender"`
	From         string `yaml:"from"`
	SESRegion    string `yaml:"ses_region"`
	SESAccessKey string `yaml:"ses_access_key"`
	SESSecretKey string `yaml:"ses_secret_key"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel        string        `yaml:"log_level"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	HealthPort      string        `yaml:"health_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:   "postgres",
			URL:      "postgres://localhost/providerstats?sslmode=disable",
			MaxConns: 20,
			MinConns: 2,
			Timeout:  10 * time.Second,
		},
		Cache: CacheConfig{
			Backend:         CacheRedis,
			RedisURL:        "redis://localhost:6379/0",
			RedisMaxRetries: 3,
			RedisPoolSize:   10,
			MemorySize:      10000,
		},
		Collector: CollectorConfig{
			Workers:           8,
			ProviderTimeout:   30 * time.Second,
			EstimatePageViews: true,
			ThrottleInterval:  time.Minute,
			TopProviders:      10,
		},
		Scheduler: SchedulerConfig{
			Daily:        jobs.DefaultDailySchedule,
			Hourly:       jobs.DefaultHourlySchedule,
			Weekly:       jobs.DefaultWeeklySchedule,
			Retention:    jobs.DefaultRetentionSchedule,
			MaxRetries:   3,
			RetryInitial: 30 * time.Second,
			RetryMax:     5 * time.Minute,
			JobTimeout:   time.Hour,
			LockTTL:      2 * time.Hour,
		},
		Archive: ArchiveConfig{
			Dir:            "/var/lib/providerstats/archive",
			RetentionYears: 2,
			ReadBatch:      500,
			DeleteBatch:    1000,
			S3Region:       "us-east-1",
		},
		Notify: NotifyConfig{
			Sender:    SenderLog,
			From:      "reports@localhost",
			SESRegion: "us-east-1",
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			HealthPort:         "9090",
			ShutdownTimeout:    30 * time.Second,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "providerstats-aggregator",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig loads .env, the YAML file named by PROVIDERSTATS_CONFIG_FILE,
// then environment variables, and validates the result.
func LoadConfig() (*Config, error) {
	return Load("")
}

// Load is LoadConfig with an explicit YAML file. An empty file falls back to
// PROVIDERSTATS_CONFIG_FILE.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	if file == "" {
		file = os.Getenv(EnvPrefix + "CONFIG_FILE")
	}
	if file != "" {
		if err := cfg.loadFile(file); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides every field whose variable is set.
func (c *Config) applyEnv() {
	db := &c.Database
	db.Driver = getEnv("DB_DRIVER", db.Driver)
	db.URL = getEnv("DATABASE_URL", db.URL)
	db.MaxConns = getEnvInt("DB_MAX_CONNS", db.MaxConns)
	db.MinConns = getEnvInt("DB_MIN_CONNS", db.MinConns)
	db.Timeout = getEnvDuration("DB_TIMEOUT", db.Timeout)
	db.MaxLifetime = getEnvDuration("DB_MAX_LIFETIME", db.MaxLifetime)
	db.MaxIdleTime = getEnvDuration("DB_MAX_IDLE_TIME", db.MaxIdleTime)
	db.PageViewsTable = getEnvBool("DB_PAGE_VIEWS_TABLE", db.PageViewsTable)

	ca := &c.Cache
	ca.Backend = getEnv("CACHE_BACKEND", ca.Backend)
	ca.RedisURL = getEnv("REDIS_URL", ca.RedisURL)
	ca.RedisPassword = getEnv("REDIS_PASSWORD", ca.RedisPassword)
	ca.RedisDB = getEnvInt("REDIS_DB", ca.RedisDB)
	ca.RedisMaxRetries = getEnvInt("REDIS_MAX_RETRIES", ca.RedisMaxRetries)
	ca.RedisPoolSize = getEnvInt("REDIS_POOL_SIZE", ca.RedisPoolSize)
	ca.MemorySize = getEnvInt("CACHE_MEMORY_SIZE", ca.MemorySize)

	co := &c.Collector
	co.Workers = getEnvInt("COLLECTOR_WORKERS", co.Workers)
	co.ProviderTimeout = getEnvDuration("COLLECTOR_PROVIDER_TIMEOUT", co.ProviderTimeout)
	co.EstimatorSeed = getEnvUint64("ESTIMATOR_SEED", co.EstimatorSeed)
	co.EstimatePageViews = getEnvBool("ESTIMATE_PAGE_VIEWS", co.EstimatePageViews)
	co.ThrottleInterval = getEnvDuration("THROTTLE_INTERVAL", co.ThrottleInterval)
	co.TopProviders = getEnvInt("TOP_PROVIDERS", co.TopProviders)

	s := &c.Scheduler
	s.Daily = getEnv("SCHEDULE_DAILY", s.Daily)
	s.Hourly = getEnv("SCHEDULE_HOURLY", s.Hourly)
	s.Weekly = getEnv("SCHEDULE_WEEKLY", s.Weekly)
	s.Retention = getEnv("SCHEDULE_RETENTION", s.Retention)
	s.MaxRetries = getEnvInt("JOB_MAX_RETRIES", s.MaxRetries)
	s.RetryInitial = getEnvDuration("JOB_RETRY_INITIAL", s.RetryInitial)
	s.RetryMax = getEnvDuration("JOB_RETRY_MAX", s.RetryMax)
	s.JobTimeout = getEnvDuration("JOB_TIMEOUT", s.JobTimeout)
	s.LockTTL = getEnvDuration("JOB_LOCK_TTL", s.LockTTL)

	a := &c.Archive
	a.Dir = getEnv("ARCHIVE_DIR", a.Dir)
	a.RetentionYears = getEnvInt("RETENTION_YEARS", a.RetentionYears)
	a.ReadBatch = getEnvInt("ARCHIVE_READ_BATCH", a.ReadBatch)
	a.DeleteBatch = getEnvInt("ARCHIVE_DELETE_BATCH", a.DeleteBatch)
	a.S3Bucket = getEnv("S3_BUCKET", a.S3Bucket)
	a.S3Prefix = getEnv("S3_PREFIX", a.S3Prefix)
	a.S3Region = getEnv("S3_REGION", a.S3Region)
	a.S3Endpoint = getEnv("S3_ENDPOINT", a.S3Endpoint)
	a.S3AccessKey = getEnv("S3_ACCESS_KEY", a.S3AccessKey)
	a.S3SecretKey = getEnv("S3_SECRET_KEY", a.S3SecretKey)
	a.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", a.S3UsePathStyle)
	a.S3CreateBucket = getEnvBool("S3_CREATE_BUCKET", a.S3CreateBucket)

	n := &c.Notify
	n.Sender = getEnv("EMAIL_SENDER", n.Sender)
	n.From = getEnv("EMAIL_FROM", n.From)
	n.SESRegion = getEnv("SES_REGION", n.SESRegion)
	n.SESAccessKey = getEnv("SES_ACCESS_KEY", n.SESAccessKey)
	n.SESSecretKey = getEnv("SES_SECRET_KEY", n.SESSecretKey)

	o := &c.Observability
	o.LogLevel = getEnv("LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("METRICS_ENABLED", o.MetricsEnabled)
	o.HealthPort = getEnv("HEALTH_PORT", o.HealthPort)
	o.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", o.ShutdownTimeout)
	o.OTelEnabled = getEnvBool("OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := sqlstore.ParseDialect(c.Database.Driver); err != nil {
		return err
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Cache.Backend {
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis cache")
		}
	case CacheMemory:
		if c.Cache.MemorySize <= 0 {
			return fmt.Errorf("memory cache size must be positive")
		}
	case CacheNone:
	default:
		return fmt.Errorf("invalid cache backend: %s (must be redis, memory, or none)", c.Cache.Backend)
	}

	if c.Collector.Workers <= 0 {
		return fmt.Errorf("collector workers must be positive")
	}
	if c.Scheduler.MaxRetries < 0 {
		return fmt.Errorf("job max retries must not be negative")
	}
	if c.Archive.RetentionYears <= 0 {
		return fmt.Errorf("retention years must be positive")
	}
	if c.Archive.Dir == "" {
		return fmt.Errorf("archive directory is required")
	}

	switch c.Notify.Sender {
	case SenderLog:
	case SenderSES:
		if c.Notify.From == "" {
			return fmt.Errorf("from address is required for the ses sender")
		}
	default:
		return fmt.Errorf("invalid email sender: %s (must be log or ses)", c.Notify.Sender)
	}

	if c.Observability.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}
	return nil
}

// StoreConfig converts the database section.
func (c *Config) StoreConfig() sqlstore.Config {
	return sqlstore.Config{
		Driver:      c.Database.Driver,
		URL:         c.Database.URL,
		MaxConns:    c.Database.MaxConns,
		MinConns:    c.Database.MinConns,
		Timeout:     c.Database.Timeout,
		MaxLifetime: c.Database.MaxLifetime,
		MaxIdleTime: c.Database.MaxIdleTime,
	}
}

// RedisConfig converts the cache section.
func (c *Config) RedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		URL:        c.Cache.RedisURL,
		Password:   c.Cache.RedisPassword,
		DB:         c.Cache.RedisDB,
		MaxRetries: c.Cache.RedisMaxRetries,
		PoolSize:   c.Cache.RedisPoolSize,
	}
}

// S3Config converts the archive bucket settings. ok is false when no bucket
// is configured.
func (c *Config) S3Config() (cfg objectstore.Config, ok bool) {
	a := c.Archive
	return objectstore.Config{
		Bucket:       a.S3Bucket,
		Prefix:       a.S3Prefix,
		Region:       a.S3Region,
		Endpoint:     a.S3Endpoint,
		AccessKey:    a.S3AccessKey,
		SecretKey:    a.S3SecretKey,
		UsePathStyle: a.S3UsePathStyle,
		CreateBucket: a.S3CreateBucket,
	}, a.S3Bucket != ""
}

// OTelConfig converts the OpenTelemetry settings.
func (c *Config) OTelConfig() observability.OTelConfig {
	o := c.Observability
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
	}
}

// LogLevel parses the configured log level.
func (c *Config) LogLevel() observability.LogLevel {
	return observability.ParseLogLevel(c.Observability.LogLevel)
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvUint64 returns a uint64 environment variable or a default
func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
