package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/archive"
	"github.com/platinummonkey/providerstats/pkg/cache"
	"github.com/platinummonkey/providerstats/pkg/config"
	"github.com/platinummonkey/providerstats/pkg/distlock"
	"github.com/platinummonkey/providerstats/pkg/jobs"
	"github.com/platinummonkey/providerstats/pkg/notify"
	"github.com/platinummonkey/providerstats/pkg/observability"
	"github.com/platinummonkey/providerstats/pkg/storage/objectstore"
	"github.com/platinummonkey/providerstats/pkg/storage/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	configFile = flag.String("config", "", "YAML config file (default: $PROVIDERSTATS_CONFIG_FILE)")
	runOnce    = flag.Bool("run-once", false, "Run --job once and exit (for testing or backfilling)")
	jobName    = flag.String("job", jobs.NameDaily, "Job for --run-once: daily, hourly, weekly, retention or all (all is refused with --date)")
	runDate    = flag.String("date", "", "Day to run for (YYYY-MM-DD). If empty, uses today. Only used with --run-once")
	migrate    = flag.Bool("migrate", false, "Create missing tables before running")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel(), os.Stdout).WithField("version", version)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Error("Aggregator failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	clock, err := jobClock()
	if err != nil {
		return err
	}

	otelProviders, err := observability.InitOTel(ctx, cfg.OTelConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	otelMetrics, err := observability.NewOTelMetrics()
	if err != nil {
		logger.WithError(err).Warn("OpenTelemetry metrics disabled")
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	store, err := sqlstore.Open(ctx, cfg.StoreConfig(), logger)
	if err != nil {
		return err
	}
	if *migrate {
		if err := store.Migrate(ctx, sqlstore.MigrateOptions{PageViews: cfg.Database.PageViewsTable}); err != nil {
			store.Close()
			return err
		}
	}

	redisClient, rollupCache, err := openCache(ctx, cfg)
	if err != nil {
		store.Close()
		return err
	}

	scheduler, err := buildScheduler(ctx, cfg, store, redisClient, rollupCache, clock, logger, metrics, otelMetrics)
	if err != nil {
		store.Close()
		return err
	}

	cleanup := func(ctx context.Context) {
		if redisClient != nil {
			redisClient.Close()
		}
		store.Close()
		if otelProviders != nil {
			observability.ShutdownOTel(ctx, otelProviders, logger)
		}
	}

	if *runOnce {
		defer cleanup(ctx)
		if err := jobs.CheckRunOnce(*jobName, *runDate != ""); err != nil {
			return err
		}
		logger.Infof("Running %s for %s", *jobName, clock.Now().Format("2006-01-02"))
		if err := scheduler.RunOnce(ctx, *jobName); err != nil {
			return err
		}
		logger.Info("Run completed successfully")
		return nil
	}

	server := &http.Server{
		Addr:              ":" + cfg.Observability.HealthPort,
		Handler:           observability.NewRouter(observability.NewHealthChecker(store.DB(), redisClient, version), registry, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Health server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Health server failed")
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server, cfg.Observability.ShutdownTimeout)
	shutdown.Register("resources", func(ctx context.Context) error {
		cleanup(ctx)
		return nil
	})
	shutdown.Register("scheduler", scheduler.Stop)

	scheduler.Start()
	logger.WithFields(map[string]interface{}{
		"daily":     cfg.Scheduler.Daily,
		"hourly":    cfg.Scheduler.Hourly,
		"weekly":    cfg.Scheduler.Weekly,
		"retention": cfg.Scheduler.Retention,
	}).Info("Provider stats aggregator started")

	return shutdown.WaitForSignal(ctx)
}

// jobClock is the real clock, or a clock frozen at noon on --date for
// backfills.
func jobClock() (clockwork.Clock, error) {
	if *runDate == "" {
		return clockwork.NewRealClock(), nil
	}
	if !*runOnce {
		return nil, errors.New("--date requires --run-once")
	}
	day, err := time.Parse("2006-01-02", *runDate)
	if err != nil {
		return nil, fmt.Errorf("invalid date format: %w", err)
	}
	return clockwork.NewFakeClockAt(day.Add(12 * time.Hour)), nil
}

func openCache(ctx context.Context, cfg *config.Config) (*redis.Client, cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		client, err := cache.NewRedisClient(ctx, cfg.RedisConfig())
		if err != nil {
			return nil, nil, err
		}
		return client, cache.NewRedisCache(client), nil
	case config.CacheMemory:
		c, err := cache.NewMemoryCache(cfg.Cache.MemorySize, clockwork.NewRealClock())
		if err != nil {
			return nil, nil, err
		}
		return nil, c, nil
	default:
		return nil, nil, nil
	}
}

func newSender(ctx context.Context, cfg *config.Config, logger *observability.Logger) (notify.Sender, error) {
	if cfg.Notify.Sender != config.SenderSES {
		return notify.LogSender{Logger: logger}, nil
	}
	return notify.NewSESSender(ctx, notify.SESConfig{
		Region:    cfg.Notify.SESRegion,
		AccessKey: cfg.Notify.SESAccessKey,
		SecretKey: cfg.Notify.SESSecretKey,
		From:      cfg.Notify.From,
	})
}

func buildScheduler(ctx context.Context, cfg *config.Config, store *sqlstore.Store, redisClient *redis.Client,
	rollupCache cache.Cache, clock clockwork.Clock, logger *observability.Logger,
	metrics *observability.Metrics, otelMetrics *observability.OTelMetrics) (*jobs.Scheduler, error) {

	collector := analytics.NewCollector(store, rollupCache, analytics.CollectorConfig{
		Workers:           cfg.Collector.Workers,
		ProviderTimeout:   cfg.Collector.ProviderTimeout,
		EstimatePageViews: cfg.Collector.EstimatePageViews,
		Estimator:         analytics.NewEstimator(cfg.Collector.EstimatorSeed),
		Clock:             clock,
		Logger:            logger,
		Metrics:           metrics,
		OTel:              otelMetrics,
	})
	rollups := analytics.NewRollups(store, rollupCache, clock, logger, metrics, cfg.Collector.TopProviders)

	sender, err := newSender(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.NewNotifier(sender, logger, metrics)
	if err != nil {
		return nil, err
	}

	var uploader archive.Uploader
	if s3cfg, ok := cfg.S3Config(); ok {
		u, err := objectstore.NewS3Uploader(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		uploader = u
	}
	sweeper := archive.NewSweeper(store, archive.Config{
		Dir:            cfg.Archive.Dir,
		RetentionYears: cfg.Archive.RetentionYears,
		ReadBatch:      cfg.Archive.ReadBatch,
		DeleteBatch:    cfg.Archive.DeleteBatch,
	}, uploader, clock, logger, metrics, otelMetrics)

	locks := distlock.NewFactory(redisClient, store.DB(), store.Dialect() == sqlstore.Postgres, cfg.Scheduler.LockTTL)
	scheduler := jobs.NewScheduler(jobs.Config{
		MaxRetries:   cfg.Scheduler.MaxRetries,
		RetryInitial: cfg.Scheduler.RetryInitial,
		RetryMax:     cfg.Scheduler.RetryMax,
		Timeout:      cfg.Scheduler.JobTimeout,
	}, locks, logger, metrics, otelMetrics)

	schedule := func(spec string) string {
		if *runOnce {
			return ""
		}
		return spec
	}
	registrations := []struct {
		spec string
		job  jobs.Job
	}{
		{cfg.Scheduler.Daily, jobs.NewDailyJob(collector, clock, logger)},
		{cfg.Scheduler.Hourly, jobs.NewHourlyJob(collector, rollups, clock, logger)},
		{cfg.Scheduler.Weekly, jobs.NewWeeklyReportJob(store, notifier, clock, logger)},
		{cfg.Scheduler.Retention, jobs.NewRetentionJob(sweeper, logger)},
	}
	for _, r := range registrations {
		if err := scheduler.Register(schedule(r.spec), r.job); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}
