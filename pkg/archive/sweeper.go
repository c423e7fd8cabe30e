package archive

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"
	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultReadBatch   = 500
	DefaultDeleteBatch = 1000
)

// DefaultRetentionYears is how long MetricRecords are kept.
const DefaultRetentionYears = 2

// Uploader copies a finished archive to remote storage and returns where it
// went.
type Uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Config configures the sweeper. Zero values get defaults.
type Config struct {
	Dir            string
	RetentionYears int
	ReadBatch      int
	DeleteBatch    int
}

// SweepResult describes one sweep.
type SweepResult struct {
	RunID        string    `json:"run_id"`
	Cutoff       time.Time `json:"cutoff"`
	Expired      int64     `json:"expired"`
	Archived     int64     `json:"archived"`
	ArchivePath  string    `json:"archive_path,omitempty"`
	Compressed   bool      `json:"compressed"`
	ArchiveBytes int64     `json:"archive_bytes"`
	UploadedTo   string    `json:"uploaded_to,omitempty"`
	Deleted      int64     `json:"deleted"`
	Orphans      int64     `json:"orphans"`
	Maintained   bool      `json:"maintained"`
}

// Sweeper archives and deletes aged-out MetricRecords. Nothing is deleted
// until the archive is confirmed on disk.
type Sweeper struct {
	store    Store
	cfg      Config
	uploader Uploader
	clock    clockwork.Clock
	logger   *observability.Logger
	metrics  *observability.Metrics
	otel     *observability.OTelMetrics
}

// NewSweeper creates a sweeper. uploader, metrics and otel may be nil.
func NewSweeper(store Store, cfg Config, uploader Uploader, clock clockwork.Clock,
	logger *observability.Logger, metrics *observability.Metrics, otel *observability.OTelMetrics) *Sweeper {

	if cfg.Dir == "" {
		cfg.Dir = "archives"
	}
	if cfg.RetentionYears <= 0 {
		cfg.RetentionYears = DefaultRetentionYears
	}
	if cfg.ReadBatch <= 0 {
		cfg.ReadBatch = DefaultReadBatch
	}
	if cfg.DeleteBatch <= 0 {
		cfg.DeleteBatch = DefaultDeleteBatch
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Sweeper{
		store:    store,
		cfg:      cfg,
		uploader: uploader,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		otel:     otel,
	}
}

// DefaultCutoff is now minus the retention period.
func (s *Sweeper) DefaultCutoff() time.Time {
	return s.clock.Now().UTC().AddDate(-s.cfg.RetentionYears, 0, 0)
}

// Sweep archives rows older than cutoff (zero means DefaultCutoff), deletes
// them, deletes orphaned rows, and refreshes table statistics.
func (s *Sweeper) Sweep(ctx context.Context, cutoff time.Time) (res *SweepResult, err error) {
	if cutoff.IsZero() {
		cutoff = s.DefaultCutoff()
	}
	cutoff = analytics.DayStart(cutoff)

	res = &SweepResult{RunID: uuid.NewString(), Cutoff: cutoff}
	logger := s.logger.WithFields(map[string]interface{}{
		"sweep_id": res.RunID,
		"cutoff":   cutoff.Format("2006-01-02"),
	})

	ctx, span := observability.Tracer().Start(ctx, "archive.Sweep")
	defer func() {
		span.SetAttributes(
			attribute.Int64("sweep.archived", res.Archived),
			attribute.Int64("sweep.deleted", res.Deleted),
			attribute.Int64("sweep.orphans", res.Orphans),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	res.Expired, err = s.store.CountExpired(ctx, cutoff)
	if err != nil {
		return res, err
	}

	if res.Expired == 0 {
		logger.Info("No expired metrics to archive")
	} else {
		logger.Infof("Archiving %d expired metric records", res.Expired)
		if err := s.archiveAndDelete(ctx, cutoff, res, logger); err != nil {
			logger.WithError(err).Error("Sweep aborted")
			return res, err
		}
	}

	res.Orphans, err = s.deleteInBatches(ctx, "orphans", logger, func() (int64, error) {
		return s.store.DeleteOrphans(ctx, s.cfg.DeleteBatch)
	})
	if err != nil {
		return res, err
	}
	if res.Orphans > 0 {
		logger.Infof("Deleted %d orphaned metric records", res.Orphans)
	}

	switch err := s.store.Maintain(ctx); {
	case errors.Is(err, ErrMaintenanceUnsupported):
		logger.Info("Statistics refresh not supported by this store, skipping")
	case err != nil:
		logger.WithError(err).Warn("Statistics refresh failed")
	default:
		res.Maintained = true
	}

	if s.metrics != nil {
		s.metrics.SweepRowsTotal.WithLabelValues("archived").Add(float64(res.Archived))
		s.metrics.SweepRowsTotal.WithLabelValues("deleted").Add(float64(res.Deleted))
		s.metrics.SweepRowsTotal.WithLabelValues("orphaned").Add(float64(res.Orphans))
		s.metrics.SweepArchiveBytes.Set(float64(res.ArchiveBytes))
		s.metrics.SweepLastRunTime.SetToCurrentTime()
	}
	s.otel.RecordSweep(ctx, "archived", res.Archived)
	s.otel.RecordSweep(ctx, "deleted", res.Deleted)
	s.otel.RecordSweep(ctx, "orphaned", res.Orphans)

	logger.WithFields(map[string]interface{}{
		"archived": res.Archived,
		"deleted":  res.Deleted,
		"orphans":  res.Orphans,
		"archive":  res.ArchivePath,
	}).Info("Sweep complete")
	return res, nil
}

func (s *Sweeper) archiveAndDelete(ctx context.Context, cutoff time.Time, res *SweepResult, logger *observability.Logger) error {
	csvPath, maxID, err := s.writeCSV(ctx, cutoff, res)
	if err != nil {
		return err
	}
	if res.Archived == 0 {
		// Rows vanished between count and export.
		os.Remove(csvPath)
		logger.Info("Expired metrics disappeared before export, nothing deleted")
		return nil
	}

	res.ArchivePath = csvPath
	gzPath, err := compressFile(csvPath)
	if err != nil {
		logger.WithError(err).Warn("Archive compression failed, keeping uncompressed CSV")
	} else {
		if err := os.Remove(csvPath); err != nil {
			logger.WithError(err).Warn("Failed to remove uncompressed CSV")
		}
		res.ArchivePath = gzPath
		res.Compressed = true
	}

	info, err := os.Stat(res.ArchivePath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrArchiveNotConfirmed, res.ArchivePath)
	}
	res.ArchiveBytes = info.Size()
	logger.WithField("archive", res.ArchivePath).Infof("Archived %d records (%d bytes)", res.Archived, res.ArchiveBytes)

	if s.uploader != nil {
		location, err := s.uploader.Upload(ctx, res.ArchivePath)
		if err != nil {
			logger.WithError(err).Warn("Archive upload failed, local copy kept")
		} else {
			res.UploadedTo = location
		}
	}

	res.Deleted, err = s.deleteInBatches(ctx, "expired", logger, func() (int64, error) {
		return s.store.DeleteExpired(ctx, cutoff, maxID, s.cfg.DeleteBatch)
	})
	return err
}

// writeCSV exports expired rows to a new archive file and returns its path
// and the highest archived id.
func (s *Sweeper) writeCSV(ctx context.Context, cutoff time.Time, res *SweepResult) (string, int64, error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create archive directory: %w", err)
	}

	name := fmt.Sprintf("provider_metrics_archive_%s.csv", s.clock.Now().UTC().Format("20060102T150405Z"))
	finalPath := filepath.Join(s.cfg.Dir, name)

	tmp, err := os.CreateTemp(s.cfg.Dir, name+".*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create archive file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) (string, int64, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return "", 0, err
	}

	rw, err := newRowWriter(csv.NewWriter(tmp))
	if err != nil {
		return fail(err)
	}
	err = s.store.StreamExpired(ctx, cutoff, s.cfg.ReadBatch, func(rows []Row) error {
		return rw.write(rows)
	})
	if err != nil {
		return fail(fmt.Errorf("failed to export expired metrics: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync archive: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", 0, fmt.Errorf("failed to finalize archive: %w", err)
	}

	res.Archived = rw.count
	return finalPath, rw.maxID, nil
}

// compressFile gzips path to path.gz and leaves the source in place.
func compressFile(path string) (string, error) {
	gzPath := path + ".gz"
	tmpPath := gzPath + ".tmp"

	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.Create(tmpPath)
	if err != nil {
		return "", err
	}

	zw, err := gzip.NewWriterLevel(dst, gzip.BestCompression)
	if err == nil {
		zw.Name = filepath.Base(path)
		_, err = io.Copy(zw, src)
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
	}
	if err == nil {
		err = dst.Sync()
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpPath, gzPath)
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to compress %s: %w", path, err)
	}
	return gzPath, nil
}

// deleteInBatches repeats del until it removes less than a full batch.
func (s *Sweeper) deleteInBatches(ctx context.Context, what string, logger *observability.Logger,
	del func() (int64, error)) (int64, error) {

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := del()
		if err != nil {
			return total, fmt.Errorf("failed to delete %s after %d rows: %w", what, total, err)
		}
		total += n
		if n > 0 {
			logger.Debugf("Deleted %d %s rows (%d total)", n, what, total)
		}
		if n < int64(s.cfg.DeleteBatch) {
			return total, nil
		}
	}
}
