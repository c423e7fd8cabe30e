package archive

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/providerstats/pkg/analytics"
)

var (
	// ErrMaintenanceUnsupported is returned by stores with no statistics
	// refresh. The sweeper logs it and carries on.
	ErrMaintenanceUnsupported = errors.New("maintenance not supported by store")
	// ErrArchiveNotConfirmed aborts a sweep before any row is deleted.
	ErrArchiveNotConfirmed = errors.New("archive file not confirmed on disk")
)

// Row is an expired MetricRecord with its provider's name. ProviderName is
// empty when the provider no longer exists.
type Row struct {
	analytics.MetricRecord
	ProviderName string
}

// Store is the retention side of the relational store. Rows are expired
// when Date < cutoff.
type Store interface {
	CountExpired(ctx context.Context, cutoff time.Time) (int64, error)
	// StreamExpired calls fn with pages of at most batchSize rows ordered by
	// provider, date and id.
	StreamExpired(ctx context.Context, cutoff time.Time, batchSize int, fn func([]Row) error) error
	// DeleteExpired removes up to batchSize expired rows with id <= maxID and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, cutoff time.Time, maxID int64, batchSize int) (int64, error)
	// DeleteOrphans removes up to batchSize rows whose provider is gone.
	DeleteOrphans(ctx context.Context, batchSize int) (int64, error)
	// Maintain refreshes planner statistics for the metrics table.
	Maintain(ctx context.Context) error
}
