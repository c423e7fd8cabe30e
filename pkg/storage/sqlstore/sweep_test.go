package sqlstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/providerstats/pkg/analytics"
	"github.com/platinummonkey/providerstats/pkg/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_SweepEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t, true)
	addProvider(t, s, 1, "acme", analytics.StatusApproved, false)

	clock := clockwork.NewFakeClockAt(testDay.Add(3 * time.Hour))
	old := testDay.AddDate(-3, 0, 0)
	for i := 0; i < 7; i++ {
		require.NoError(t, s.UpsertMetric(ctx, &analytics.MetricRecord{
			ProviderID: 1, Date: old.AddDate(0, 0, i), LeadsReceived: int64(i),
		}))
	}
	require.NoError(t, s.UpsertMetric(ctx, &analytics.MetricRecord{ProviderID: 1, Date: testDay, LeadsReceived: 9}))
	require.NoError(t, s.UpsertMetric(ctx, &analytics.MetricRecord{ProviderID: 42, Date: testDay}))

	sweeper := archive.NewSweeper(s, archive.Config{Dir: t.TempDir(), ReadBatch: 3, DeleteBatch: 2}, nil, clock, nil, nil, nil)
	res, err := sweeper.Sweep(ctx, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, int64(7), res.Expired)
	assert.Equal(t, int64(7), res.Archived)
	assert.Equal(t, int64(7), res.Deleted)
	assert.Equal(t, int64(1), res.Orphans)
	assert.True(t, res.Compressed)
	assert.True(t, res.Maintained)

	info, err := os.Stat(res.ArchivePath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	remaining, err := s.SummarizeMetrics(ctx, old, testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, int64(9), remaining[0].Leads)
	assert.Equal(t, 1, remaining[0].Days)
}
