package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	cache   Cache
	now     func() time.Time
	advance func(time.Duration)
}

// setupRedisCache creates a miniredis instance and returns the backend and cleanup function
func setupRedisCache(t *testing.T) (backend, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client, err := NewRedisClient(context.Background(), RedisConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create Redis client: %v", err)
	}

	now := time.Now()
	mr.SetTime(now)
	b := backend{
		cache: NewRedisCache(client),
		now:   func() time.Time { return now },
		advance: func(d time.Duration) {
			now = now.Add(d)
			mr.SetTime(now)
			mr.FastForward(d)
		},
	}

	return b, func() {
		client.Close()
		mr.Close()
	}
}

func setupMemoryCache(t *testing.T) (backend, func()) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	c, err := NewMemoryCache(128, clock)
	require.NoError(t, err)

	return backend{
		cache:   c,
		now:     clock.Now,
		advance: clock.Advance,
	}, func() {}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	setups := map[string]func(*testing.T) (backend, func()){
		"redis":  setupRedisCache,
		"memory": setupMemoryCache,
	}
	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			b, cleanup := setup(t)
			defer cleanup()
			fn(t, b)
		})
	}
}

func TestCache_GetSetDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()

		_, ok, err := b.cache.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.cache.Set(ctx, "k", []byte("v"), time.Minute))
		got, ok, err := b.cache.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", string(got))

		require.NoError(t, b.cache.Delete(ctx, "k", "other"))
		_, ok, err = b.cache.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCache_TTLExpiry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()

		require.NoError(t, b.cache.Set(ctx, "short", []byte("1"), time.Hour))
		b.advance(59 * time.Minute)
		_, ok, err := b.cache.Get(ctx, "short")
		require.NoError(t, err)
		assert.True(t, ok, "entry should survive until its TTL")

		b.advance(2 * time.Minute)
		_, ok, err = b.cache.Get(ctx, "short")
		require.NoError(t, err)
		assert.False(t, ok, "entry should expire after its TTL")
	})
}

func TestCache_IncrementAndExpireAt(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		key := CounterKey(7, b.now(), CounterLeads)

		n, err := b.cache.Increment(ctx, key, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = b.cache.Increment(ctx, key, 4)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)

		require.NoError(t, b.cache.ExpireAt(ctx, key, b.now().Add(30*time.Minute)))

		got, ok, err := GetCounter(ctx, b.cache, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(5), got)

		b.advance(31 * time.Minute)
		_, ok, err = GetCounter(ctx, b.cache, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCache_JSONHelpers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		type summary struct {
			Leads int64 `json:"leads"`
		}

		require.NoError(t, SetJSON(ctx, b.cache, "s", summary{Leads: 12}, time.Hour))

		var out summary
		ok, err := GetJSON(ctx, b.cache, "s", &out)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(12), out.Leads)

		require.NoError(t, b.cache.Set(ctx, "corrupt", []byte("{not json"), time.Hour))
		ok, err = GetJSON(ctx, b.cache, "corrupt", &out)
		require.NoError(t, err)
		assert.False(t, ok)
		_, present, _ := b.cache.Get(ctx, "corrupt")
		assert.False(t, present, "corrupt entries are dropped")
	})
}

func TestCache_SetCounter(t *testing.T) {
	forEachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()

		require.NoError(t, SetCounter(ctx, b.cache, "c", 42, b.now().Add(time.Hour)))
		n, ok, err := GetCounter(ctx, b.cache, "c")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(42), n)
	})
}

func TestMemoryCache_Eviction(t *testing.T) {
	c, err := NewMemoryCache(2, clockwork.NewFakeClock())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok, "least recently used entry is evicted")
	assert.Equal(t, 2, c.Len())
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), RedisConfig{URL: "://nope"})
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	day := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, "metrics:9:2024-01-01:page_views", CounterKey(9, day, CounterPageViews))
	assert.Equal(t, time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC), CounterExpiry(day))
	assert.Equal(t, "metrics-summary:2024-01-01", DailySummaryKey(day))
	assert.Equal(t, "metrics-summary:hourly:2024-01-01T15", HourlySummaryKey(day))
	assert.Equal(t, "top-providers:2024-01-01", TopProvidersKey(day))
	assert.Equal(t, "metrics-summary:weekly:2024-W01", WeeklySummaryKey(day))
	assert.Equal(t, "metrics-summary:monthly:2024-01", MonthlySummaryKey(day))
	assert.Equal(t, "metrics-throttle:9", ThrottleKey(9))
}
