package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/providerstats/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateThrottle_Allow(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC))
	store, err := cache.NewMemoryCache(100, clock)
	require.NoError(t, err)

	throttle := NewUpdateThrottle(store, clock, 5*time.Minute)
	key := cache.ThrottleKey(1)

	assert.True(t, throttle.Allow(ctx, key), "first call is allowed")
	assert.False(t, throttle.Allow(ctx, key), "second call inside the interval is throttled")
	assert.True(t, throttle.Allow(ctx, cache.ThrottleKey(2)), "keys are independent")

	clock.Advance(4 * time.Minute)
	assert.False(t, throttle.Allow(ctx, key))

	clock.Advance(time.Minute)
	assert.True(t, throttle.Allow(ctx, key), "allowed once the interval has passed")
	assert.False(t, throttle.Allow(ctx, key))
}

func TestUpdateThrottle_CorruptValueAllows(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	store, err := cache.NewMemoryCache(10, clock)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "k", []byte("not-a-time"), time.Hour))

	throttle := NewUpdateThrottle(store, clock, time.Minute)
	assert.True(t, throttle.Allow(ctx, "k"))
	assert.False(t, throttle.Allow(ctx, "k"))
}
