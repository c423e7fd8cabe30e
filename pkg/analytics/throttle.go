package analytics

import (
	"context"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/platinummonkey/providerstats/pkg/cache"
)

// UpdateThrottle limits how often a key may trigger work. The last allowed
// time lives in the cache so replicas share it; two replicas racing may both
// be allowed once, which only costs an extra idempotent recompute.
type UpdateThrottle struct {
	store    cache.Cache
	clock    clockwork.Clock
	interval time.Duration
}

// NewUpdateThrottle creates a throttle that allows a key at most once per interval.
func NewUpdateThrottle(store cache.Cache, clock clockwork.Clock, interval time.Duration) *UpdateThrottle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &UpdateThrottle{store: store, clock: clock, interval: interval}
}

// Allow reports whether key may run now and, if so, records the attempt.
// Storage errors allow the call.
func (t *UpdateThrottle) Allow(ctx context.Context, key string) bool {
	now := t.clock.Now()

	data, ok, err := t.store.Get(ctx, key)
	if err == nil && ok {
		if last, perr := strconv.ParseInt(string(data), 10, 64); perr == nil {
			if now.Sub(time.Unix(0, last)) < t.interval {
				return false
			}
		}
	}

	_ = t.store.Set(ctx, key, []byte(strconv.FormatInt(now.UnixNano(), 10)), 2*t.interval)
	return true
}
