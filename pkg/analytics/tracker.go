package analytics

import (
	"context"
	"time"

	"github.com/platinummonkey/providerstats/pkg/async"
	"github.com/platinummonkey/providerstats/pkg/cache"
	"github.com/platinummonkey/providerstats/pkg/observability"
)

// Tracker records real-time activity into the day counters and schedules a
// throttled background recompute of the provider's record.
type Tracker struct {
	collector        *Collector
	cache            cache.Cache
	throttle         *UpdateThrottle
	recomputeTimeout time.Duration
	logger           *observability.Logger
}

// NewTracker creates a tracker.
func NewTracker(collector *Collector, c cache.Cache, throttle *UpdateThrottle) *Tracker {
	return &Tracker{
		collector:        collector,
		cache:            c,
		throttle:         throttle,
		recomputeTimeout: 30 * time.Second,
		logger:           collector.logger,
	}
}

// TrackLead counts a new lead.
func (t *Tracker) TrackLead(ctx context.Context, providerID int64) error {
	return t.track(ctx, providerID, cache.CounterLeads)
}

// TrackPageView counts a profile page view.
func (t *Tracker) TrackPageView(ctx context.Context, providerID int64) error {
	return t.track(ctx, providerID, cache.CounterPageViews)
}

// TrackConversion counts a lead converted today.
func (t *Tracker) TrackConversion(ctx context.Context, providerID int64) error {
	return t.track(ctx, providerID, cache.CounterConversions)
}

func (t *Tracker) track(ctx context.Context, providerID int64, counter string) error {
	day := t.collector.Today()
	key := cache.CounterKey(providerID, day, counter)

	if _, err := t.cache.Increment(ctx, key, 1); err != nil {
		return err
	}
	if err := t.cache.ExpireAt(ctx, key, cache.CounterExpiry(day)); err != nil {
		t.logger.WithError(err).WithField("key", key).Warn("Failed to set counter expiry")
	}

	if t.throttle != nil && !t.throttle.Allow(ctx, cache.ThrottleKey(providerID)) {
		return nil
	}

	// Detached from the caller so a finished request does not cancel it.
	async.SafeGo(context.WithoutCancel(ctx), t.recomputeTimeout, "metrics recompute", func(ctx context.Context) error {
		_, err := t.collector.Compute(ctx, providerID, day)
		return err
	})
	return nil
}
