package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is an in-process Cache for single-replica deployments and
// tests. Expiry follows the injected clock.
type MemoryCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, memEntry]
	clock   clockwork.Clock
}

// NewMemoryCache creates a cache bounded to size entries.
func NewMemoryCache(size int, clock clockwork.Clock) (*MemoryCache, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	entries, err := lru.New[string, memEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{entries: entries, clock: clock}, nil
}

// lookup must be called with mu held.
func (c *MemoryCache) lookup(key string) (memEntry, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return memEntry{}, false
	}
	if e.expired(c.clock.Now()) {
		c.entries.Remove(key)
		return memEntry{}, false
	}
	return e, true
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}
	c.entries.Add(key, e)
	return nil
}

// Increment implements Cache. The existing expiry is preserved.
func (c *MemoryCache) Increment(_ context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	var n int64
	if ok {
		parsed, err := strconv.ParseInt(string(e.value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value at %s is not an integer", key)
		}
		n = parsed
	}
	n += delta
	e.value = []byte(strconv.FormatInt(n, 10))
	c.entries.Add(key, e)
	return n, nil
}

// ExpireAt implements Cache. Missing keys are ignored.
func (c *MemoryCache) ExpireAt(_ context.Context, key string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return nil
	}
	e.expiresAt = at
	c.entries.Add(key, e)
	return nil
}

// Delete implements Cache.
func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, k := range keys {
		c.entries.Remove(k)
	}
	return nil
}

// Len reports the number of entries, including ones not yet evicted after expiry.
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}
