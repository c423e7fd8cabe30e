package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache is the rollup cache. Entries are safe to lose: a miss means
// "recompute", never "no data".
type Cache interface {
	// Get returns the value and whether the key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Increment adds delta to an integer counter, creating it at zero.
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	// ExpireAt sets an absolute expiry on an existing key.
	ExpireAt(ctx context.Context, key string, at time.Time) error
	Delete(ctx context.Context, keys ...string) error
}

// GetJSON loads a JSON value. A corrupt entry is deleted and reported as a miss.
func GetJSON(ctx context.Context, c Cache, key string, v interface{}) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = c.Delete(ctx, key)
		return false, nil
	}
	return true, nil
}

// SetJSON stores v as JSON with the given TTL.
func SetJSON(ctx context.Context, c Cache, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}

// SetCounter writes an absolute counter value that expires at the given time.
func SetCounter(ctx context.Context, c Cache, key string, value int64, expireAt time.Time) error {
	if err := c.Set(ctx, key, []byte(fmt.Sprintf("%d", value)), 0); err != nil {
		return err
	}
	return c.ExpireAt(ctx, key, expireAt)
}

// GetCounter reads an integer counter written by Increment or SetCounter.
func GetCounter(ctx context.Context, c Cache, key string) (int64, bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	var n int64
	if _, err := fmt.Sscanf(string(data), "%d", &n); err != nil {
		return 0, false, fmt.Errorf("counter %s is not an integer: %w", key, err)
	}
	return n, true, nil
}
