package distlock

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Lock guards one scheduled job across replicas. A Lock value is used by one
// goroutine at a time.
type Lock interface {
	// Acquire tries once and reports whether the lock is now held.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if this instance still owns it.
	Release(ctx context.Context) error
}

// Factory creates a fresh lock for a key.
type Factory func(key string) Lock

// NewFactory picks the best backend: Redis when a client is available,
// Postgres advisory locks when the store is Postgres, and an in-process lock
// otherwise.
func NewFactory(redisClient *redis.Client, db *sql.DB, postgres bool, ttl time.Duration) Factory {
	switch {
	case redisClient != nil:
		return func(key string) Lock { return NewRedisLock(redisClient, key, ttl) }
	case postgres && db != nil:
		return func(key string) Lock { return NewPGAdvisoryLock(db, key) }
	default:
		local := NewLocalLocks()
		return local.Lock
	}
}

// PGAdvisoryLock uses pg_try_advisory_lock. Advisory locks are session
// scoped, so the lock pins one pooled connection until Release.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives a stable lock id from key.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire implements Lock.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get connection for advisory lock: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, fmt.Errorf("failed to acquire advisory lock %d: %w", l.lockID, err)
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release implements Lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID); err != nil {
		return fmt.Errorf("failed to release advisory lock %d: %w", l.lockID, err)
	}
	return nil
}

// LocalLocks is an in-process lock table for single-replica deployments.
type LocalLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLocks creates an empty lock table.
func NewLocalLocks() *LocalLocks {
	return &LocalLocks{held: make(map[string]bool)}
}

// Lock returns a Lock for key backed by the table.
func (t *LocalLocks) Lock(key string) Lock {
	return &localLock{table: t, key: key}
}

type localLock struct {
	table *LocalLocks
	key   string
	owned bool
}

func (l *localLock) Acquire(context.Context) (bool, error) {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.table.held[l.key] {
		return false, nil
	}
	l.table.held[l.key] = true
	l.owned = true
	return true, nil
}

func (l *localLock) Release(context.Context) error {
	l.table.mu.Lock()
	defer l.table.mu.Unlock()
	if l.owned {
		delete(l.table.held, l.key)
		l.owned = false
	}
	return nil
}
