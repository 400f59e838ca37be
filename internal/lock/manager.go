// Package lock provides a lease-based distributed lock backed by the
// shared int_lock table. A lock is a row; holding it means having inserted
// the row. Rows older than the TTL are reclaimable by any acquirer, which
// bounds the damage of a crashed holder.
package lock

import (
	"context"
	"time"
)

const defaultPollInterval = 100 * time.Millisecond

// store is the persistence contract for lock rows. The SQL implementation
// lives in store.go; tests use an in-memory one.
type store interface {
	deleteExpired(ctx context.Context, key string) error
	tryInsert(ctx context.Context, key string) (bool, error)
	delete(ctx context.Context, key string) error
}

type Manager struct {
	store        store
	pollInterval time.Duration
}

func newManager(s store) *Manager {
	return &Manager{
		store:        s,
		pollInterval: defaultPollInterval,
	}
}

// TryAcquire attempts to obtain exclusive ownership of key, retrying until
// timeout elapses or ctx is cancelled. It fails closed: a store error is
// reported as not acquired, never as a silent grant.
func (m *Manager) TryAcquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		acquired, err := m.attempt(ctx, key)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}

		wait := m.pollInterval
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (m *Manager) attempt(ctx context.Context, key string) (bool, error) {
	// Reclaim an abandoned lease first, then race for the insert. The
	// primary key makes the insert the single atomic decision point.
	if err := m.store.deleteExpired(ctx, key); err != nil {
		return false, err
	}
	return m.store.tryInsert(ctx, key)
}

// Release gives up the lock. Safe to call when the lease already expired
// or was never held; only rows owned by this manager's client id are
// removed.
func (m *Manager) Release(ctx context.Context, key string) error {
	return m.store.delete(ctx, key)
}
