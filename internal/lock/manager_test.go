package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the SQL store's semantics in memory: one row per key,
// rows older than ttl reclaimable, deletes scoped to the owning client.
type memStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	clientID string
	rows     map[string]memRow
	failWith error
}

type memRow struct {
	clientID string
	created  time.Time
}

func newMemStore(clientID string, ttl time.Duration) *memStore {
	return &memStore{ttl: ttl, clientID: clientID, rows: make(map[string]memRow)}
}

func (s *memStore) deleteExpired(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if row, ok := s.rows[key]; ok && time.Since(row.created) > s.ttl {
		delete(s.rows, key)
	}
	return nil
}

func (s *memStore) tryInsert(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return false, s.failWith
	}
	if _, ok := s.rows[key]; ok {
		return false, nil
	}
	s.rows[key] = memRow{clientID: s.clientID, created: time.Now()}
	return true, nil
}

func (s *memStore) delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	if row, ok := s.rows[key]; ok && row.clientID == s.clientID {
		delete(s.rows, key)
	}
	return nil
}

func TestTryAcquireGrantsFreeLock(t *testing.T) {
	m := newManager(newMemStore("client-a", time.Minute))

	acquired, err := m.TryAcquire(context.Background(), "order-1", 50*time.Millisecond)

	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestTryAcquireIsMutuallyExclusive(t *testing.T) {
	store := newMemStore("client-a", time.Minute)
	m := newManager(store)
	m.pollInterval = 5 * time.Millisecond

	acquired, err := m.TryAcquire(context.Background(), "order-1", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = m.TryAcquire(context.Background(), "order-1", 30*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, acquired, "held lock must not be granted twice")
}

func TestConcurrentAcquirersNeverBothSucceed(t *testing.T) {
	store := newMemStore("client-a", time.Minute)

	const attempts = 20
	results := make(chan bool, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := newManager(store)
			ok, err := m.TryAcquire(context.Background(), "order-7", 10*time.Millisecond)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	granted := 0
	for ok := range results {
		if ok {
			granted++
		}
	}
	assert.Equal(t, 1, granted, "exactly one acquirer may win")
}

func TestExpiredLeaseBecomesAcquirable(t *testing.T) {
	store := newMemStore("client-a", 20*time.Millisecond)
	m := newManager(store)

	acquired, err := m.TryAcquire(context.Background(), "order-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	// Holder crashes: no release. After the TTL the lease is reclaimable.
	time.Sleep(30 * time.Millisecond)

	acquired, err = m.TryAcquire(context.Background(), "order-1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, acquired, "expired lease must be reclaimable")
}

func TestReleaseThenReacquire(t *testing.T) {
	store := newMemStore("client-a", time.Minute)
	m := newManager(store)

	acquired, err := m.TryAcquire(context.Background(), "order-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, m.Release(context.Background(), "order-1"))

	acquired, err = m.TryAcquire(context.Background(), "order-1", 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m := newManager(newMemStore("client-a", time.Minute))

	assert.NoError(t, m.Release(context.Background(), "order-1"))
	assert.NoError(t, m.Release(context.Background(), "order-1"))
}

func TestAcquireFailsClosedOnStoreError(t *testing.T) {
	store := newMemStore("client-a", time.Minute)
	store.failWith = errors.New("connection refused")
	m := newManager(store)

	acquired, err := m.TryAcquire(context.Background(), "order-1", 50*time.Millisecond)

	assert.Error(t, err)
	assert.False(t, acquired)
}

func TestAcquireIsCancellable(t *testing.T) {
	store := newMemStore("client-a", time.Minute)
	holder := newManager(store)
	acquired, err := holder.TryAcquire(context.Background(), "order-1", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)

	ctx, cancel := context.WithCancel(context.Background())
	waiter := newManager(store)
	waiter.pollInterval = 10 * time.Millisecond

	done := make(chan struct{})
	go func() {
		defer close(done)
		ok, err := waiter.TryAcquire(ctx, "order-1", time.Hour)
		assert.False(t, ok)
		assert.ErrorIs(t, err, context.Canceled)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked acquire did not observe cancellation")
	}
}
