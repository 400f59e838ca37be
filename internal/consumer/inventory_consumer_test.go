package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamruddin/modulith-go/internal/models"
)

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	grantErr error
	acquired []string
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) TryAcquire(ctx context.Context, key string, timeout time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.grantErr != nil {
		return false, l.grantErr
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

type fakeApplier struct {
	mu          sync.Mutex
	err         error
	events      []models.OrderPlacedEvent
	inFlight    int
	maxInFlight int
}

func (a *fakeApplier) ApplyOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error {
	a.mu.Lock()
	if a.err != nil {
		a.mu.Unlock()
		return a.err
	}
	a.inFlight++
	if a.inFlight > a.maxInFlight {
		a.maxInFlight = a.inFlight
	}
	a.events = append(a.events, event)
	a.mu.Unlock()

	time.Sleep(time.Millisecond)

	a.mu.Lock()
	a.inFlight--
	a.mu.Unlock()
	return nil
}

type fakeAcker struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcker) Ack(multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = true
	return nil
}

func (a *fakeAcker) Nack(multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked = true
	a.requeue = requeue
	return nil
}

func orderPlacedBody(t *testing.T, event models.OrderPlacedEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestHandleDeliveryAppliesEffectAndAcks(t *testing.T) {
	locks := newFakeLocker()
	applier := &fakeApplier{}
	c := NewInventoryConsumer(applier, locks, time.Second)
	ack := &fakeAcker{}

	c.handleDelivery(context.Background(), orderPlacedBody(t, models.OrderPlacedEvent{OrderID: 1, ProductID: 42, Quantity: 3}), ack)

	require.Len(t, applier.events, 1)
	assert.Equal(t, int64(42), applier.events[0].ProductID)
	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Equal(t, []string{"order-1"}, locks.acquired)
	assert.Equal(t, []string{"order-1"}, locks.released, "lock must be released after processing")
}

func TestHandleDeliveryLockDeniedRequeues(t *testing.T) {
	locks := newFakeLocker()
	locks.held["order-1"] = true // another consumer is processing order 1
	applier := &fakeApplier{}
	c := NewInventoryConsumer(applier, locks, time.Second)
	ack := &fakeAcker{}

	c.handleDelivery(context.Background(), orderPlacedBody(t, models.OrderPlacedEvent{OrderID: 1, ProductID: 42, Quantity: 3}), ack)

	assert.Empty(t, applier.events, "effect must not run without the lock")
	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
	assert.Empty(t, locks.released, "a denied lock must not be released")
}

func TestHandleDeliveryProcessingFailureRequeuesAndReleases(t *testing.T) {
	locks := newFakeLocker()
	applier := &fakeApplier{err: errors.New("insufficient stock for product 42 in order 2")}
	c := NewInventoryConsumer(applier, locks, time.Second)
	ack := &fakeAcker{}

	c.handleDelivery(context.Background(), orderPlacedBody(t, models.OrderPlacedEvent{OrderID: 2, ProductID: 42, Quantity: 100}), ack)

	assert.False(t, ack.acked)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
	assert.Equal(t, []string{"order-2"}, locks.released, "lock must be released on failure too")
}

func TestHandleDeliveryLockStoreErrorFailsClosed(t *testing.T) {
	locks := newFakeLocker()
	locks.grantErr = errors.New("connection refused")
	applier := &fakeApplier{}
	c := NewInventoryConsumer(applier, locks, time.Second)
	ack := &fakeAcker{}

	c.handleDelivery(context.Background(), orderPlacedBody(t, models.OrderPlacedEvent{OrderID: 1, ProductID: 42, Quantity: 1}), ack)

	assert.Empty(t, applier.events)
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestHandleDeliveryMalformedPayloadDropsWithoutRequeue(t *testing.T) {
	locks := newFakeLocker()
	applier := &fakeApplier{}
	c := NewInventoryConsumer(applier, locks, time.Second)
	ack := &fakeAcker{}

	c.handleDelivery(context.Background(), []byte("not json"), ack)

	assert.Empty(t, applier.events)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue, "malformed messages must not loop forever")
	assert.Empty(t, locks.acquired)
}

func TestConcurrentDeliveriesOfSameOrderOnlyOneProceeds(t *testing.T) {
	locks := newFakeLocker()
	applier := &fakeApplier{}
	c := NewInventoryConsumer(applier, locks, 0) // no waiting: contention shows immediately
	body := orderPlacedBody(t, models.OrderPlacedEvent{OrderID: 1, ProductID: 42, Quantity: 3})

	acks := []*fakeAcker{{}, {}}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(ack *fakeAcker) {
			defer wg.Done()
			c.handleDelivery(context.Background(), body, ack)
		}(acks[i])
	}
	wg.Wait()

	ackCount, requeueCount := 0, 0
	for _, ack := range acks {
		if ack.acked {
			ackCount++
		}
		if ack.nacked && ack.requeue {
			requeueCount++
		}
	}

	// Either both serialized (two acks, zero requeues) or they truly
	// raced and exactly one was denied; never two concurrent effects.
	assert.Equal(t, 1, applier.maxInFlight, "lock must serialize effect application")
	assert.Equal(t, 2, ackCount+requeueCount)
	assert.GreaterOrEqual(t, ackCount, 1)
}
