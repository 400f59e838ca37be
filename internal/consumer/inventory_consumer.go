// Package consumer pulls externalized order events off the broker and
// applies the stock effect exactly once per concurrent delivery, guarded
// by the per-order distributed lock.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/kamruddin/modulith-go/internal/models"
)

// Locker is the distributed lock surface the consumer needs.
type Locker interface {
	TryAcquire(ctx context.Context, key string, timeout time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// StockApplier applies the order-placed stock effect.
type StockApplier interface {
	ApplyOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error
}

// Acker is the manual acknowledgement part of an AMQP delivery.
type Acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type InventoryConsumer struct {
	inventory StockApplier
	locks     Locker
	lockWait  time.Duration
}

func NewInventoryConsumer(inventory StockApplier, locks Locker, lockWait time.Duration) *InventoryConsumer {
	return &InventoryConsumer{
		inventory: inventory,
		locks:     locks,
		lockWait:  lockWait,
	}
}

// Run processes deliveries with a bounded worker pool until ctx is
// cancelled or the delivery channel closes.
func (c *InventoryConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery, workers int) {
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					c.handleDelivery(ctx, msg.Body, msg)
				}
			}
		}()
	}
	wg.Wait()
}

// handleDelivery walks one message through
// received → lock-attempted → {locked-processing, lock-denied} → {acked, nacked-requeue}.
func (c *InventoryConsumer) handleDelivery(ctx context.Context, body []byte, ack Acker) {
	var event models.OrderPlacedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("❌ Failed to parse order placed event: %v", err)
		ack.Nack(false, false) // malformed, redelivery cannot help
		return
	}

	lockKey := LockKey(event.OrderID)

	acquired, err := c.locks.TryAcquire(ctx, lockKey, c.lockWait)
	if err != nil {
		// Lock store unreachable: fail closed, let the broker retry.
		log.Printf("❌ Lock acquisition failed for order %d: %v", event.OrderID, err)
		ack.Nack(false, true)
		return
	}
	if !acquired {
		// Expected under contention, another delivery holds the order.
		log.Printf("⚠️ Could not acquire lock for order %d, message will be requeued", event.OrderID)
		ack.Nack(false, true)
		return
	}

	defer func() {
		// Release must survive shutdown cancellation mid-processing.
		if err := c.locks.Release(context.WithoutCancel(ctx), lockKey); err != nil {
			log.Printf("⚠️ Failed to release lock for order %d: %v", event.OrderID, err)
		}
	}()

	if err := c.inventory.ApplyOrderPlaced(ctx, event); err != nil {
		log.Printf("❌ Failed to process order %d (product %d): %v", event.OrderID, event.ProductID, err)
		ack.Nack(false, true)
		return
	}

	if err := ack.Ack(false); err != nil {
		log.Printf("⚠️ Failed to ack order %d: %v", event.OrderID, err)
		return
	}
	log.Printf("✅ Order %d processed", event.OrderID)
}

// LockKey derives the distributed lock key for an order.
func LockKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}
