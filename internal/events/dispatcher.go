// Package events implements the application event protocol: an explicit
// listener registry, ledger-backed two-phase publication, and the
// administrative resubmission operations.
//
// Publishing is split so events for rolled-back business writes are never
// delivered: Stage records one ledger row per registered listener inside
// the caller's transaction, Deliver invokes the listeners after that
// transaction commits and marks each successful invocation complete. A
// crash between an effect and its completion mark leaves the row
// incomplete; resubmission will then re-invoke the listener, which can
// double-apply a non-idempotent effect. That window is accepted and left
// to operational reconciliation.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kamruddin/modulith-go/internal/models"
)

// Listener is a named handler for one event type. The ID is stored in the
// ledger so resubmission can find the handler again; it must stay stable
// across releases.
type Listener struct {
	ID     string
	Handle func(ctx context.Context, payload []byte) error
}

// Ledger is the slice of the publication store the dispatcher needs.
type Ledger interface {
	Record(ctx context.Context, tx *sql.Tx, pub models.Publication) error
	MarkComplete(ctx context.Context, id string) error
}

// StagedDelivery is a recorded publication waiting for its post-commit
// listener invocation.
type StagedDelivery struct {
	Publication models.Publication
	listener    Listener
}

// Dispatcher routes events to listeners registered per event type.
// Registration happens once at startup; the registry is read-only after
// that and therefore safe for concurrent dispatch.
type Dispatcher struct {
	ledger    Ledger
	listeners map[string][]Listener
	byID      map[string]Listener
}

func NewDispatcher(ledger Ledger) *Dispatcher {
	return &Dispatcher{
		ledger:    ledger,
		listeners: make(map[string][]Listener),
		byID:      make(map[string]Listener),
	}
}

// Register appends a listener to the event type's invocation order.
func (d *Dispatcher) Register(eventType string, l Listener) {
	d.listeners[eventType] = append(d.listeners[eventType], l)
	d.byID[l.ID] = l
}

// Listener looks a handler up by its stable id.
func (d *Dispatcher) Listener(id string) (Listener, bool) {
	l, ok := d.byID[id]
	return l, ok
}

// Stage serializes the event and records one ledger row per registered
// listener inside tx. The rows commit atomically with the business write;
// nothing is invoked yet.
func (d *Dispatcher) Stage(ctx context.Context, tx *sql.Tx, eventType string, event interface{}) ([]StagedDelivery, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	var staged []StagedDelivery
	for _, l := range d.listeners[eventType] {
		pub := models.Publication{
			ID:         uuid.NewString(),
			EventType:  eventType,
			ListenerID: l.ID,
			Payload:    payload,
			CreatedAt:  time.Now(),
		}
		if err := d.ledger.Record(ctx, tx, pub); err != nil {
			return nil, err
		}
		staged = append(staged, StagedDelivery{Publication: pub, listener: l})
	}

	return staged, nil
}

// Deliver invokes each staged listener and marks its publication complete
// on success. A failing listener is logged and its row stays incomplete
// for the resubmission service; it does not stop the remaining listeners.
func (d *Dispatcher) Deliver(ctx context.Context, staged []StagedDelivery) {
	for _, s := range staged {
		if err := s.listener.Handle(ctx, s.Publication.Payload); err != nil {
			log.Printf("❌ Listener %s failed for publication %s: %v", s.listener.ID, s.Publication.ID, err)
			continue
		}
		if err := d.ledger.MarkComplete(ctx, s.Publication.ID); err != nil {
			// The effect ran but the ledger still shows incomplete, so a
			// later resubmission may re-apply it.
			log.Printf("⚠️ Failed to mark publication %s complete: %v", s.Publication.ID, err)
		}
	}
}
