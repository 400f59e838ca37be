package events

import (
	"context"
	"log"
	"time"

	"github.com/kamruddin/modulith-go/internal/models"
)

// PublicationLedger is the ledger surface the resubmission operations
// read from.
type PublicationLedger interface {
	Ledger
	IsComplete(ctx context.Context, id string) (bool, error)
	FindIncomplete(ctx context.Context) ([]models.Publication, error)
	FindIncompleteOlderThan(ctx context.Context, age time.Duration) ([]models.Publication, error)
}

// PublicationService exposes the operator-facing resubmission operations.
// Resubmitting re-invokes the originally recorded listener with the stored
// payload; a publication whose listener succeeded but was never marked
// complete will therefore be applied again.
type PublicationService struct {
	ledger   PublicationLedger
	registry *Dispatcher
}

func NewPublicationService(ledger PublicationLedger, registry *Dispatcher) *PublicationService {
	return &PublicationService{
		ledger:   ledger,
		registry: registry,
	}
}

// ResubmitAllIncomplete resubmits every publication lacking a completion
// timestamp and returns how many listener invocations succeeded.
func (s *PublicationService) ResubmitAllIncomplete(ctx context.Context) (int, error) {
	log.Println("Resubmitting all incomplete event publications")

	pubs, err := s.ledger.FindIncomplete(ctx)
	if err != nil {
		return 0, err
	}
	return s.resubmit(ctx, pubs, nil), nil
}

// ResubmitFailed resubmits only publications whose completion status
// cannot be determined as successful. A publication that completed since
// the scan is skipped; a status lookup error counts as failed, biasing
// toward resubmission over silent loss.
func (s *PublicationService) ResubmitFailed(ctx context.Context) (int, error) {
	log.Println("Resubmitting failed event publications")

	pubs, err := s.ledger.FindIncomplete(ctx)
	if err != nil {
		return 0, err
	}

	failed := func(p models.Publication) bool {
		complete, err := s.ledger.IsComplete(ctx, p.ID)
		if err != nil {
			return true
		}
		return !complete
	}
	return s.resubmit(ctx, pubs, failed), nil
}

// ResubmitOlderThan resubmits publications that have been incomplete for
// longer than age, leaving younger ones to their in-flight delivery.
func (s *PublicationService) ResubmitOlderThan(ctx context.Context, age time.Duration) (int, error) {
	log.Printf("Resubmitting incomplete event publications older than %s", age)

	pubs, err := s.ledger.FindIncompleteOlderThan(ctx, age)
	if err != nil {
		return 0, err
	}
	return s.resubmit(ctx, pubs, nil), nil
}

func (s *PublicationService) resubmit(ctx context.Context, pubs []models.Publication, keep func(models.Publication) bool) int {
	resubmitted := 0
	for _, pub := range pubs {
		if keep != nil && !keep(pub) {
			continue
		}

		listener, ok := s.registry.Listener(pub.ListenerID)
		if !ok {
			log.Printf("❌ No listener registered for id %s, publication %s left incomplete", pub.ListenerID, pub.ID)
			continue
		}

		if err := listener.Handle(ctx, pub.Payload); err != nil {
			log.Printf("❌ Resubmission of publication %s to %s failed: %v", pub.ID, pub.ListenerID, err)
			continue
		}

		if err := s.ledger.MarkComplete(ctx, pub.ID); err != nil {
			log.Printf("⚠️ Failed to mark resubmitted publication %s complete: %v", pub.ID, err)
			continue
		}
		resubmitted++
	}
	return resubmitted
}
