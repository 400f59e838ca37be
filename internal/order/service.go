// Package order is the order business module. Placing an order and
// staging its event publications happen in one transaction; listener
// delivery runs after commit so rolled-back orders never produce events.
package order

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kamruddin/modulith-go/internal/db"
	"github.com/kamruddin/modulith-go/internal/events"
	"github.com/kamruddin/modulith-go/internal/models"
)

type Service struct {
	repo       *db.OrderRepository
	dispatcher *events.Dispatcher
}

func NewService(repo *db.OrderRepository, dispatcher *events.Dispatcher) *Service {
	return &Service{
		repo:       repo,
		dispatcher: dispatcher,
	}
}

func (s *Service) FindAll(ctx context.Context) ([]models.Order, error) {
	return s.repo.GetAll(ctx)
}

func (s *Service) FindByID(ctx context.Context, id int64) (*models.Order, error) {
	return s.repo.GetByID(ctx, id)
}

// PlaceOrder inserts the order and the event publication ledger rows in
// one transaction, then delivers the event to the registered listeners.
func (s *Service) PlaceOrder(ctx context.Context, productID int64, quantity int) (*models.Order, error) {
	if quantity <= 0 {
		return nil, errors.New("quantity must be a positive value")
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order := &models.Order{
		ProductID: productID,
		Quantity:  quantity,
		Status:    models.OrderStatusPlaced,
	}
	if err := s.repo.CreateTx(ctx, tx, order); err != nil {
		return nil, err
	}

	event := models.OrderPlacedEvent{
		ProductID: order.ProductID,
		Quantity:  order.Quantity,
		OrderID:   order.ID,
	}
	staged, err := s.dispatcher.Stage(ctx, tx, models.OrderPlacedEventType, event)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	log.Printf("✅ Order %d placed for product %d (quantity %d)", order.ID, order.ProductID, order.Quantity)
	s.dispatcher.Deliver(ctx, staged)

	return order, nil
}
