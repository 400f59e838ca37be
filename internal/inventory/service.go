// Package inventory is the inventory business module: product catalog
// reads/writes and the order-placed stock effect.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/kamruddin/modulith-go/internal/models"
)

// OrderPlacedListenerID names the in-process stock effect listener in the
// publication ledger.
const OrderPlacedListenerID = "inventory.HandleOrderPlaced"

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductNotFound   = errors.New("product not found")
)

// ProductStore is the persistence surface the module needs; satisfied by
// both the plain and the Redis-cached product repository.
type ProductStore interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	Create(ctx context.Context, product *models.Product) error
	DecrementStock(ctx context.Context, id int64, quantity int) (bool, error)
}

type Service struct {
	products ProductStore
}

func NewService(products ProductStore) *Service {
	return &Service{products: products}
}

func (s *Service) FindAll(ctx context.Context) ([]models.Product, error) {
	return s.products.GetAll(ctx)
}

func (s *Service) FindByID(ctx context.Context, id int64) (*models.Product, error) {
	return s.products.GetByID(ctx, id)
}

// AddProduct validates and persists a new product.
func (s *Service) AddProduct(ctx context.Context, product *models.Product) error {
	if product.Name == "" {
		return errors.New("product name cannot be blank")
	}
	if product.Price <= 0 {
		return errors.New("price must be greater than 0")
	}
	if product.StockQuantity < 0 {
		return errors.New("stock quantity cannot be negative")
	}
	return s.products.Create(ctx, product)
}

// ApplyOrderPlaced applies the stock decrement for one order-placed
// event. The decrement is a single conditional update, so stock never
// goes negative; an order larger than the remaining stock is surfaced as
// ErrInsufficientStock and leaves stock untouched.
//
// The effect is not idempotent: applying the same event twice subtracts
// twice. The per-order lock shields against concurrent reprocessing only.
func (s *Service) ApplyOrderPlaced(ctx context.Context, event models.OrderPlacedEvent) error {
	log.Printf("📦 Processing inventory update - order: %d, product: %d, quantity: %d",
		event.OrderID, event.ProductID, event.Quantity)

	ok, err := s.products.DecrementStock(ctx, event.ProductID, event.Quantity)
	if err != nil {
		return err
	}
	if !ok {
		product, lookupErr := s.products.GetByID(ctx, event.ProductID)
		if lookupErr == nil && product == nil {
			return fmt.Errorf("%w: product %d in order %d", ErrProductNotFound, event.ProductID, event.OrderID)
		}
		return fmt.Errorf("%w for product %d in order %d", ErrInsufficientStock, event.ProductID, event.OrderID)
	}

	log.Printf("✅ Updated stock for order %d", event.OrderID)
	return nil
}

// HandleOrderPlaced is the in-process listener form of the stock effect,
// invoked by the dispatcher and by ledger resubmission with the stored
// payload.
func (s *Service) HandleOrderPlaced(ctx context.Context, payload []byte) error {
	var event models.OrderPlacedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("failed to parse order placed event: %w", err)
	}
	return s.ApplyOrderPlaced(ctx, event)
}
