package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kamruddin/modulith-go/internal/models"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(database *PostgresDB) *OrderRepository {
	return &OrderRepository{db: database.Conn}
}

// Begin starts a transaction so callers can group the order insert with
// the event publication staging.
func (r *OrderRepository) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// CreateTx inserts the order inside the caller's transaction and fills in
// the generated id and order date.
func (r *OrderRepository) CreateTx(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	query := `
		INSERT INTO orders (product_id, quantity, status)
		VALUES ($1, $2, $3)
		RETURNING id, order_date
	`
	err := tx.QueryRowContext(ctx, query, order.ProductID, order.Quantity, order.Status).
		Scan(&order.ID, &order.OrderDate)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// GetAll returns all orders, newest first.
func (r *OrderRepository) GetAll(ctx context.Context) ([]models.Order, error) {
	query := `SELECT id, product_id, quantity, status, order_date FROM orders ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var o models.Order
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Quantity, &o.Status, &o.OrderDate); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}

	return orders, rows.Err()
}

// GetByID returns a single order, or nil when not found.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	query := `SELECT id, product_id, quantity, status, order_date FROM orders WHERE id = $1`

	var o models.Order
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&o.ID, &o.ProductID, &o.Quantity, &o.Status, &o.OrderDate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return &o, nil
}
