package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kamruddin/modulith-go/internal/models"
)

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(database *PostgresDB) *ProductRepository {
	return &ProductRepository{db: database.Conn}
}

// GetAll returns all products
func (r *ProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	query := `SELECT id, name, description, price, stock_quantity, created_at FROM products ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

// GetByID returns a single product, or nil when not found.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	query := `SELECT id, name, description, price, stock_quantity, created_at FROM products WHERE id = $1`

	var p models.Product
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.StockQuantity, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &p, nil
}

// Create inserts a new product
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, description, price, stock_quantity)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, product.Name, product.Description, product.Price, product.StockQuantity).
		Scan(&product.ID, &product.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// DecrementStock atomically subtracts quantity from the product's stock.
// The WHERE guard keeps stock_quantity from ever going negative; zero rows
// affected means either insufficient stock or an unknown product, and the
// caller decides which by looking the product up.
func (r *ProductRepository) DecrementStock(ctx context.Context, id int64, quantity int) (bool, error) {
	query := `
		UPDATE products
		SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2
	`
	result, err := r.db.ExecContext(ctx, query, id, quantity)
	if err != nil {
		return false, fmt.Errorf("failed to update stock: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}
