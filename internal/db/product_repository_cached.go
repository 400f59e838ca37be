package db

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/kamruddin/modulith-go/internal/cache"
	"github.com/kamruddin/modulith-go/internal/models"
)

// CachedProductRepository wraps ProductRepository with a Redis read cache.
// Writes go straight to the database and invalidate the affected keys, so
// a stock decrement is immediately visible to subsequent reads.
type CachedProductRepository struct {
	repo  *ProductRepository
	cache *cache.RedisCache
}

func NewCachedProductRepository(repo *ProductRepository, cache *cache.RedisCache) *CachedProductRepository {
	return &CachedProductRepository{
		repo:  repo,
		cache: cache,
	}
}

func productKey(id int64) string {
	return fmt.Sprintf("product:%d", id)
}

func allProductsKey() string {
	return "products:all"
}

// GetAll returns all products (with caching)
func (r *CachedProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	if err := r.cache.Get(ctx, allProductsKey(), &products); err == nil {
		return products, nil
	}

	products, err := r.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, allProductsKey(), products); err != nil {
		log.Printf("⚠️ Failed to cache products: %v", err)
	}

	return products, nil
}

// GetByID returns a single product (with caching)
func (r *CachedProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.cache.Get(ctx, productKey(id), &product)
	if err == nil {
		return &product, nil
	}
	if err != redis.Nil {
		log.Printf("⚠️ Cache error: %v", err)
	}

	p, err := r.repo.GetByID(ctx, id)
	if err != nil || p == nil {
		return p, err
	}

	if err := r.cache.Set(ctx, productKey(id), p); err != nil {
		log.Printf("⚠️ Failed to cache product: %v", err)
	}

	return p, nil
}

// Create inserts a new product and invalidates the list cache.
func (r *CachedProductRepository) Create(ctx context.Context, product *models.Product) error {
	if err := r.repo.Create(ctx, product); err != nil {
		return err
	}

	if err := r.cache.Delete(ctx, allProductsKey()); err != nil {
		log.Printf("⚠️ Failed to invalidate cache: %v", err)
	}

	return nil
}

// DecrementStock applies the conditional stock update and invalidates the
// product's cache entries.
func (r *CachedProductRepository) DecrementStock(ctx context.Context, id int64, quantity int) (bool, error) {
	ok, err := r.repo.DecrementStock(ctx, id, quantity)
	if err != nil {
		return false, err
	}

	if ok {
		if err := r.cache.Delete(ctx, productKey(id), allProductsKey()); err != nil {
			log.Printf("⚠️ Failed to invalidate cache for product %d: %v", id, err)
		}
	}

	return ok, nil
}
