package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wangfeng/cherrycake-gateway/pkg/models"
)

// InMemoryProductRepository implements ProductRepository using an in-memory store
type InMemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*models.Product
	bySlug   map[string]string
	now      func() time.Time
}

// NewInMemoryProductRepository creates a new in-memory product repository
func NewInMemoryProductRepository() *InMemoryProductRepository {
	return &InMemoryProductRepository{
		products: make(map[string]*models.Product),
		bySlug:   make(map[string]string),
		now:      time.Now,
	}
}

// Create adds a new product to the repository
func (r *InMemoryProductRepository) Create(ctx context.Context, product *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.bySlug[product.Slug]; taken {
		return ErrDuplicateSlug
	}

	product.ID = uuid.New().String()
	product.CreatedAt = r.now()
	product.UpdatedAt = product.CreatedAt

	r.products[product.ID] = product.Clone()
	r.bySlug[product.Slug] = product.ID

	return nil
}

// GetByID retrieves a product by ID
func (r *InMemoryProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, ErrNotFound
	}

	return product.Clone(), nil
}

// GetBySlug retrieves a product by slug
func (r *InMemoryProductRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySlug[slug]
	if !ok {
		return nil, ErrNotFound
	}

	return r.products[id].Clone(), nil
}

// List retrieves products ordered by creation time, then slug
func (r *InMemoryProductRepository) List(ctx context.Context, offset, limit int) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*models.Product, 0, len(r.products))
	for _, p := range r.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].Slug < all[j].Slug
	})

	if offset < 0 {
		offset = 0
	}
	if offset >= len(all) {
		return []models.Product{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	products := make([]models.Product, 0, end-offset)
	for _, p := range all[offset:end] {
		products = append(products, *p.Clone())
	}
	return products, nil
}

// Count returns the number of stored products
func (r *InMemoryProductRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.products), nil
}

// Delete removes a product
func (r *InMemoryProductRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[id]
	if !ok {
		return ErrNotFound
	}

	delete(r.bySlug, product.Slug)
	delete(r.products, id)

	return nil
}
