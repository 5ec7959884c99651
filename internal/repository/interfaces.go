package repository

import (
	"context"
	"errors"

	"github.com/wangfeng/cherrycake-gateway/pkg/models"
)

var (
	// ErrNotFound is returned when a product does not exist
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSlug is returned when a slug is already taken
	ErrDuplicateSlug = errors.New("slug already exists")
)

// ProductRepository defines the interface for product operations
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	List(ctx context.Context, offset, limit int) ([]models.Product, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, id string) error
}
