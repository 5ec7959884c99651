package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/wangfeng/cherrycake-gateway/pkg/models"
)

const uniqueViolation = "23505"

// PgProductRepository is a PostgreSQL implementation of ProductRepository
type PgProductRepository struct {
	db *sql.DB
}

// NewPgProductRepository creates a new PostgreSQL-based product repository
func NewPgProductRepository(db *sql.DB) *PgProductRepository {
	return &PgProductRepository{
		db: db,
	}
}

// Initialize creates the necessary tables if they don't exist
func (r *PgProductRepository) Initialize(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			description TEXT,
			price_cents BIGINT NOT NULL DEFAULT 0,
			attributes JSONB,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	var description sql.NullString
	var attributesJSON []byte

	err := row.Scan(
		&p.ID,
		&p.Slug,
		&p.Name,
		&description,
		&p.PriceCents,
		&attributesJSON,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Description = description.String

	if len(attributesJSON) > 0 {
		if err := json.Unmarshal(attributesJSON, &p.Attributes); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

const selectProduct = `
	SELECT id, slug, name, description, price_cents, attributes, created_at, updated_at
	FROM products
`

// GetByID returns a specific product by ID
func (r *PgProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, selectProduct+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// GetBySlug returns a specific product by slug
func (r *PgProductRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx, selectProduct+` WHERE slug = $1`, slug))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// List returns products ordered by creation time, then slug
func (r *PgProductRepository) List(ctx context.Context, offset, limit int) ([]models.Product, error) {
	if offset < 0 {
		offset = 0
	}
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := r.db.QueryContext(ctx, selectProduct+`
		ORDER BY created_at, slug
		LIMIT $1 OFFSET $2
	`, limitArg, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// Count returns the number of stored products
func (r *PgProductRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

// Create creates a new product
func (r *PgProductRepository) Create(ctx context.Context, product *models.Product) error {
	product.ID = uuid.New().String()
	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now

	var attributesJSON []byte
	if product.Attributes != nil {
		var err error
		attributesJSON, err = json.Marshal(product.Attributes)
		if err != nil {
			return err
		}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (
			id, slug, name, description, price_cents, attributes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		product.ID,
		product.Slug,
		product.Name,
		product.Description,
		product.PriceCents,
		attributesJSON,
		product.CreatedAt,
		product.UpdatedAt,
	)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateSlug
	}
	return err
}

// Delete deletes a product by ID
func (r *PgProductRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM products WHERE id = $1
	`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
