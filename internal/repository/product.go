package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/timeseats/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, name, price, created_at, updated_at
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, created_at, updated_at
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, price, created_at, updated_at
		FROM products WHERE id = ANY($1)`

	searchProductsSQL = `SELECT id, name, price, created_at, updated_at
		FROM products WHERE name ILIKE '%' || $1 || '%' ORDER BY name`

	createProductSQL = `INSERT INTO products (id, name, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`

	updateProductSQL = `UPDATE products SET name = $2, price = $3, updated_at = $4
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// SearchByName returns products whose name contains the query,
// case-insensitively.
func (r *ProductRepository) SearchByName(ctx context.Context, query string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, searchProductsSQL, query)
	if err != nil {
		return nil, fmt.Errorf("searching products %q: %w", query, err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create persists a new product.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	_, err := r.pool.Exec(ctx, createProductSQL,
		p.ID, p.Name, p.Price, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update rewrites a product's name and price.
func (r *ProductRepository) Update(ctx context.Context, p *product.Product) error {
	ct, err := r.pool.Exec(ctx, updateProductSQL, p.ID, p.Name, p.Price, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
