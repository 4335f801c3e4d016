package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryUsage reports whether a product has reserved or sold stock in any
// sales slot. Implemented by the inventory repository.
type InventoryUsage interface {
	HasActiveStock(ctx context.Context, productID string) (bool, error)
}

// Service covers catalog management. Price changes never rewrite historical
// orders: order items carry the price captured at reservation time.
type Service struct {
	products Repository
	usage    InventoryUsage
	now      func() time.Time
}

// NewService creates a catalog Service.
func NewService(products Repository, usage InventoryUsage) *Service {
	return &Service{products: products, usage: usage, now: time.Now}
}

// Create adds a product to the catalog.
func (s *Service) Create(ctx context.Context, name string, price decimal.Decimal) (*Product, error) {
	now := s.now()
	p := &Product{
		ID:        uuid.New().String(),
		Name:      name,
		Price:     price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	return p, nil
}

// Update changes a product's name and price.
func (s *Service) Update(ctx context.Context, id, name string, price decimal.Decimal) (*Product, error) {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = name
	p.Price = price
	p.UpdatedAt = s.now()
	if err := s.products.Update(ctx, p); err != nil {
		return nil, errors.Wrap(err, "update product")
	}
	return p, nil
}

// Delete removes a product. It fails while any slot inventory for the
// product has reserved or sold units.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.products.GetByID(ctx, id); err != nil {
		return err
	}
	active, err := s.usage.HasActiveStock(ctx, id)
	if err != nil {
		return errors.Wrap(err, "check inventory usage")
	}
	if active {
		return ErrActiveInventory
	}
	return s.products.Delete(ctx, id)
}

// GetByID returns a product by its identifier.
func (s *Service) GetByID(ctx context.Context, id string) (*Product, error) {
	return s.products.GetByID(ctx, id)
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.products.List(ctx)
}

// SearchByName returns products whose name contains the query.
func (s *Service) SearchByName(ctx context.Context, query string) ([]Product, error) {
	return s.products.SearchByName(ctx, query)
}
