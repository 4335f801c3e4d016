package inventory

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/timeseats/internal/domain/product"
)

// Ledger is the operator-facing service for stock levels. Reservation-time
// mutations go through the order lifecycle; the ledger covers setting initial
// levels and reading rows.
type Ledger struct {
	rows     Repository
	products product.Repository
}

// NewLedger creates a Ledger with the required dependencies.
func NewLedger(rows Repository, products product.Repository) *Ledger {
	return &Ledger{rows: rows, products: products}
}

// SetInitial sets the initial stock level for a product in a slot, creating
// the row lazily. Reserved and sold counts on an existing row are preserved.
func (l *Ledger) SetInitial(ctx context.Context, productID, slotID string, qty int) (*Row, error) {
	if qty < 0 {
		return nil, ErrNegativeQuantity
	}
	if _, err := l.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get product %s", productID)
	}
	return l.rows.SetInitial(ctx, productID, slotID, qty)
}

// Row returns the inventory row for a (product, slot) pair.
func (l *Ledger) Row(ctx context.Context, productID, slotID string) (*Row, error) {
	return l.rows.Get(ctx, productID, slotID)
}

// BySlot returns all inventory rows under a slot.
func (l *Ledger) BySlot(ctx context.Context, slotID string) ([]Row, error) {
	return l.rows.BySlot(ctx, slotID)
}

// ByProduct returns all inventory rows for a product across slots.
func (l *Ledger) ByProduct(ctx context.Context, productID string) ([]Row, error) {
	return l.rows.ByProduct(ctx, productID)
}
