// Package inventory owns the three-counter stock accounting for a
// (product, sales slot) pair. A unit of stock moves available → reserved →
// sold; the counters must satisfy 0 ≤ reserved, 0 ≤ sold and
// reserved + sold ≤ initial at all times.
package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no inventory row exists for a
// (product, sales slot) pair.
var ErrNotFound = errors.New("inventory not found")

// ErrNegativeQuantity is returned by SetInitial for a negative target level.
var ErrNegativeQuantity = errors.New("quantity must not be negative")

// ErrLevelTooLow is returned by SetInitial when the new initial level is
// below the row's committed (reserved plus sold) units.
var ErrLevelTooLow = errors.New("initial level below reserved plus sold units")

// InsufficientStockError indicates a reservation asked for more units than
// are currently available in the row.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidQuantityError indicates a release or conversion would drive the
// reserved counter negative.
type InvalidQuantityError struct {
	ProductID string
	Requested int
	Reserved  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity for product %s: requested %d, reserved %d",
		e.ProductID, e.Requested, e.Reserved)
}

// Row is the inventory record for one (product, sales slot) pair.
type Row struct {
	ProductID string
	SlotID    string
	Initial   int
	Reserved  int
	Sold      int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available returns the number of units that can still be reserved.
func (r *Row) Available() int {
	return r.Initial - r.Reserved - r.Sold
}

// Reserve moves qty units from available to reserved.
func (r *Row) Reserve(qty int) error {
	if qty > r.Available() {
		return &InsufficientStockError{ProductID: r.ProductID, Requested: qty, Available: r.Available()}
	}
	r.Reserved += qty
	return nil
}

// Release returns qty reserved units back to available.
func (r *Row) Release(qty int) error {
	if qty > r.Reserved {
		return &InvalidQuantityError{ProductID: r.ProductID, Requested: qty, Reserved: r.Reserved}
	}
	r.Reserved -= qty
	return nil
}

// ConvertToSold moves qty units from reserved to sold.
func (r *Row) ConvertToSold(qty int) error {
	if qty > r.Reserved {
		return &InvalidQuantityError{ProductID: r.ProductID, Requested: qty, Reserved: r.Reserved}
	}
	r.Reserved -= qty
	r.Sold += qty
	return nil
}

// ItemQty names a per-product quantity inside a batch operation.
type ItemQty struct {
	ProductID string
	Qty       int
}

// Repository defines persistence operations for inventory rows.
//
// Single-row operations must be atomic with respect to concurrent operations
// on the same row. Batch operations span all rows of one slot named by the
// items and must be all-or-nothing: either every row is updated or none is,
// with rows locked in a deterministic order to avoid deadlock. The row
// arithmetic mirrors the Row methods above; implementations return the same
// typed errors on guard failures.
type Repository interface {
	Get(ctx context.Context, productID, slotID string) (*Row, error)
	BySlot(ctx context.Context, slotID string) ([]Row, error)
	ByProduct(ctx context.Context, productID string) ([]Row, error)

	// SetInitial creates the row with reserved=0, sold=0 when absent,
	// otherwise overwrites only the initial counter.
	SetInitial(ctx context.Context, productID, slotID string, qty int) (*Row, error)

	Reserve(ctx context.Context, productID, slotID string, qty int) error
	Release(ctx context.Context, productID, slotID string, qty int) error
	ConvertToSold(ctx context.Context, productID, slotID string, qty int) error

	ReserveItems(ctx context.Context, slotID string, items []ItemQty) error
	ReleaseItems(ctx context.Context, slotID string, items []ItemQty) error
	ConvertItems(ctx context.Context, slotID string, items []ItemQty) error
	// UnconvertItems moves sold units back to reserved, compensating a
	// conversion whose follow-up work failed.
	UnconvertItems(ctx context.Context, slotID string, items []ItemQty) error
}
