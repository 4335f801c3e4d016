// Package order drives the reservation lifecycle: stock is held while an
// order sits in RESERVED, then either converted to sold on confirmation or
// released on cancellation.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. CONFIRMED and CANCELED are
// terminal.
type Status string

const (
	StatusReserved  Status = "RESERVED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCanceled  Status = "CANCELED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusReserved, StatusConfirmed, StatusCanceled:
		return true
	}
	return false
}

// Sentinel errors for order operations.
var (
	ErrNotFound   = errors.New("order not found")
	ErrEmptyOrder = errors.New("order must contain at least one item")
	// ErrStatusConflict is returned by repositories when a compare-and-set
	// status update matches no row: the order was not in the expected state.
	ErrStatusConflict = errors.New("order status conflict")
)

// InvalidStateError indicates a transition was attempted from a state that
// does not allow it.
type InvalidStateError struct {
	OrderID string
	Status  Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("order %s is in state %s, expected %s", e.OrderID, e.Status, StatusReserved)
}

// OrderItem is one line of an order. Price is the unit price captured at
// reservation time.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Order is a customer order against a sales slot. Items and total are fixed
// at creation; only the status changes afterwards.
type Order struct {
	ID          string
	SlotID      string
	Items       []OrderItem
	Status      Status
	TotalAmount decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context) ([]Order, error)
	ListByStatus(ctx context.Context, status Status) ([]Order, error)
	ListBySlot(ctx context.Context, slotID string) ([]Order, error)
	// UpdateStatus transitions an order from one status to another as a
	// compare-and-set: it fails with ErrStatusConflict when the stored
	// status no longer matches from, so racing transitions cannot both win.
	UpdateStatus(ctx context.Context, id string, from, to Status) error
}
