package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/timeseats/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, sales_slot_id, items, status, total_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getOrderSQL = `SELECT id, sales_slot_id, items, status, total_amount, created_at, updated_at
		FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT id, sales_slot_id, items, status, total_amount, created_at, updated_at
		FROM orders ORDER BY created_at DESC`

	listOrdersByStatusSQL = `SELECT id, sales_slot_id, items, status, total_amount, created_at, updated_at
		FROM orders WHERE status = $1 ORDER BY created_at DESC`

	listOrdersBySlotSQL = `SELECT id, sales_slot_id, items, status, total_amount, created_at, updated_at
		FROM orders WHERE sales_slot_id = $1 ORDER BY created_at DESC`

	// Compare-and-set: matches only while the stored status equals from.
	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Order
// items are serialized to JSON for storage in the JSONB column.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order with its item list.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.SlotID, itemsJSON, o.Status, o.TotalAmount, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// List returns all orders, newest first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListByStatus returns orders in the given state, newest first.
func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByStatusSQL, status)
	if err != nil {
		return nil, fmt.Errorf("listing orders by status %q: %w", status, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListBySlot returns orders placed against a slot, newest first.
func (r *OrderRepository) ListBySlot(ctx context.Context, slotID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersBySlotSQL, slotID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for slot %q: %w", slotID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus transitions the order atomically from one status to another.
// It returns order.ErrStatusConflict when the stored status no longer
// matches from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status) error {
	ct, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, from, to)
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		// Either the order is gone or it left the expected state.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return order.ErrStatusConflict
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
	)
	if err := row.Scan(&o.ID, &o.SlotID, &itemsJSON, &o.Status, &o.TotalAmount, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of order %q: %w", o.ID, err)
	}
	return o, nil
}
