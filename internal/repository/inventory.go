package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/timeseats/internal/domain/inventory"
)

const (
	getInventorySQL = `SELECT product_id, sales_slot_id, initial_quantity, reserved_quantity, sold_quantity, created_at, updated_at
		FROM product_inventories WHERE product_id = $1 AND sales_slot_id = $2`

	inventoryBySlotSQL = `SELECT product_id, sales_slot_id, initial_quantity, reserved_quantity, sold_quantity, created_at, updated_at
		FROM product_inventories WHERE sales_slot_id = $1 ORDER BY product_id`

	inventoryByProductSQL = `SELECT product_id, sales_slot_id, initial_quantity, reserved_quantity, sold_quantity, created_at, updated_at
		FROM product_inventories WHERE product_id = $1 ORDER BY sales_slot_id`

	// Overwrites only the initial level on conflict; the WHERE guard refuses
	// levels below the row's committed units.
	setInitialSQL = `INSERT INTO product_inventories (product_id, sales_slot_id, initial_quantity, reserved_quantity, sold_quantity)
		VALUES ($1, $2, $3, 0, 0)
		ON CONFLICT (product_id, sales_slot_id) DO UPDATE
		SET initial_quantity = EXCLUDED.initial_quantity, updated_at = now()
		WHERE product_inventories.reserved_quantity + product_inventories.sold_quantity <= EXCLUDED.initial_quantity
		RETURNING product_id, sales_slot_id, initial_quantity, reserved_quantity, sold_quantity, created_at, updated_at`

	reserveSQL = `UPDATE product_inventories
		SET reserved_quantity = reserved_quantity + $3, updated_at = now()
		WHERE product_id = $1 AND sales_slot_id = $2
		  AND initial_quantity - reserved_quantity - sold_quantity >= $3`

	releaseSQL = `UPDATE product_inventories
		SET reserved_quantity = reserved_quantity - $3, updated_at = now()
		WHERE product_id = $1 AND sales_slot_id = $2 AND reserved_quantity >= $3`

	convertSQL = `UPDATE product_inventories
		SET reserved_quantity = reserved_quantity - $3, sold_quantity = sold_quantity + $3, updated_at = now()
		WHERE product_id = $1 AND sales_slot_id = $2 AND reserved_quantity >= $3`

	lockRowSQL = `SELECT product_id, sales_slot_id, initial_quantity, reserved_quantity, sold_quantity, created_at, updated_at
		FROM product_inventories WHERE product_id = $1 AND sales_slot_id = $2 FOR UPDATE`

	writeCountersSQL = `UPDATE product_inventories
		SET reserved_quantity = $3, sold_quantity = $4, updated_at = now()
		WHERE product_id = $1 AND sales_slot_id = $2`

	hasActiveStockSQL = `SELECT EXISTS (
		SELECT 1 FROM product_inventories
		WHERE product_id = $1 AND (reserved_quantity > 0 OR sold_quantity > 0))`
)

var _ inventory.Repository = (*InventoryRepository)(nil)

// InventoryRepository implements inventory.Repository backed by PostgreSQL.
// Single-row operations are single guarded UPDATE statements, so concurrent
// callers cannot race a read-modify-write. Batch operations run in one
// transaction with rows locked in product-ID order.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository returns an InventoryRepository using the given pool.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

// Get returns the row for a (product, slot) pair.
func (r *InventoryRepository) Get(ctx context.Context, productID, slotID string) (*inventory.Row, error) {
	return getRow(ctx, r.pool, productID, slotID)
}

// BySlot returns all rows under a slot.
func (r *InventoryRepository) BySlot(ctx context.Context, slotID string) ([]inventory.Row, error) {
	rows, err := r.pool.Query(ctx, inventoryBySlotSQL, slotID)
	if err != nil {
		return nil, fmt.Errorf("listing inventory for slot %q: %w", slotID, err)
	}
	return pgx.CollectRows(rows, scanInventoryRow)
}

// ByProduct returns all rows for a product across slots.
func (r *InventoryRepository) ByProduct(ctx context.Context, productID string) ([]inventory.Row, error) {
	rows, err := r.pool.Query(ctx, inventoryByProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("listing inventory for product %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanInventoryRow)
}

// SetInitial creates the row lazily or overwrites only its initial counter.
func (r *InventoryRepository) SetInitial(ctx context.Context, productID, slotID string, qty int) (*inventory.Row, error) {
	rows, err := r.pool.Query(ctx, setInitialSQL, productID, slotID, qty)
	if err != nil {
		return nil, fmt.Errorf("setting initial level for product %q: %w", productID, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, scanInventoryRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict branch refused the update: level below committed units.
			return nil, inventory.ErrLevelTooLow
		}
		return nil, fmt.Errorf("setting initial level for product %q: %w", productID, err)
	}
	return &row, nil
}

// Reserve atomically moves qty units from available to reserved.
func (r *InventoryRepository) Reserve(ctx context.Context, productID, slotID string, qty int) error {
	ct, err := r.pool.Exec(ctx, reserveSQL, productID, slotID, qty)
	if err != nil {
		return fmt.Errorf("reserving %d of product %q: %w", qty, productID, err)
	}
	if ct.RowsAffected() == 0 {
		return r.reserveFailure(ctx, productID, slotID, qty)
	}
	return nil
}

// Release atomically returns qty reserved units to available.
func (r *InventoryRepository) Release(ctx context.Context, productID, slotID string, qty int) error {
	ct, err := r.pool.Exec(ctx, releaseSQL, productID, slotID, qty)
	if err != nil {
		return fmt.Errorf("releasing %d of product %q: %w", qty, productID, err)
	}
	if ct.RowsAffected() == 0 {
		return r.counterFailure(ctx, productID, slotID, qty)
	}
	return nil
}

// ConvertToSold atomically moves qty units from reserved to sold.
func (r *InventoryRepository) ConvertToSold(ctx context.Context, productID, slotID string, qty int) error {
	ct, err := r.pool.Exec(ctx, convertSQL, productID, slotID, qty)
	if err != nil {
		return fmt.Errorf("converting %d of product %q: %w", qty, productID, err)
	}
	if ct.RowsAffected() == 0 {
		return r.counterFailure(ctx, productID, slotID, qty)
	}
	return nil
}

// ReserveItems reserves every item or nothing.
func (r *InventoryRepository) ReserveItems(ctx context.Context, slotID string, items []inventory.ItemQty) error {
	return r.batch(ctx, slotID, items, func(row *inventory.Row, qty int) error {
		return row.Reserve(qty)
	})
}

// ReleaseItems releases every item or nothing.
func (r *InventoryRepository) ReleaseItems(ctx context.Context, slotID string, items []inventory.ItemQty) error {
	return r.batch(ctx, slotID, items, func(row *inventory.Row, qty int) error {
		return row.Release(qty)
	})
}

// ConvertItems converts every item's reserved units to sold, or nothing.
func (r *InventoryRepository) ConvertItems(ctx context.Context, slotID string, items []inventory.ItemQty) error {
	return r.batch(ctx, slotID, items, func(row *inventory.Row, qty int) error {
		return row.ConvertToSold(qty)
	})
}

// UnconvertItems moves sold units back to reserved, compensating a failed
// confirmation.
func (r *InventoryRepository) UnconvertItems(ctx context.Context, slotID string, items []inventory.ItemQty) error {
	return r.batch(ctx, slotID, items, func(row *inventory.Row, qty int) error {
		if qty > row.Sold {
			return &inventory.InvalidQuantityError{ProductID: row.ProductID, Requested: qty, Reserved: row.Reserved}
		}
		row.Sold -= qty
		row.Reserved += qty
		return nil
	})
}

// HasActiveStock reports whether any row for the product holds reserved or
// sold units.
func (r *InventoryRepository) HasActiveStock(ctx context.Context, productID string) (bool, error) {
	var active bool
	if err := r.pool.QueryRow(ctx, hasActiveStockSQL, productID).Scan(&active); err != nil {
		return false, fmt.Errorf("checking active stock for product %q: %w", productID, err)
	}
	return active, nil
}

// batch applies op to every item's row inside one transaction. Rows are
// locked in product-ID order so concurrent multi-row batches cannot
// deadlock; the domain arithmetic on the locked snapshot decides success.
func (r *InventoryRepository) batch(ctx context.Context, slotID string, items []inventory.ItemQty, op func(*inventory.Row, int) error) error {
	sorted := make([]inventory.ItemQty, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin inventory batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, item := range sorted {
		rows, err := tx.Query(ctx, lockRowSQL, item.ProductID, slotID)
		if err != nil {
			return fmt.Errorf("locking row for product %q: %w", item.ProductID, err)
		}
		row, err := pgx.CollectExactlyOneRow(rows, scanInventoryRow)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.Wrapf(inventory.ErrNotFound, "product %s in slot %s", item.ProductID, slotID)
			}
			return fmt.Errorf("locking row for product %q: %w", item.ProductID, err)
		}

		if err := op(&row, item.Qty); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, writeCountersSQL, row.ProductID, row.SlotID, row.Reserved, row.Sold); err != nil {
			return fmt.Errorf("updating row for product %q: %w", item.ProductID, err)
		}
	}

	return tx.Commit(ctx)
}

// reserveFailure distinguishes a missing row from insufficient stock after a
// guarded reserve matched nothing.
func (r *InventoryRepository) reserveFailure(ctx context.Context, productID, slotID string, qty int) error {
	row, err := getRow(ctx, r.pool, productID, slotID)
	if err != nil {
		return err
	}
	return &inventory.InsufficientStockError{ProductID: productID, Requested: qty, Available: row.Available()}
}

// counterFailure distinguishes a missing row from a reserved-counter
// underflow after a guarded release/convert matched nothing.
func (r *InventoryRepository) counterFailure(ctx context.Context, productID, slotID string, qty int) error {
	row, err := getRow(ctx, r.pool, productID, slotID)
	if err != nil {
		return err
	}
	return &inventory.InvalidQuantityError{ProductID: productID, Requested: qty, Reserved: row.Reserved}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getRow(ctx context.Context, q querier, productID, slotID string) (*inventory.Row, error) {
	rows, err := q.Query(ctx, getInventorySQL, productID, slotID)
	if err != nil {
		return nil, fmt.Errorf("getting inventory for product %q: %w", productID, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, scanInventoryRow)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, inventory.ErrNotFound
		}
		return nil, fmt.Errorf("getting inventory for product %q: %w", productID, err)
	}
	return &row, nil
}

func scanInventoryRow(row pgx.CollectableRow) (inventory.Row, error) {
	var r inventory.Row
	err := row.Scan(&r.ProductID, &r.SlotID, &r.Initial, &r.Reserved, &r.Sold, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}
