package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/timeseats/internal/domain/slot"
)

const (
	getSlotSQL = `SELECT id, start_time, end_time, is_active, created_at, updated_at
		FROM sales_slots WHERE id = $1`

	listSlotsSQL = `SELECT id, start_time, end_time, is_active, created_at, updated_at
		FROM sales_slots ORDER BY start_time`

	listActiveSlotsSQL = `SELECT id, start_time, end_time, is_active, created_at, updated_at
		FROM sales_slots WHERE is_active ORDER BY start_time`

	containingTimeSQL = `SELECT id, start_time, end_time, is_active, created_at, updated_at
		FROM sales_slots WHERE start_time <= $1 AND end_time > $1 ORDER BY start_time`

	overlappingSQL = `SELECT id, start_time, end_time, is_active, created_at, updated_at
		FROM sales_slots WHERE start_time < $2 AND end_time > $1 ORDER BY start_time`

	createSlotSQL = `INSERT INTO sales_slots (id, start_time, end_time, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	updateSlotSQL = `UPDATE sales_slots SET start_time = $2, end_time = $3, is_active = $4, updated_at = $5
		WHERE id = $1`

	updateSlotActiveSQL = `UPDATE sales_slots SET is_active = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, start_time, end_time, is_active, created_at, updated_at`

	deleteSlotSQL = `DELETE FROM sales_slots WHERE id = $1`
)

var _ slot.Repository = (*SlotRepository)(nil)

// SlotRepository implements slot.Repository backed by PostgreSQL.
type SlotRepository struct {
	pool *pgxpool.Pool
}

// NewSlotRepository returns a SlotRepository that uses the given pool.
func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

// GetByID returns a slot by its identifier.
func (r *SlotRepository) GetByID(ctx context.Context, id string) (*slot.SalesSlot, error) {
	rows, err := r.pool.Query(ctx, getSlotSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting slot %q: %w", id, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSlot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, slot.ErrNotFound
		}
		return nil, fmt.Errorf("getting slot %q: %w", id, err)
	}
	return &s, nil
}

// List returns all slots ordered by start time.
func (r *SlotRepository) List(ctx context.Context) ([]slot.SalesSlot, error) {
	rows, err := r.pool.Query(ctx, listSlotsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing slots: %w", err)
	}
	return pgx.CollectRows(rows, scanSlot)
}

// ListActive returns all active slots ordered by start time.
func (r *SlotRepository) ListActive(ctx context.Context) ([]slot.SalesSlot, error) {
	rows, err := r.pool.Query(ctx, listActiveSlotsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing active slots: %w", err)
	}
	return pgx.CollectRows(rows, scanSlot)
}

// ContainingTime returns slots whose half-open interval contains t.
func (r *SlotRepository) ContainingTime(ctx context.Context, t time.Time) ([]slot.SalesSlot, error) {
	rows, err := r.pool.Query(ctx, containingTimeSQL, t)
	if err != nil {
		return nil, fmt.Errorf("finding slots containing %s: %w", t, err)
	}
	return pgx.CollectRows(rows, scanSlot)
}

// Overlapping returns slots intersecting the half-open interval [start, end).
func (r *SlotRepository) Overlapping(ctx context.Context, start, end time.Time) ([]slot.SalesSlot, error) {
	rows, err := r.pool.Query(ctx, overlappingSQL, start, end)
	if err != nil {
		return nil, fmt.Errorf("finding overlapping slots: %w", err)
	}
	return pgx.CollectRows(rows, scanSlot)
}

// Create persists a new slot.
func (r *SlotRepository) Create(ctx context.Context, s *slot.SalesSlot) error {
	_, err := r.pool.Exec(ctx, createSlotSQL,
		s.ID, s.StartTime, s.EndTime, s.IsActive, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating slot %q: %w", s.ID, err)
	}
	return nil
}

// Update rewrites a slot's window and active flag.
func (r *SlotRepository) Update(ctx context.Context, s *slot.SalesSlot) error {
	ct, err := r.pool.Exec(ctx, updateSlotSQL,
		s.ID, s.StartTime, s.EndTime, s.IsActive, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating slot %q: %w", s.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return slot.ErrNotFound
	}
	return nil
}

// UpdateActive flips the active flag and returns the updated slot.
func (r *SlotRepository) UpdateActive(ctx context.Context, id string, active bool) (*slot.SalesSlot, error) {
	rows, err := r.pool.Query(ctx, updateSlotActiveSQL, id, active)
	if err != nil {
		return nil, fmt.Errorf("toggling slot %q: %w", id, err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSlot)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, slot.ErrNotFound
		}
		return nil, fmt.Errorf("toggling slot %q: %w", id, err)
	}
	return &s, nil
}

// Delete removes a slot.
func (r *SlotRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, deleteSlotSQL, id)
	if err != nil {
		return fmt.Errorf("deleting slot %q: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return slot.ErrNotFound
	}
	return nil
}

func scanSlot(row pgx.CollectableRow) (slot.SalesSlot, error) {
	var s slot.SalesSlot
	err := row.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
