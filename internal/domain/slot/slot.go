// Package slot manages sales slots: fixed time windows within which each
// product carries its own inventory.
package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for slot validation.
var (
	ErrNotFound         = errors.New("sales slot not found")
	ErrInvalidTimeRange = errors.New("end time must be after start time")
	ErrUnaligned        = errors.New("slot times must be aligned to 30-minute boundaries")
	ErrPastSlot         = errors.New("cannot activate a slot that has already ended")
	ErrActiveInventory  = errors.New("slot has reserved or sold inventory")
)

// OverlapError indicates a new interval intersects one or more existing slots.
type OverlapError struct {
	Conflicts []SalesSlot
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("time slot overlaps %d existing slot(s)", len(e.Conflicts))
}

// SalesSlot is a half-open [StartTime, EndTime) sales window.
type SalesSlot struct {
	ID        string
	StartTime time.Time
	EndTime   time.Time
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Contains reports whether t falls inside the slot's half-open interval.
func (s *SalesSlot) Contains(t time.Time) bool {
	return !t.Before(s.StartTime) && t.Before(s.EndTime)
}

// Repository defines persistence operations for sales slots.
type Repository interface {
	GetByID(ctx context.Context, id string) (*SalesSlot, error)
	List(ctx context.Context) ([]SalesSlot, error)
	ListActive(ctx context.Context) ([]SalesSlot, error)
	// ContainingTime returns slots whose interval contains t, active or not.
	ContainingTime(ctx context.Context, t time.Time) ([]SalesSlot, error)
	// Overlapping returns slots whose [start,end) intersects the given
	// half-open interval, active or not.
	Overlapping(ctx context.Context, start, end time.Time) ([]SalesSlot, error)
	Create(ctx context.Context, s *SalesSlot) error
	Update(ctx context.Context, s *SalesSlot) error
	UpdateActive(ctx context.Context, id string, active bool) (*SalesSlot, error)
	Delete(ctx context.Context, id string) error
}
