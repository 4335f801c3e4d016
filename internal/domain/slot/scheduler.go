package slot

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/timeseats/internal/domain/inventory"
)

// Alignment is the boundary every slot start and end must fall on.
const Alignment = 30 * time.Minute

// DefaultLookAhead bounds how far Next searches for an upcoming slot.
const DefaultLookAhead = 30 * time.Minute

// InventoryReader provides the per-slot inventory view the scheduler needs
// for its delete guard.
type InventoryReader interface {
	BySlot(ctx context.Context, slotID string) ([]inventory.Row, error)
}

// Scheduler validates and queries sales slots.
type Scheduler struct {
	slots     Repository
	inventory InventoryReader
	lookAhead time.Duration
	now       func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLookAhead overrides the Next search window.
func WithLookAhead(d time.Duration) Option {
	return func(s *Scheduler) { s.lookAhead = d }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a Scheduler with the required dependencies.
func NewScheduler(slots Repository, inv InventoryReader, opts ...Option) *Scheduler {
	s := &Scheduler{
		slots:     slots,
		inventory: inv,
		lookAhead: DefaultLookAhead,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validateWindow checks ordering, alignment and overlap for a candidate
// interval. excludeID removes the slot's own prior interval from the overlap
// check on updates.
func (s *Scheduler) validateWindow(ctx context.Context, start, end time.Time, excludeID string) error {
	if !end.After(start) {
		return ErrInvalidTimeRange
	}
	if !start.Truncate(Alignment).Equal(start) || !end.Truncate(Alignment).Equal(end) {
		return ErrUnaligned
	}

	overlapping, err := s.slots.Overlapping(ctx, start, end)
	if err != nil {
		return errors.Wrap(err, "find overlapping slots")
	}
	conflicts := overlapping[:0:0]
	for _, other := range overlapping {
		if other.ID != excludeID {
			conflicts = append(conflicts, other)
		}
	}
	if len(conflicts) > 0 {
		return &OverlapError{Conflicts: conflicts}
	}
	return nil
}

// Create validates and persists a new sales slot.
func (s *Scheduler) Create(ctx context.Context, start, end time.Time, active bool) (*SalesSlot, error) {
	if err := s.validateWindow(ctx, start, end, ""); err != nil {
		return nil, err
	}

	now := s.now()
	sl := &SalesSlot{
		ID:        uuid.New().String(),
		StartTime: start,
		EndTime:   end,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.slots.Create(ctx, sl); err != nil {
		return nil, errors.Wrap(err, "create slot")
	}
	return sl, nil
}

// UpdateParams holds the optional fields of a slot update.
type UpdateParams struct {
	StartTime *time.Time
	EndTime   *time.Time
	IsActive  *bool
}

// Update applies a partial update to a slot, re-validating the time window
// when either bound changes.
func (s *Scheduler) Update(ctx context.Context, id string, params UpdateParams) (*SalesSlot, error) {
	existing, err := s.slots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	start, end := existing.StartTime, existing.EndTime
	if params.StartTime != nil {
		start = *params.StartTime
	}
	if params.EndTime != nil {
		end = *params.EndTime
	}
	if params.StartTime != nil || params.EndTime != nil {
		if err := s.validateWindow(ctx, start, end, id); err != nil {
			return nil, err
		}
	}

	existing.StartTime = start
	existing.EndTime = end
	if params.IsActive != nil {
		existing.IsActive = *params.IsActive
	}
	existing.UpdatedAt = s.now()

	if err := s.slots.Update(ctx, existing); err != nil {
		return nil, errors.Wrap(err, "update slot")
	}
	return existing, nil
}

// Delete removes a slot. It fails while any inventory row under the slot has
// reserved or sold units.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	if _, err := s.slots.GetByID(ctx, id); err != nil {
		return err
	}

	rows, err := s.inventory.BySlot(ctx, id)
	if err != nil {
		return errors.Wrap(err, "list slot inventory")
	}
	for _, row := range rows {
		if row.Reserved > 0 || row.Sold > 0 {
			return ErrActiveInventory
		}
	}

	return s.slots.Delete(ctx, id)
}

// ToggleActive flips a slot's active flag. Activating a slot whose end is
// already in the past fails with ErrPastSlot.
func (s *Scheduler) ToggleActive(ctx context.Context, id string, active bool) (*SalesSlot, error) {
	sl, err := s.slots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if active && !sl.EndTime.After(s.now()) {
		return nil, ErrPastSlot
	}
	return s.slots.UpdateActive(ctx, id, active)
}

// Current returns the active slot containing now, or nil when there is none.
func (s *Scheduler) Current(ctx context.Context) (*SalesSlot, error) {
	candidates, err := s.slots.ContainingTime(ctx, s.now())
	if err != nil {
		return nil, errors.Wrap(err, "find current slot")
	}
	for i := range candidates {
		if candidates[i].IsActive {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// Next returns the active slot with the earliest start after now, searching
// no further than the configured look-ahead. Nil when none is scheduled.
func (s *Scheduler) Next(ctx context.Context) (*SalesSlot, error) {
	now := s.now()
	candidates, err := s.slots.Overlapping(ctx, now, now.Add(s.lookAhead))
	if err != nil {
		return nil, errors.Wrap(err, "find next slot")
	}

	var next *SalesSlot
	for i := range candidates {
		c := &candidates[i]
		if !c.IsActive || !c.StartTime.After(now) {
			continue
		}
		if next == nil || c.StartTime.Before(next.StartTime) {
			next = c
		}
	}
	return next, nil
}

// GetByID returns a slot by its identifier.
func (s *Scheduler) GetByID(ctx context.Context, id string) (*SalesSlot, error) {
	return s.slots.GetByID(ctx, id)
}

// List returns all slots.
func (s *Scheduler) List(ctx context.Context) ([]SalesSlot, error) {
	return s.slots.List(ctx)
}

// ListActive returns all active slots.
func (s *Scheduler) ListActive(ctx context.Context) ([]SalesSlot, error) {
	return s.slots.ListActive(ctx)
}

// ListByTimeRange returns slots overlapping the given half-open interval.
func (s *Scheduler) ListByTimeRange(ctx context.Context, start, end time.Time) ([]SalesSlot, error) {
	if !end.After(start) {
		return nil, ErrInvalidTimeRange
	}
	return s.slots.Overlapping(ctx, start, end)
}

// Inventory returns all inventory rows under a slot.
func (s *Scheduler) Inventory(ctx context.Context, slotID string) ([]inventory.Row, error) {
	if _, err := s.slots.GetByID(ctx, slotID); err != nil {
		return nil, err
	}
	return s.inventory.BySlot(ctx, slotID)
}
