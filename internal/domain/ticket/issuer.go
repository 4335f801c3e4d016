package ticket

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// maxNumberAttempts bounds the collision retry loop. The number space is
// small by design (human-facing), so collisions are expected under load and
// resolved by regenerating.
const maxNumberAttempts = 5

// bloom filter sizing for issued-number tracking. False positives only cost
// an extra regeneration.
const (
	bloomCapacity = 1_000_000
	bloomFPR      = 0.001
)

// Issuer mints tickets with practically-unique human-facing numbers. An
// in-process bloom filter of issued numbers short-circuits most collisions
// before they reach the database; the unique constraint remains the backstop.
type Issuer struct {
	tickets Repository
	policy  PaymentPolicy
	now     func() time.Time

	mu     sync.Mutex
	issued *bloom.BloomFilter
}

// NewIssuer creates an Issuer with the given repository and payment policy.
func NewIssuer(tickets Repository, policy PaymentPolicy) *Issuer {
	return &Issuer{
		tickets: tickets,
		policy:  policy,
		now:     time.Now,
		issued:  bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}
}

// generateNumber builds a candidate ticket number: "T", the last six digits
// of the current unix-millisecond timestamp, and a three-digit random suffix.
func (i *Issuer) generateNumber() string {
	millis := i.now().UnixMilli() % 1_000_000
	return fmt.Sprintf("T%06d%03d", millis, rand.IntN(1000))
}

// nextNumber returns a candidate number not yet seen by the bloom filter and
// records it. Must not be called with mu held.
func (i *Issuer) nextNumber() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	for {
		n := i.generateNumber()
		if i.issued.TestString(n) {
			continue
		}
		i.issued.AddString(n)
		return n
	}
}

// Issue creates the single ticket for a confirmed order. The initial isPaid
// flag follows the payment policy for the method; isDelivered starts false.
// Number collisions against the database are retried a bounded number of
// times.
func (i *Issuer) Issue(ctx context.Context, orderID string, method PaymentMethod, transactionID string) (*Ticket, error) {
	existing, err := i.tickets.GetByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "check existing ticket")
	}
	if existing != nil {
		return nil, ErrAlreadyIssued
	}

	var lastErr error
	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		now := i.now()
		t := &Ticket{
			ID:            uuid.New().String(),
			TicketNumber:  i.nextNumber(),
			OrderID:       orderID,
			PaymentMethod: method,
			TransactionID: transactionID,
			IsPaid:        i.policy.PaidOnIssue(method),
			IsDelivered:   false,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		err := i.tickets.Create(ctx, t)
		switch {
		case err == nil:
			return t, nil
		case errors.Is(err, ErrNumberTaken):
			lastErr = err
			continue
		case errors.Is(err, ErrAlreadyIssued):
			return nil, ErrAlreadyIssued
		default:
			return nil, errors.Wrap(err, "create ticket")
		}
	}
	return nil, errors.Wrap(lastErr, "exhausted ticket number attempts")
}

// SetPaid corrects the payment flag on a ticket, e.g. once a pending card
// settlement completes.
func (i *Issuer) SetPaid(ctx context.Context, id string, paid bool) (*Ticket, error) {
	return i.tickets.SetPaid(ctx, id, paid)
}

// SetDelivered updates the delivery flag on a ticket.
func (i *Issuer) SetDelivered(ctx context.Context, id string, delivered bool) (*Ticket, error) {
	return i.tickets.SetDelivered(ctx, id, delivered)
}

// GetByID returns a ticket by identifier.
func (i *Issuer) GetByID(ctx context.Context, id string) (*Ticket, error) {
	return i.tickets.GetByID(ctx, id)
}

// GetByNumber returns a ticket by its human-facing number.
func (i *Issuer) GetByNumber(ctx context.Context, number string) (*Ticket, error) {
	return i.tickets.GetByNumber(ctx, number)
}

// GetByOrderID returns the ticket minted for an order.
func (i *Issuer) GetByOrderID(ctx context.Context, orderID string) (*Ticket, error) {
	return i.tickets.GetByOrderID(ctx, orderID)
}

// List returns all tickets.
func (i *Issuer) List(ctx context.Context) ([]Ticket, error) {
	return i.tickets.List(ctx)
}

// ListByPaid returns tickets filtered by the paid flag.
func (i *Issuer) ListByPaid(ctx context.Context, paid bool) ([]Ticket, error) {
	return i.tickets.ListByPaid(ctx, paid)
}

// ListByDelivered returns tickets filtered by the delivered flag.
func (i *Issuer) ListByDelivered(ctx context.Context, delivered bool) ([]Ticket, error) {
	return i.tickets.ListByDelivered(ctx, delivered)
}

// Delete removes a ticket record. The order it references is untouched.
func (i *Issuer) Delete(ctx context.Context, id string) error {
	return i.tickets.Delete(ctx, id)
}
