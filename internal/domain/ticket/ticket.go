// Package ticket issues and tracks the payment/delivery record minted for
// each confirmed order.
package ticket

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for ticket operations.
var (
	ErrNotFound      = errors.New("ticket not found")
	ErrAlreadyIssued = errors.New("ticket already exists for order")
	ErrNotPaid       = errors.New("ticket is not paid")
	// ErrNumberTaken is returned by repositories when a generated ticket
	// number collides with an existing one.
	ErrNumberTaken = errors.New("ticket number already taken")
)

// PaymentMethod identifies how an order was paid.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentCard   PaymentMethod = "CARD"
	PaymentPayPay PaymentMethod = "PAYPAY"
	PaymentOther  PaymentMethod = "OTHER"
)

// Valid reports whether m is one of the known payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentPayPay, PaymentOther:
		return true
	}
	return false
}

// Ticket is the payment/delivery record for a confirmed order. Exactly one
// ticket exists per order.
type Ticket struct {
	ID            string
	TicketNumber  string
	OrderID       string
	PaymentMethod PaymentMethod
	TransactionID string
	IsPaid        bool
	IsDelivered   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Repository defines persistence operations for tickets. Create must enforce
// both uniqueness constraints (one ticket per order, unique ticket number)
// and return ErrAlreadyIssued or ErrNumberTaken respectively on violation.
type Repository interface {
	Create(ctx context.Context, t *Ticket) error
	GetByID(ctx context.Context, id string) (*Ticket, error)
	GetByOrderID(ctx context.Context, orderID string) (*Ticket, error)
	GetByNumber(ctx context.Context, number string) (*Ticket, error)
	List(ctx context.Context) ([]Ticket, error)
	ListByPaid(ctx context.Context, paid bool) ([]Ticket, error)
	ListByDelivered(ctx context.Context, delivered bool) ([]Ticket, error)
	SetPaid(ctx context.Context, id string, paid bool) (*Ticket, error)
	SetDelivered(ctx context.Context, id string, delivered bool) (*Ticket, error)
	Delete(ctx context.Context, id string) error
}

// PaymentPolicy decides whether a ticket starts out paid for a given payment
// method. Confirmation at the counter usually implies payment has been
// captured, but settlement-later methods can opt out.
type PaymentPolicy struct {
	unpaid map[PaymentMethod]bool
}

// NewPaymentPolicy builds a policy where the listed methods issue unpaid
// tickets and every other method issues paid ones.
func NewPaymentPolicy(unpaidMethods ...PaymentMethod) PaymentPolicy {
	unpaid := make(map[PaymentMethod]bool, len(unpaidMethods))
	for _, m := range unpaidMethods {
		unpaid[m] = true
	}
	return PaymentPolicy{unpaid: unpaid}
}

// PaidOnIssue reports whether a ticket for the given method is created with
// isPaid=true.
func (p PaymentPolicy) PaidOnIssue(m PaymentMethod) bool {
	return !p.unpaid[m]
}
