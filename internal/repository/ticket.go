package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/timeseats/internal/domain/ticket"
)

const (
	createTicketSQL = `INSERT INTO order_tickets (id, ticket_number, order_id, payment_method, transaction_id, is_paid, is_delivered, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	getTicketSQL = `SELECT id, ticket_number, order_id, payment_method, transaction_id, is_paid, is_delivered, created_at, updated_at
		FROM order_tickets WHERE id = $1`

	getTicketByOrderSQL = `SELECT id, ticket_number, order_id, payment_method, transaction_id, is_paid, is_delivered, created_at, updated_at
		FROM order_tickets WHERE order_id = $1`

	getTicketByNumberSQL = `SELECT id, ticket_number, order_id, payment_method, transaction_id, is_paid, is_delivered, created_at, updated_at
		FROM order_tickets WHERE ticket_number = $1`

	listTicketsSQL = `SELECT id, ticket_number, order_id, payment_method, transaction_id, is_paid, is_delivered, created_at, updated_at
		FROM order_tickets ORDER BY created_at DESC`

	listTicketsByPaidSQL = `SELECT id, ticket_number, order_id, payment_method, transaction_id, is_paid, is_delivered, created_at, updated_at
		FROM order_tickets WHERE is_paid = $1 ORDER BY created_at DESC`

	listTicketsByDeliveredSQL = `SELECT id, ticket_number, order_id, payment_method, transaction_id, is_paid, is_delivered, created_at, updated_at
		FROM order_tickets WHERE is_delivered = $1 ORDER BY created_at DESC`

	setTicketPaidSQL = `UPDATE order_tickets SET is_paid = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, ticket_number, order_id, payment_method, transaction_id, is_paid, is_delivered, created_at, updated_at`

	setTicketDeliveredSQL = `UPDATE order_tickets SET is_delivered = $2, updated_at = now()
		WHERE id = $1
		RETURNING id, ticket_number, order_id, payment_method, transaction_id, is_paid, is_delivered, created_at, updated_at`

	deleteTicketSQL = `DELETE FROM order_tickets WHERE id = $1`
)

// Unique constraint names from the embedded schema.
const (
	ticketOrderUniqueConstraint  = "order_tickets_order_id_key"
	ticketNumberUniqueConstraint = "order_tickets_ticket_number_key"
)

var _ ticket.Repository = (*TicketRepository)(nil)

// TicketRepository implements ticket.Repository backed by PostgreSQL. The
// one-ticket-per-order and unique-number guarantees rest on the table's
// unique constraints; violations surface as the package's typed errors.
type TicketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository returns a TicketRepository that uses the given pool.
func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

// Create persists a new ticket.
func (r *TicketRepository) Create(ctx context.Context, t *ticket.Ticket) error {
	var txID any
	if t.TransactionID != "" {
		txID = t.TransactionID
	}
	_, err := r.pool.Exec(ctx, createTicketSQL,
		t.ID, t.TicketNumber, t.OrderID, t.PaymentMethod, txID,
		t.IsPaid, t.IsDelivered, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case ticketOrderUniqueConstraint:
				return ticket.ErrAlreadyIssued
			case ticketNumberUniqueConstraint:
				return ticket.ErrNumberTaken
			}
		}
		return fmt.Errorf("creating ticket %q: %w", t.ID, err)
	}
	return nil
}

// GetByID returns a ticket by its identifier.
func (r *TicketRepository) GetByID(ctx context.Context, id string) (*ticket.Ticket, error) {
	return r.one(ctx, getTicketSQL, id)
}

// GetByOrderID returns the ticket minted for an order.
func (r *TicketRepository) GetByOrderID(ctx context.Context, orderID string) (*ticket.Ticket, error) {
	return r.one(ctx, getTicketByOrderSQL, orderID)
}

// GetByNumber returns a ticket by its human-facing number.
func (r *TicketRepository) GetByNumber(ctx context.Context, number string) (*ticket.Ticket, error) {
	return r.one(ctx, getTicketByNumberSQL, number)
}

// List returns all tickets, newest first.
func (r *TicketRepository) List(ctx context.Context) ([]ticket.Ticket, error) {
	rows, err := r.pool.Query(ctx, listTicketsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	return pgx.CollectRows(rows, scanTicket)
}

// ListByPaid returns tickets filtered by the paid flag.
func (r *TicketRepository) ListByPaid(ctx context.Context, paid bool) ([]ticket.Ticket, error) {
	rows, err := r.pool.Query(ctx, listTicketsByPaidSQL, paid)
	if err != nil {
		return nil, fmt.Errorf("listing tickets by paid=%t: %w", paid, err)
	}
	return pgx.CollectRows(rows, scanTicket)
}

// ListByDelivered returns tickets filtered by the delivered flag.
func (r *TicketRepository) ListByDelivered(ctx context.Context, delivered bool) ([]ticket.Ticket, error) {
	rows, err := r.pool.Query(ctx, listTicketsByDeliveredSQL, delivered)
	if err != nil {
		return nil, fmt.Errorf("listing tickets by delivered=%t: %w", delivered, err)
	}
	return pgx.CollectRows(rows, scanTicket)
}

// SetPaid updates the payment flag and returns the updated ticket.
func (r *TicketRepository) SetPaid(ctx context.Context, id string, paid bool) (*ticket.Ticket, error) {
	return r.one(ctx, setTicketPaidSQL, id, paid)
}

// SetDelivered updates the delivery flag and returns the updated ticket.
func (r *TicketRepository) SetDelivered(ctx context.Context, id string, delivered bool) (*ticket.Ticket, error) {
	return r.one(ctx, setTicketDeliveredSQL, id, delivered)
}

// Delete removes a ticket. The referenced order is untouched.
func (r *TicketRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, deleteTicketSQL, id)
	if err != nil {
		return fmt.Errorf("deleting ticket %q: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return ticket.ErrNotFound
	}
	return nil
}

func (r *TicketRepository) one(ctx context.Context, sql string, args ...any) (*ticket.Ticket, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ticket: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTicket)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ticket.ErrNotFound
		}
		return nil, fmt.Errorf("querying ticket: %w", err)
	}
	return &t, nil
}

func scanTicket(row pgx.CollectableRow) (ticket.Ticket, error) {
	var (
		t    ticket.Ticket
		txID *string
	)
	err := row.Scan(&t.ID, &t.TicketNumber, &t.OrderID, &t.PaymentMethod, &txID,
		&t.IsPaid, &t.IsDelivered, &t.CreatedAt, &t.UpdatedAt)
	if txID != nil {
		t.TransactionID = *txID
	}
	return t, err
}
