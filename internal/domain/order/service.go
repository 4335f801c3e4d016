package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/timeseats/internal/domain/inventory"
	"github.com/xenking/timeseats/internal/domain/product"
	"github.com/xenking/timeseats/internal/domain/ticket"
	"github.com/xenking/timeseats/internal/events"
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ItemInput is one requested line of a reservation.
type ItemInput struct {
	ProductID string
	Quantity  int
}

// TicketService is the ticket issuance surface the lifecycle needs.
type TicketService interface {
	Issue(ctx context.Context, orderID string, method ticket.PaymentMethod, transactionID string) (*ticket.Ticket, error)
	GetByID(ctx context.Context, id string) (*ticket.Ticket, error)
	GetByOrderID(ctx context.Context, orderID string) (*ticket.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*ticket.Ticket, error)
	SetDelivered(ctx context.Context, id string, delivered bool) (*ticket.Ticket, error)
}

// Service orchestrates reservations, the RESERVED→CONFIRMED/CANCELED state
// machine, and delivery. It is the only component that touches more than one
// inventory row per logical operation; the repository's batch operations make
// each such touch all-or-nothing.
type Service struct {
	products product.Repository
	rows     inventory.Repository
	orders   Repository
	tickets  TicketService
	pub      events.Publisher
	producer string
	now      func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(
	products product.Repository,
	rows inventory.Repository,
	orders Repository,
	tickets TicketService,
	pub events.Publisher,
) *Service {
	return &Service{
		products: products,
		rows:     rows,
		orders:   orders,
		tickets:  tickets,
		pub:      pub,
		producer: "timeseats-api",
		now:      time.Now,
	}
}

// CreateReservation validates every item against the slot's inventory, then
// reserves all of them in one atomic batch and persists the order as
// RESERVED. Validation runs to completion before any stock is touched, so a
// reservation rejected for its last item holds nothing.
func (s *Service) CreateReservation(ctx context.Context, slotID string, items []ItemInput) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}

	ids := make([]string, len(items))
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Validate all items before committing any reservation.
	orderItems := make([]OrderItem, len(items))
	total := decimal.Zero
	for i, item := range items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}

		row, err := s.rows.Get(ctx, item.ProductID, slotID)
		if err != nil {
			if errors.Is(err, inventory.ErrNotFound) {
				return nil, errors.Wrapf(inventory.ErrNotFound, "product %s in slot %s", item.ProductID, slotID)
			}
			return nil, errors.Wrapf(err, "get inventory for product %s", item.ProductID)
		}
		if avail := row.Available(); item.Quantity > avail {
			return nil, &inventory.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: avail,
			}
		}

		orderItems[i] = OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     p.Price,
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	// Commit all reservations in one transaction. A concurrent reservation
	// since the check above can still win the stock; the batch then fails as
	// a whole and nothing needs rolling back.
	qtys := itemQtys(orderItems)
	if err := s.rows.ReserveItems(ctx, slotID, qtys); err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:          uuid.New().String(),
		SlotID:      slotID,
		Items:       orderItems,
		Status:      StatusReserved,
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		if relErr := s.rows.ReleaseItems(ctx, slotID, qtys); relErr != nil {
			return nil, errors.Wrapf(err, "create order (release compensation also failed: %v)", relErr)
		}
		return nil, errors.Wrap(err, "create order")
	}

	s.publish(ctx, events.TypeOrderReserved, o.ID, events.OrderReservedPayload{
		OrderID:     o.ID,
		SlotID:      o.SlotID,
		Items:       eventItems(qtys),
		TotalAmount: o.TotalAmount.StringFixed(2),
	})
	return o, nil
}

// Confirm transitions a RESERVED order to CONFIRMED, converts its reserved
// stock to sold, and mints the order's single ticket. The status update is a
// compare-and-set, so of two racing confirm/cancel calls only one wins.
func (s *Service) Confirm(ctx context.Context, orderID string, method ticket.PaymentMethod, transactionID string) (*ticket.Ticket, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusReserved {
		return nil, &InvalidStateError{OrderID: orderID, Status: o.Status}
	}
	if existing, err := s.tickets.GetByOrderID(ctx, orderID); err == nil && existing != nil {
		return nil, ticket.ErrAlreadyIssued
	} else if err != nil && !errors.Is(err, ticket.ErrNotFound) {
		return nil, errors.Wrap(err, "check existing ticket")
	}

	if err := s.transition(ctx, o, StatusConfirmed); err != nil {
		return nil, err
	}

	qtys := itemQtys(o.Items)
	if err := s.rows.ConvertItems(ctx, o.SlotID, qtys); err != nil {
		s.revert(ctx, orderID, StatusConfirmed)
		return nil, errors.Wrap(err, "convert reserved stock")
	}

	t, err := s.tickets.Issue(ctx, orderID, method, transactionID)
	if err != nil {
		if uncErr := s.rows.UnconvertItems(ctx, o.SlotID, qtys); uncErr != nil {
			s.revert(ctx, orderID, StatusConfirmed)
			return nil, errors.Wrapf(err, "issue ticket (unconvert compensation also failed: %v)", uncErr)
		}
		s.revert(ctx, orderID, StatusConfirmed)
		return nil, errors.Wrap(err, "issue ticket")
	}

	s.publish(ctx, events.TypeOrderConfirmed, orderID, events.OrderConfirmedPayload{
		OrderID:       orderID,
		TicketNumber:  t.TicketNumber,
		PaymentMethod: string(method),
	})
	return t, nil
}

// Cancel transitions a RESERVED order to CANCELED and releases its held
// stock.
func (s *Service) Cancel(ctx context.Context, orderID string) error {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.Status != StatusReserved {
		return &InvalidStateError{OrderID: orderID, Status: o.Status}
	}

	if err := s.transition(ctx, o, StatusCanceled); err != nil {
		return err
	}

	if err := s.rows.ReleaseItems(ctx, o.SlotID, itemQtys(o.Items)); err != nil {
		s.revert(ctx, orderID, StatusCanceled)
		return errors.Wrap(err, "release reserved stock")
	}

	s.publish(ctx, events.TypeOrderCanceled, orderID, events.OrderCanceledPayload{OrderID: orderID})
	return nil
}

// MarkDelivered flags a ticket as handed over. Delivery requires payment.
func (s *Service) MarkDelivered(ctx context.Context, ticketID string) (*ticket.Ticket, error) {
	t, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !t.IsPaid {
		return nil, ticket.ErrNotPaid
	}

	updated, err := s.tickets.SetDelivered(ctx, ticketID, true)
	if err != nil {
		return nil, errors.Wrap(err, "set delivered")
	}

	s.publish(ctx, events.TypeTicketDelivered, t.OrderID, events.TicketDeliveredPayload{
		TicketID: ticketID,
		OrderID:  t.OrderID,
	})
	return updated, nil
}

// GetByID returns an order by its identifier.
func (s *Service) GetByID(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// List returns all orders.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// ListByStatus returns orders in the given state.
func (s *Service) ListByStatus(ctx context.Context, status Status) ([]Order, error) {
	return s.orders.ListByStatus(ctx, status)
}

// ListBySlot returns orders placed against a slot.
func (s *Service) ListBySlot(ctx context.Context, slotID string) ([]Order, error) {
	return s.orders.ListBySlot(ctx, slotID)
}

// GetByTicketNumber resolves an order through its ticket's human-facing
// number.
func (s *Service) GetByTicketNumber(ctx context.Context, number string) (*Order, error) {
	t, err := s.tickets.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	return s.orders.GetByID(ctx, t.OrderID)
}

// transition runs the compare-and-set from RESERVED to the target status,
// mapping a CAS conflict to InvalidStateError with the freshest known state.
func (s *Service) transition(ctx context.Context, o *Order, to Status) error {
	err := s.orders.UpdateStatus(ctx, o.ID, StatusReserved, to)
	if err == nil {
		o.Status = to
		return nil
	}
	if errors.Is(err, ErrStatusConflict) {
		status := o.Status
		if current, readErr := s.orders.GetByID(ctx, o.ID); readErr == nil {
			status = current.Status
		}
		return &InvalidStateError{OrderID: o.ID, Status: status}
	}
	return errors.Wrapf(err, "transition order %s to %s", o.ID, to)
}

// revert is the best-effort compensation flipping a freshly transitioned
// order back to RESERVED after a later step failed.
func (s *Service) revert(ctx context.Context, orderID string, from Status) {
	_ = s.orders.UpdateStatus(ctx, orderID, from, StatusReserved)
}

func (s *Service) publish(ctx context.Context, eventType, orderID string, payload any) {
	e, err := events.New(eventType, s.producer, orderID, payload)
	if err != nil {
		return
	}
	s.pub.Publish(ctx, e)
}

func itemQtys(items []OrderItem) []inventory.ItemQty {
	qtys := make([]inventory.ItemQty, len(items))
	for i, item := range items {
		qtys[i] = inventory.ItemQty{ProductID: item.ProductID, Qty: item.Quantity}
	}
	return qtys
}

func eventItems(qtys []inventory.ItemQty) []events.ItemQty {
	out := make([]events.ItemQty, len(qtys))
	for i, q := range qtys {
		out[i] = events.ItemQty{ProductID: q.ProductID, Qty: q.Qty}
	}
	return out
}
