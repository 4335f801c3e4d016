package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/timeseats/internal/domain/inventory"
	"github.com/xenking/timeseats/internal/domain/product"
	"github.com/xenking/timeseats/internal/domain/ticket"
	"github.com/xenking/timeseats/internal/events"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) { return nil, nil }

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockProductRepo) SearchByName(_ context.Context, _ string) ([]product.Product, error) {
	return nil, nil
}
func (m *mockProductRepo) Create(_ context.Context, _ *product.Product) error { return nil }
func (m *mockProductRepo) Update(_ context.Context, _ *product.Product) error { return nil }
func (m *mockProductRepo) Delete(_ context.Context, _ string) error           { return nil }

// memInventory is an in-memory inventory.Repository with the same
// all-or-nothing batch semantics as the real one.
type memInventory struct {
	rows       map[string]*inventory.Row // productID|slotID
	reserveErr error
	convertErr error
}

func newMemInventory() *memInventory {
	return &memInventory{rows: make(map[string]*inventory.Row)}
}

func (m *memInventory) key(productID, slotID string) string { return productID + "|" + slotID }

func (m *memInventory) put(productID, slotID string, initial, reserved, sold int) {
	m.rows[m.key(productID, slotID)] = &inventory.Row{
		ProductID: productID,
		SlotID:    slotID,
		Initial:   initial,
		Reserved:  reserved,
		Sold:      sold,
	}
}

func (m *memInventory) Get(_ context.Context, productID, slotID string) (*inventory.Row, error) {
	row, ok := m.rows[m.key(productID, slotID)]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (m *memInventory) BySlot(_ context.Context, _ string) ([]inventory.Row, error)    { return nil, nil }
func (m *memInventory) ByProduct(_ context.Context, _ string) ([]inventory.Row, error) { return nil, nil }

func (m *memInventory) SetInitial(_ context.Context, productID, slotID string, qty int) (*inventory.Row, error) {
	m.put(productID, slotID, qty, 0, 0)
	row := *m.rows[m.key(productID, slotID)]
	return &row, nil
}

func (m *memInventory) Reserve(_ context.Context, productID, slotID string, qty int) error {
	return m.apply(slotID, []inventory.ItemQty{{ProductID: productID, Qty: qty}}, (*inventory.Row).Reserve)
}

func (m *memInventory) Release(_ context.Context, productID, slotID string, qty int) error {
	return m.apply(slotID, []inventory.ItemQty{{ProductID: productID, Qty: qty}}, (*inventory.Row).Release)
}

func (m *memInventory) ConvertToSold(_ context.Context, productID, slotID string, qty int) error {
	return m.apply(slotID, []inventory.ItemQty{{ProductID: productID, Qty: qty}}, (*inventory.Row).ConvertToSold)
}

func (m *memInventory) ReserveItems(_ context.Context, slotID string, items []inventory.ItemQty) error {
	if m.reserveErr != nil {
		return m.reserveErr
	}
	return m.apply(slotID, items, (*inventory.Row).Reserve)
}

func (m *memInventory) ReleaseItems(_ context.Context, slotID string, items []inventory.ItemQty) error {
	return m.apply(slotID, items, (*inventory.Row).Release)
}

func (m *memInventory) ConvertItems(_ context.Context, slotID string, items []inventory.ItemQty) error {
	if m.convertErr != nil {
		return m.convertErr
	}
	return m.apply(slotID, items, (*inventory.Row).ConvertToSold)
}

func (m *memInventory) UnconvertItems(_ context.Context, slotID string, items []inventory.ItemQty) error {
	for _, item := range items {
		row, ok := m.rows[m.key(item.ProductID, slotID)]
		if !ok {
			return inventory.ErrNotFound
		}
		row.Sold -= item.Qty
		row.Reserved += item.Qty
	}
	return nil
}

// apply runs op against staged copies first so a failing item leaves every
// row untouched.
func (m *memInventory) apply(slotID string, items []inventory.ItemQty, op func(*inventory.Row, int) error) error {
	staged := make(map[string]inventory.Row, len(items))
	for _, item := range items {
		row, ok := m.rows[m.key(item.ProductID, slotID)]
		if !ok {
			return inventory.ErrNotFound
		}
		cp := *row
		if err := op(&cp, item.Qty); err != nil {
			return err
		}
		staged[m.key(item.ProductID, slotID)] = cp
	}
	for key, row := range staged {
		cp := row
		m.rows[key] = &cp
	}
	return nil
}

type mockOrderRepo struct {
	byID      map[string]*Order
	createErr error
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: make(map[string]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context) ([]Order, error)                  { return nil, nil }
func (m *mockOrderRepo) ListByStatus(_ context.Context, _ Status) ([]Order, error) { return nil, nil }
func (m *mockOrderRepo) ListBySlot(_ context.Context, _ string) ([]Order, error)   { return nil, nil }

func (m *mockOrderRepo) UpdateStatus(_ context.Context, id string, from, to Status) error {
	o, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status != from {
		return ErrStatusConflict
	}
	o.Status = to
	return nil
}

type mockTicketService struct {
	byOrder  map[string]*ticket.Ticket
	issueErr error
}

func newMockTicketService() *mockTicketService {
	return &mockTicketService{byOrder: make(map[string]*ticket.Ticket)}
}

func (m *mockTicketService) Issue(_ context.Context, orderID string, method ticket.PaymentMethod, txID string) (*ticket.Ticket, error) {
	if m.issueErr != nil {
		return nil, m.issueErr
	}
	t := &ticket.Ticket{
		ID:            "tkt-" + orderID,
		TicketNumber:  "T123456001",
		OrderID:       orderID,
		PaymentMethod: method,
		TransactionID: txID,
		IsPaid:        method != ticket.PaymentCash,
	}
	m.byOrder[orderID] = t
	return t, nil
}

func (m *mockTicketService) GetByID(_ context.Context, id string) (*ticket.Ticket, error) {
	for _, t := range m.byOrder {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, ticket.ErrNotFound
}

func (m *mockTicketService) GetByOrderID(_ context.Context, orderID string) (*ticket.Ticket, error) {
	t, ok := m.byOrder[orderID]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	return t, nil
}

func (m *mockTicketService) GetByNumber(_ context.Context, number string) (*ticket.Ticket, error) {
	for _, t := range m.byOrder {
		if t.TicketNumber == number {
			return t, nil
		}
	}
	return nil, ticket.ErrNotFound
}

func (m *mockTicketService) SetDelivered(_ context.Context, id string, delivered bool) (*ticket.Ticket, error) {
	t, err := m.GetByID(context.Background(), id)
	if err != nil {
		return nil, err
	}
	t.IsDelivered = delivered
	return t, nil
}

type capturePublisher struct {
	published []events.Envelope
}

func (c *capturePublisher) Publish(_ context.Context, e events.Envelope) {
	c.published = append(c.published, e)
}

// --- Helpers ---

const slotID = "slot-1"

type fixture struct {
	svc     *Service
	inv     *memInventory
	orders  *mockOrderRepo
	tickets *mockTicketService
	pub     *capturePublisher
}

func newFixture(products ...product.Product) *fixture {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	f := &fixture{
		inv:     newMemInventory(),
		orders:  newMockOrderRepo(),
		tickets: newMockTicketService(),
		pub:     &capturePublisher{},
	}
	f.svc = NewService(&mockProductRepo{byID: byID}, f.inv, f.orders, f.tickets, f.pub)
	return f
}

func testProduct(id string, price int64) product.Product {
	return product.Product{ID: id, Name: "product " + id, Price: decimal.NewFromInt(price)}
}

func (f *fixture) row(t *testing.T, productID string) *inventory.Row {
	t.Helper()
	row, err := f.inv.Get(context.Background(), productID, slotID)
	require.NoError(t, err)
	return row
}

func (f *fixture) reserve(t *testing.T, items ...ItemInput) *Order {
	t.Helper()
	o, err := f.svc.CreateReservation(context.Background(), slotID, items)
	require.NoError(t, err)
	return o
}

// --- Tests ---

func TestCreateReservation_Empty(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateReservation(context.Background(), slotID, nil)
	require.ErrorIs(t, err, ErrEmptyOrder)
}

func TestCreateReservation_InvalidQuantity(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)

	_, err := f.svc.CreateReservation(context.Background(), slotID, []ItemInput{
		{ProductID: "p1", Quantity: 0},
	})

	var iqErr *InvalidQuantityError
	require.ErrorAs(t, err, &iqErr)
	assert.Equal(t, "p1", iqErr.ProductID)
}

func TestCreateReservation_ProductNotFound(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)

	_, err := f.svc.CreateReservation(context.Background(), slotID, []ItemInput{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "ghost", Quantity: 1},
	})

	var pnfErr *ProductNotFoundError
	require.ErrorAs(t, err, &pnfErr)
	assert.Equal(t, "ghost", pnfErr.ProductID)

	// Nothing was reserved for the valid item.
	assert.Equal(t, 0, f.row(t, "p1").Reserved)
}

func TestCreateReservation_Success(t *testing.T) {
	f := newFixture(testProduct("p1", 500), testProduct("p2", 300))
	f.inv.put("p1", slotID, 10, 0, 0)
	f.inv.put("p2", slotID, 5, 0, 0)

	o := f.reserve(t,
		ItemInput{ProductID: "p1", Quantity: 2},
		ItemInput{ProductID: "p2", Quantity: 3},
	)

	assert.Equal(t, StatusReserved, o.Status)
	assert.True(t, decimal.NewFromInt(1900).Equal(o.TotalAmount))
	assert.Equal(t, 2, f.row(t, "p1").Reserved)
	assert.Equal(t, 3, f.row(t, "p2").Reserved)

	require.Len(t, f.pub.published, 1)
	assert.Equal(t, events.TypeOrderReserved, f.pub.published[0].EventType)
}

func TestCreateReservation_InsufficientStockHoldsNothing(t *testing.T) {
	f := newFixture(testProduct("p1", 500), testProduct("p2", 300))
	f.inv.put("p1", slotID, 10, 0, 0)
	f.inv.put("p2", slotID, 2, 0, 0)

	_, err := f.svc.CreateReservation(context.Background(), slotID, []ItemInput{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	})

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p2", stockErr.ProductID)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	// The earlier valid item holds no stock either.
	assert.Equal(t, 0, f.row(t, "p1").Reserved)
	assert.Empty(t, f.pub.published)
}

func TestCreateReservation_NoInventoryRow(t *testing.T) {
	f := newFixture(testProduct("p1", 500))

	_, err := f.svc.CreateReservation(context.Background(), slotID, []ItemInput{
		{ProductID: "p1", Quantity: 1},
	})
	require.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestCreateReservation_OrderInsertFailureReleasesStock(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)
	f.orders.createErr = errors.New("insert failed")

	_, err := f.svc.CreateReservation(context.Background(), slotID, []ItemInput{
		{ProductID: "p1", Quantity: 4},
	})

	require.Error(t, err)
	assert.Equal(t, 0, f.row(t, "p1").Reserved)
}

func TestConfirm_Success(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)
	o := f.reserve(t, ItemInput{ProductID: "p1", Quantity: 2})

	tk, err := f.svc.Confirm(context.Background(), o.ID, ticket.PaymentCard, "tx-1")
	require.NoError(t, err)

	assert.Equal(t, o.ID, tk.OrderID)
	assert.True(t, tk.IsPaid)

	row := f.row(t, "p1")
	assert.Equal(t, 0, row.Reserved)
	assert.Equal(t, 2, row.Sold)

	confirmed, err := f.svc.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)
}

func TestConfirm_AlreadyConfirmed(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)
	o := f.reserve(t, ItemInput{ProductID: "p1", Quantity: 1})

	_, err := f.svc.Confirm(context.Background(), o.ID, ticket.PaymentCash, "")
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), o.ID, ticket.PaymentCash, "")

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, StatusConfirmed, stateErr.Status)

	// Stock converted exactly once.
	assert.Equal(t, 1, f.row(t, "p1").Sold)
}

func TestConfirm_TicketIssueFailureRollsBack(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)
	o := f.reserve(t, ItemInput{ProductID: "p1", Quantity: 3})

	f.tickets.issueErr = errors.New("number space exhausted")

	_, err := f.svc.Confirm(context.Background(), o.ID, ticket.PaymentCash, "")
	require.Error(t, err)

	// Sold units went back to reserved and the order returned to RESERVED.
	row := f.row(t, "p1")
	assert.Equal(t, 3, row.Reserved)
	assert.Equal(t, 0, row.Sold)

	current, err := f.svc.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReserved, current.Status)
}

func TestConfirm_NotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Confirm(context.Background(), "missing", ticket.PaymentCash, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_ReleasesStock(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)
	o := f.reserve(t, ItemInput{ProductID: "p1", Quantity: 4})

	require.NoError(t, f.svc.Cancel(context.Background(), o.ID))

	row := f.row(t, "p1")
	assert.Equal(t, 0, row.Reserved)
	assert.Equal(t, 10, row.Available())

	canceled, err := f.svc.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)
}

func TestCancel_AfterConfirmFails(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)
	o := f.reserve(t, ItemInput{ProductID: "p1", Quantity: 1})

	_, err := f.svc.Confirm(context.Background(), o.ID, ticket.PaymentCash, "")
	require.NoError(t, err)

	err = f.svc.Cancel(context.Background(), o.ID)

	var stateErr *InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, StatusConfirmed, stateErr.Status)
}

func TestMarkDelivered_RequiresPayment(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)
	o := f.reserve(t, ItemInput{ProductID: "p1", Quantity: 1})

	// Cash tickets start unpaid in this mock.
	tk, err := f.svc.Confirm(context.Background(), o.ID, ticket.PaymentCash, "")
	require.NoError(t, err)
	require.False(t, tk.IsPaid)

	_, err = f.svc.MarkDelivered(context.Background(), tk.ID)
	require.ErrorIs(t, err, ticket.ErrNotPaid)
}

func TestMarkDelivered_Paid(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)
	o := f.reserve(t, ItemInput{ProductID: "p1", Quantity: 1})

	tk, err := f.svc.Confirm(context.Background(), o.ID, ticket.PaymentCard, "tx-9")
	require.NoError(t, err)
	require.True(t, tk.IsPaid)

	delivered, err := f.svc.MarkDelivered(context.Background(), tk.ID)
	require.NoError(t, err)
	assert.True(t, delivered.IsDelivered)

	// reserved, confirmed, delivered
	require.Len(t, f.pub.published, 3)
	assert.Equal(t, events.TypeTicketDelivered, f.pub.published[2].EventType)
}

func TestGetByTicketNumber(t *testing.T) {
	f := newFixture(testProduct("p1", 500))
	f.inv.put("p1", slotID, 10, 0, 0)
	o := f.reserve(t, ItemInput{ProductID: "p1", Quantity: 1})

	tk, err := f.svc.Confirm(context.Background(), o.ID, ticket.PaymentCard, "")
	require.NoError(t, err)

	found, err := f.svc.GetByTicketNumber(context.Background(), tk.TicketNumber)
	require.NoError(t, err)
	assert.Equal(t, o.ID, found.ID)
}
