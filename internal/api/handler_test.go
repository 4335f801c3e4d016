package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/timeseats/internal/domain/inventory"
	"github.com/xenking/timeseats/internal/domain/order"
	"github.com/xenking/timeseats/internal/domain/product"
	"github.com/xenking/timeseats/internal/domain/slot"
	"github.com/xenking/timeseats/internal/domain/ticket"
	"github.com/xenking/timeseats/internal/events"
)

// --- In-memory fakes backing the full handler stack ---

type fakeProducts struct {
	byID map[string]*product.Product
}

func (f *fakeProducts) List(_ context.Context) ([]product.Product, error) {
	var out []product.Product
	for _, p := range f.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProducts) SearchByName(_ context.Context, _ string) ([]product.Product, error) {
	return nil, nil
}

func (f *fakeProducts) Create(_ context.Context, p *product.Product) error {
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}

func (f *fakeProducts) Update(_ context.Context, p *product.Product) error {
	if _, ok := f.byID[p.ID]; !ok {
		return product.ErrNotFound
	}
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}

func (f *fakeProducts) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return product.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeInventory struct {
	rows map[string]*inventory.Row
}

func invKey(productID, slotID string) string { return productID + "|" + slotID }

func (f *fakeInventory) Get(_ context.Context, productID, slotID string) (*inventory.Row, error) {
	row, ok := f.rows[invKey(productID, slotID)]
	if !ok {
		return nil, inventory.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeInventory) BySlot(_ context.Context, slotID string) ([]inventory.Row, error) {
	var out []inventory.Row
	for _, row := range f.rows {
		if row.SlotID == slotID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeInventory) ByProduct(_ context.Context, productID string) ([]inventory.Row, error) {
	var out []inventory.Row
	for _, row := range f.rows {
		if row.ProductID == productID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeInventory) SetInitial(_ context.Context, productID, slotID string, qty int) (*inventory.Row, error) {
	key := invKey(productID, slotID)
	row, ok := f.rows[key]
	if !ok {
		row = &inventory.Row{ProductID: productID, SlotID: slotID}
		f.rows[key] = row
	}
	if qty < row.Reserved+row.Sold {
		return nil, inventory.ErrLevelTooLow
	}
	row.Initial = qty
	cp := *row
	return &cp, nil
}

func (f *fakeInventory) Reserve(_ context.Context, productID, slotID string, qty int) error {
	return f.one(productID, slotID, qty, (*inventory.Row).Reserve)
}

func (f *fakeInventory) Release(_ context.Context, productID, slotID string, qty int) error {
	return f.one(productID, slotID, qty, (*inventory.Row).Release)
}

func (f *fakeInventory) ConvertToSold(_ context.Context, productID, slotID string, qty int) error {
	return f.one(productID, slotID, qty, (*inventory.Row).ConvertToSold)
}

func (f *fakeInventory) one(productID, slotID string, qty int, op func(*inventory.Row, int) error) error {
	row, ok := f.rows[invKey(productID, slotID)]
	if !ok {
		return inventory.ErrNotFound
	}
	return op(row, qty)
}

func (f *fakeInventory) ReserveItems(_ context.Context, slotID string, items []inventory.ItemQty) error {
	return f.batch(slotID, items, (*inventory.Row).Reserve)
}

func (f *fakeInventory) ReleaseItems(_ context.Context, slotID string, items []inventory.ItemQty) error {
	return f.batch(slotID, items, (*inventory.Row).Release)
}

func (f *fakeInventory) ConvertItems(_ context.Context, slotID string, items []inventory.ItemQty) error {
	return f.batch(slotID, items, (*inventory.Row).ConvertToSold)
}

func (f *fakeInventory) UnconvertItems(_ context.Context, slotID string, items []inventory.ItemQty) error {
	for _, item := range items {
		row, ok := f.rows[invKey(item.ProductID, slotID)]
		if !ok {
			return inventory.ErrNotFound
		}
		row.Sold -= item.Qty
		row.Reserved += item.Qty
	}
	return nil
}

func (f *fakeInventory) batch(slotID string, items []inventory.ItemQty, op func(*inventory.Row, int) error) error {
	staged := make(map[string]inventory.Row, len(items))
	for _, item := range items {
		row, ok := f.rows[invKey(item.ProductID, slotID)]
		if !ok {
			return inventory.ErrNotFound
		}
		cp := *row
		if err := op(&cp, item.Qty); err != nil {
			return err
		}
		staged[invKey(item.ProductID, slotID)] = cp
	}
	for key, row := range staged {
		cp := row
		f.rows[key] = &cp
	}
	return nil
}

func (f *fakeInventory) HasActiveStock(_ context.Context, productID string) (bool, error) {
	for _, row := range f.rows {
		if row.ProductID == productID && (row.Reserved > 0 || row.Sold > 0) {
			return true, nil
		}
	}
	return false, nil
}

type fakeSlots struct {
	byID map[string]*slot.SalesSlot
}

func (f *fakeSlots) GetByID(_ context.Context, id string) (*slot.SalesSlot, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, slot.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSlots) List(_ context.Context) ([]slot.SalesSlot, error) {
	var out []slot.SalesSlot
	for _, s := range f.byID {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeSlots) ListActive(_ context.Context) ([]slot.SalesSlot, error) {
	var out []slot.SalesSlot
	for _, s := range f.byID {
		if s.IsActive {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSlots) ContainingTime(_ context.Context, t time.Time) ([]slot.SalesSlot, error) {
	var out []slot.SalesSlot
	for _, s := range f.byID {
		if s.Contains(t) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSlots) Overlapping(_ context.Context, start, end time.Time) ([]slot.SalesSlot, error) {
	var out []slot.SalesSlot
	for _, s := range f.byID {
		if s.StartTime.Before(end) && s.EndTime.After(start) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSlots) Create(_ context.Context, s *slot.SalesSlot) error {
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSlots) Update(_ context.Context, s *slot.SalesSlot) error {
	if _, ok := f.byID[s.ID]; !ok {
		return slot.ErrNotFound
	}
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSlots) UpdateActive(_ context.Context, id string, active bool) (*slot.SalesSlot, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, slot.ErrNotFound
	}
	s.IsActive = active
	cp := *s
	return &cp, nil
}

func (f *fakeSlots) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return slot.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

type fakeOrders struct {
	byID map[string]*order.Order
}

func (f *fakeOrders) Create(_ context.Context, o *order.Order) error {
	cp := *o
	f.byID[o.ID] = &cp
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) List(_ context.Context) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.byID {
		out = append(out, *o)
	}
	return out, nil
}

func (f *fakeOrders) ListByStatus(_ context.Context, status order.Status) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.byID {
		if o.Status == status {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListBySlot(_ context.Context, slotID string) ([]order.Order, error) {
	var out []order.Order
	for _, o := range f.byID {
		if o.SlotID == slotID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) UpdateStatus(_ context.Context, id string, from, to order.Status) error {
	o, ok := f.byID[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != from {
		return order.ErrStatusConflict
	}
	o.Status = to
	return nil
}

type fakeTickets struct {
	byOrder map[string]*ticket.Ticket
}

func (f *fakeTickets) Create(_ context.Context, t *ticket.Ticket) error {
	if _, ok := f.byOrder[t.OrderID]; ok {
		return ticket.ErrAlreadyIssued
	}
	cp := *t
	f.byOrder[t.OrderID] = &cp
	return nil
}

func (f *fakeTickets) GetByID(_ context.Context, id string) (*ticket.Ticket, error) {
	for _, t := range f.byOrder {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ticket.ErrNotFound
}

func (f *fakeTickets) GetByOrderID(_ context.Context, orderID string) (*ticket.Ticket, error) {
	t, ok := f.byOrder[orderID]
	if !ok {
		return nil, ticket.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) GetByNumber(_ context.Context, number string) (*ticket.Ticket, error) {
	for _, t := range f.byOrder {
		if t.TicketNumber == number {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ticket.ErrNotFound
}

func (f *fakeTickets) List(_ context.Context) ([]ticket.Ticket, error) {
	var out []ticket.Ticket
	for _, t := range f.byOrder {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeTickets) ListByPaid(_ context.Context, paid bool) ([]ticket.Ticket, error) {
	var out []ticket.Ticket
	for _, t := range f.byOrder {
		if t.IsPaid == paid {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTickets) ListByDelivered(_ context.Context, delivered bool) ([]ticket.Ticket, error) {
	var out []ticket.Ticket
	for _, t := range f.byOrder {
		if t.IsDelivered == delivered {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTickets) SetPaid(_ context.Context, id string, paid bool) (*ticket.Ticket, error) {
	for _, t := range f.byOrder {
		if t.ID == id {
			t.IsPaid = paid
			cp := *t
			return &cp, nil
		}
	}
	return nil, ticket.ErrNotFound
}

func (f *fakeTickets) SetDelivered(_ context.Context, id string, delivered bool) (*ticket.Ticket, error) {
	for _, t := range f.byOrder {
		if t.ID == id {
			t.IsDelivered = delivered
			cp := *t
			return &cp, nil
		}
	}
	return nil, ticket.ErrNotFound
}

func (f *fakeTickets) Delete(_ context.Context, id string) error {
	for orderID, t := range f.byOrder {
		if t.ID == id {
			delete(f.byOrder, orderID)
			return nil
		}
	}
	return ticket.ErrNotFound
}

// --- Helpers ---

type env struct {
	router    http.Handler
	products  *fakeProducts
	inv       *fakeInventory
	slots     *fakeSlots
	scheduler *slot.Scheduler
}

func newEnv(t *testing.T) *env {
	t.Helper()

	products := &fakeProducts{byID: make(map[string]*product.Product)}
	inv := &fakeInventory{rows: make(map[string]*inventory.Row)}
	slots := &fakeSlots{byID: make(map[string]*slot.SalesSlot)}
	orders := &fakeOrders{byID: make(map[string]*order.Order)}
	tickets := &fakeTickets{byOrder: make(map[string]*ticket.Ticket)}

	catalog := product.NewService(products, inv)
	ledger := inventory.NewLedger(inv, products)
	scheduler := slot.NewScheduler(slots, inv)
	issuer := ticket.NewIssuer(tickets, ticket.NewPaymentPolicy(ticket.PaymentCash))
	orderSvc := order.NewService(products, inv, orders, issuer, events.Nop{})

	h := NewHandler(catalog, ledger, scheduler, orderSvc, issuer, nil)
	return &env{
		router:    h.Routes(),
		products:  products,
		inv:       inv,
		slots:     slots,
		scheduler: scheduler,
	}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func (e *env) addProduct(id string, price int64) {
	e.products.byID[id] = &product.Product{ID: id, Name: "product " + id, Price: decimal.NewFromInt(price)}
}

func (e *env) addSlot(id string, start, end time.Time, active bool) {
	e.slots.byID[id] = &slot.SalesSlot{ID: id, StartTime: start, EndTime: end, IsActive: active}
}

func (e *env) stock(productID, slotID string, initial int) {
	e.inv.rows[invKey(productID, slotID)] = &inventory.Row{
		ProductID: productID, SlotID: slotID, Initial: initial,
	}
}

// --- Tests ---

func TestProducts_CreateAndGet(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/products/", map[string]any{
		"name":  "Yakisoba",
		"price": "500",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	created := decodeBody[productResponse](t, w)
	assert.Equal(t, "Yakisoba", created.Name)
	require.NotEmpty(t, created.ID)

	w = e.do(t, http.MethodGet, "/products/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProducts_GetMissing(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/products/ghost", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	body := decodeBody[errorResponse](t, w)
	assert.Equal(t, http.StatusNotFound, body.Code)
	assert.NotEmpty(t, body.Message)
}

func TestProducts_CreateInvalidBody(t *testing.T) {
	e := newEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/products/", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInventory_SetAndGet(t *testing.T) {
	e := newEnv(t)
	e.addProduct("p1", 500)
	e.addSlot("s1", time.Now(), time.Now().Add(30*time.Minute), true)

	w := e.do(t, http.MethodPut, "/sales-slots/s1/products/p1/inventory", map[string]any{
		"initial_quantity": 15,
	})
	require.Equal(t, http.StatusOK, w.Code)

	row := decodeBody[inventoryResponse](t, w)
	assert.Equal(t, 15, row.Initial)
	assert.Equal(t, 15, row.Available)

	w = e.do(t, http.MethodGet, "/sales-slots/s1/products/p1/inventory", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestInventory_NegativeLevel(t *testing.T) {
	e := newEnv(t)
	e.addProduct("p1", 500)

	w := e.do(t, http.MethodPut, "/sales-slots/s1/products/p1/inventory", map[string]any{
		"initial_quantity": -1,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSlots_CreateUnaligned(t *testing.T) {
	e := newEnv(t)

	start := time.Date(2026, 5, 10, 10, 15, 0, 0, time.UTC)
	w := e.do(t, http.MethodPost, "/sales-slots/", map[string]any{
		"start_time": start,
		"end_time":   start.Add(30 * time.Minute),
		"is_active":  true,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSlots_CreateOverlap(t *testing.T) {
	e := newEnv(t)

	start := time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)
	e.addSlot("existing", start, start.Add(time.Hour), true)

	w := e.do(t, http.MethodPost, "/sales-slots/", map[string]any{
		"start_time": start.Add(30 * time.Minute),
		"end_time":   start.Add(90 * time.Minute),
		"is_active":  true,
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestOrders_ReserveConfirmDeliver(t *testing.T) {
	e := newEnv(t)
	e.addProduct("p1", 500)
	e.stock("p1", "s1", 10)

	// Reserve.
	w := e.do(t, http.MethodPost, "/orders/", map[string]any{
		"sales_slot_id": "s1",
		"items":         []map[string]any{{"product_id": "p1", "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	o := decodeBody[orderResponse](t, w)
	assert.Equal(t, order.StatusReserved, o.Status)

	// Confirm with a settled method: ticket is paid on issue.
	w = e.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm", map[string]any{
		"payment_method": "CARD",
		"transaction_id": "tx-1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	tk := decodeBody[ticketResponse](t, w)
	assert.True(t, tk.IsPaid)
	assert.Equal(t, o.ID, tk.OrderID)

	// Deliver.
	w = e.do(t, http.MethodPost, "/tickets/"+tk.ID+"/deliver", nil)
	require.Equal(t, http.StatusOK, w.Code)
	delivered := decodeBody[ticketResponse](t, w)
	assert.True(t, delivered.IsDelivered)
}

func TestOrders_InsufficientStock(t *testing.T) {
	e := newEnv(t)
	e.addProduct("p1", 500)
	e.stock("p1", "s1", 1)

	w := e.do(t, http.MethodPost, "/orders/", map[string]any{
		"sales_slot_id": "s1",
		"items":         []map[string]any{{"product_id": "p1", "quantity": 5}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestOrders_EmptyItems(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/orders/", map[string]any{
		"sales_slot_id": "s1",
		"items":         []map[string]any{},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrders_UnknownProduct(t *testing.T) {
	e := newEnv(t)
	e.stock("p1", "s1", 5)

	w := e.do(t, http.MethodPost, "/orders/", map[string]any{
		"sales_slot_id": "s1",
		"items":         []map[string]any{{"product_id": "ghost", "quantity": 1}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestOrders_DoubleConfirm(t *testing.T) {
	e := newEnv(t)
	e.addProduct("p1", 500)
	e.stock("p1", "s1", 10)

	w := e.do(t, http.MethodPost, "/orders/", map[string]any{
		"sales_slot_id": "s1",
		"items":         []map[string]any{{"product_id": "p1", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	o := decodeBody[orderResponse](t, w)

	confirm := map[string]any{"payment_method": "CASH"}
	w = e.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm", confirm)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm", confirm)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestOrders_CancelReleasesStock(t *testing.T) {
	e := newEnv(t)
	e.addProduct("p1", 500)
	e.stock("p1", "s1", 3)

	w := e.do(t, http.MethodPost, "/orders/", map[string]any{
		"sales_slot_id": "s1",
		"items":         []map[string]any{{"product_id": "p1", "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	o := decodeBody[orderResponse](t, w)

	w = e.do(t, http.MethodPost, "/orders/"+o.ID+"/cancel", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = e.do(t, http.MethodGet, "/sales-slots/s1/products/p1/inventory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	row := decodeBody[inventoryResponse](t, w)
	assert.Equal(t, 3, row.Available)
}

func TestTickets_DeliverUnpaid(t *testing.T) {
	e := newEnv(t)
	e.addProduct("p1", 500)
	e.stock("p1", "s1", 5)

	w := e.do(t, http.MethodPost, "/orders/", map[string]any{
		"sales_slot_id": "s1",
		"items":         []map[string]any{{"product_id": "p1", "quantity": 1}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	o := decodeBody[orderResponse](t, w)

	// Cash starts unpaid under the test payment policy.
	w = e.do(t, http.MethodPost, "/orders/"+o.ID+"/confirm", map[string]any{"payment_method": "CASH"})
	require.Equal(t, http.StatusCreated, w.Code)
	tk := decodeBody[ticketResponse](t, w)
	require.False(t, tk.IsPaid)

	w = e.do(t, http.MethodPost, "/tickets/"+tk.ID+"/deliver", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Settle at the counter, then deliver.
	w = e.do(t, http.MethodPatch, "/tickets/"+tk.ID+"/payment", map[string]any{"is_paid": true})
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPost, "/tickets/"+tk.ID+"/deliver", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSlots_CurrentNone(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/sales-slots/current", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestOrders_ConfirmUnknownMethod(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/orders/any/confirm", map[string]any{"payment_method": "BARTER"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}
