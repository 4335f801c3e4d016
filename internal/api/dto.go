package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/timeseats/internal/domain/inventory"
	"github.com/xenking/timeseats/internal/domain/order"
	"github.com/xenking/timeseats/internal/domain/product"
	"github.com/xenking/timeseats/internal/domain/slot"
	"github.com/xenking/timeseats/internal/domain/ticket"
)

type productResponse struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toProductResponses(products []product.Product) []productResponse {
	out := make([]productResponse, len(products))
	for i := range products {
		out[i] = toProductResponse(&products[i])
	}
	return out
}

type slotResponse struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSlotResponse(s *slot.SalesSlot) slotResponse {
	return slotResponse{
		ID:        s.ID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		IsActive:  s.IsActive,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toSlotResponses(slots []slot.SalesSlot) []slotResponse {
	out := make([]slotResponse, len(slots))
	for i := range slots {
		out[i] = toSlotResponse(&slots[i])
	}
	return out
}

type inventoryResponse struct {
	ProductID string    `json:"product_id"`
	SlotID    string    `json:"sales_slot_id"`
	Initial   int       `json:"initial_quantity"`
	Reserved  int       `json:"reserved_quantity"`
	Sold      int       `json:"sold_quantity"`
	Available int       `json:"available_quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toInventoryResponse(r *inventory.Row) inventoryResponse {
	return inventoryResponse{
		ProductID: r.ProductID,
		SlotID:    r.SlotID,
		Initial:   r.Initial,
		Reserved:  r.Reserved,
		Sold:      r.Sold,
		Available: r.Available(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toInventoryResponses(rows []inventory.Row) []inventoryResponse {
	out := make([]inventoryResponse, len(rows))
	for i := range rows {
		out[i] = toInventoryResponse(&rows[i])
	}
	return out
}

type orderResponse struct {
	ID          string            `json:"id"`
	SlotID      string            `json:"sales_slot_id"`
	Items       []order.OrderItem `json:"items"`
	Status      order.Status      `json:"status"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:          o.ID,
		SlotID:      o.SlotID,
		Items:       o.Items,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

func toOrderResponses(orders []order.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i])
	}
	return out
}

type ticketResponse struct {
	ID            string               `json:"id"`
	TicketNumber  string               `json:"ticket_number"`
	OrderID       string               `json:"order_id"`
	PaymentMethod ticket.PaymentMethod `json:"payment_method"`
	TransactionID string               `json:"transaction_id,omitempty"`
	IsPaid        bool                 `json:"is_paid"`
	IsDelivered   bool                 `json:"is_delivered"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func toTicketResponse(t *ticket.Ticket) ticketResponse {
	return ticketResponse{
		ID:            t.ID,
		TicketNumber:  t.TicketNumber,
		OrderID:       t.OrderID,
		PaymentMethod: t.PaymentMethod,
		TransactionID: t.TransactionID,
		IsPaid:        t.IsPaid,
		IsDelivered:   t.IsDelivered,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func toTicketResponses(tickets []ticket.Ticket) []ticketResponse {
	out := make([]ticketResponse, len(tickets))
	for i := range tickets {
		out[i] = toTicketResponse(&tickets[i])
	}
	return out
}
