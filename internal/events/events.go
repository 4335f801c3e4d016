// Package events defines the order lifecycle event stream and its Kafka
// publisher. Every event for one order shares a partition key, so consumers
// observe a single order's transitions in order.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the stream.
const (
	TypeOrderReserved   = "OrderReserved"
	TypeOrderConfirmed  = "OrderConfirmed"
	TypeOrderCanceled   = "OrderCanceled"
	TypeTicketDelivered = "TicketDelivered"
)

// Envelope wraps every published event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// ItemQty names a per-product quantity in an event payload.
type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// OrderReservedPayload is emitted after a reservation is persisted.
type OrderReservedPayload struct {
	OrderID     string    `json:"order_id"`
	SlotID      string    `json:"slot_id"`
	Items       []ItemQty `json:"items"`
	TotalAmount string    `json:"total_amount"`
}

// OrderConfirmedPayload is emitted after an order is confirmed and its
// ticket minted.
type OrderConfirmedPayload struct {
	OrderID       string `json:"order_id"`
	TicketNumber  string `json:"ticket_number"`
	PaymentMethod string `json:"payment_method"`
}

// OrderCanceledPayload is emitted after a reservation is canceled.
type OrderCanceledPayload struct {
	OrderID string `json:"order_id"`
}

// TicketDeliveredPayload is emitted when a ticket is marked delivered.
type TicketDeliveredPayload struct {
	TicketID string `json:"ticket_id"`
	OrderID  string `json:"order_id"`
}

// New builds an envelope around the given payload.
func New(eventType, producer, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Publisher delivers envelopes to the event stream. Implementations must not
// block the caller on broker I/O.
type Publisher interface {
	Publish(ctx context.Context, e Envelope)
}

// Nop is a Publisher that drops every event. Used when no brokers are
// configured.
type Nop struct{}

// Publish discards the envelope.
func (Nop) Publish(context.Context, Envelope) {}
