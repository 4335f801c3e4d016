// Package api exposes the counter engine over HTTP. Handlers stay thin:
// requests are decoded, domain services invoked, and domain errors mapped to
// status codes. No transport concepts leak into the domain packages.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/timeseats/internal/domain/inventory"
	"github.com/xenking/timeseats/internal/domain/order"
	"github.com/xenking/timeseats/internal/domain/product"
	"github.com/xenking/timeseats/internal/domain/slot"
	"github.com/xenking/timeseats/internal/domain/ticket"
	"github.com/xenking/timeseats/internal/redisx"
)

// Handler holds the domain services backing the HTTP surface.
type Handler struct {
	catalog   *product.Service
	ledger    *inventory.Ledger
	scheduler *slot.Scheduler
	orders    *order.Service
	tickets   *ticket.Issuer
	slotCache *redisx.SlotCache // nil when Redis is not configured
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(
	catalog *product.Service,
	ledger *inventory.Ledger,
	scheduler *slot.Scheduler,
	orders *order.Service,
	tickets *ticket.Issuer,
	slotCache *redisx.SlotCache,
) *Handler {
	return &Handler{
		catalog:   catalog,
		ledger:    ledger,
		scheduler: scheduler,
		orders:    orders,
		tickets:   tickets,
		slotCache: slotCache,
	}
}

// Routes mounts every API route on a fresh chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Post("/", h.createProduct)
		r.Get("/{productID}", h.getProduct)
		r.Put("/{productID}", h.updateProduct)
		r.Delete("/{productID}", h.deleteProduct)
		r.Get("/{productID}/inventory", h.productInventory)
	})

	r.Route("/sales-slots", func(r chi.Router) {
		r.Get("/", h.listSlots)
		r.Post("/", h.createSlot)
		r.Get("/current", h.currentSlot)
		r.Get("/next", h.nextSlot)
		r.Get("/{slotID}", h.getSlot)
		r.Put("/{slotID}", h.updateSlot)
		r.Delete("/{slotID}", h.deleteSlot)
		r.Patch("/{slotID}/active", h.toggleSlotActive)
		r.Get("/{slotID}/inventory", h.slotInventory)
		r.Get("/{slotID}/products/{productID}/inventory", h.getInventory)
		r.Put("/{slotID}/products/{productID}/inventory", h.setInventory)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.listOrders)
		r.Post("/", h.createReservation)
		r.Get("/by-ticket/{ticketNumber}", h.orderByTicketNumber)
		r.Get("/{orderID}", h.getOrder)
		r.Post("/{orderID}/confirm", h.confirmOrder)
		r.Post("/{orderID}/cancel", h.cancelOrder)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", h.listTickets)
		r.Get("/number/{ticketNumber}", h.ticketByNumber)
		r.Get("/{ticketID}", h.getTicket)
		r.Patch("/{ticketID}/payment", h.updateTicketPayment)
		r.Post("/{ticketID}/deliver", h.deliverTicket)
		r.Delete("/{ticketID}", h.deleteTicket)
	})

	return r
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondErrorMsg(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Code: status, Message: msg})
}

// respondDomainError maps a domain error to its HTTP representation.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		productNotFound   *order.ProductNotFoundError
		invalidItem       *order.InvalidQuantityError
		invalidState      *order.InvalidStateError
		insufficientStock *inventory.InsufficientStockError
		invalidQuantity   *inventory.InvalidQuantityError
		overlap           *slot.OverlapError
	)

	switch {
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, slot.ErrInvalidTimeRange),
		errors.Is(err, slot.ErrUnaligned),
		errors.Is(err, inventory.ErrNegativeQuantity),
		errors.Is(err, inventory.ErrLevelTooLow),
		errors.As(err, &invalidItem):
		respondErrorMsg(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, slot.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, ticket.ErrNotFound),
		errors.Is(err, inventory.ErrNotFound):
		respondErrorMsg(w, http.StatusNotFound, err.Error())

	case errors.As(err, &invalidState),
		errors.As(err, &overlap),
		errors.Is(err, slot.ErrPastSlot),
		errors.Is(err, slot.ErrActiveInventory),
		errors.Is(err, product.ErrActiveInventory),
		errors.Is(err, ticket.ErrAlreadyIssued):
		respondErrorMsg(w, http.StatusConflict, err.Error())

	case errors.As(err, &productNotFound),
		errors.As(err, &insufficientStock),
		errors.As(err, &invalidQuantity),
		errors.Is(err, ticket.ErrNotPaid):
		respondErrorMsg(w, http.StatusUnprocessableEntity, err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		respondErrorMsg(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondErrorMsg(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
