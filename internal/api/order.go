package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/timeseats/internal/domain/order"
	"github.com/xenking/timeseats/internal/domain/ticket"
)

type createOrderRequest struct {
	SlotID string             `json:"sales_slot_id"`
	Items  []orderItemRequest `json:"items"`
}

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type confirmOrderRequest struct {
	PaymentMethod ticket.PaymentMethod `json:"payment_method"`
	TransactionID string               `json:"transaction_id"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if slotID := q.Get("sales_slot_id"); slotID != "" {
		orders, err := h.orders.ListBySlot(r.Context(), slotID)
		if err != nil {
			respondDomainError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toOrderResponses(orders))
		return
	}

	if status := q.Get("status"); status != "" {
		st := order.Status(status)
		if !st.Valid() {
			respondErrorMsg(w, http.StatusBadRequest, "unknown order status")
			return
		}
		orders, err := h.orders.ListByStatus(r.Context(), st)
		if err != nil {
			respondDomainError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toOrderResponses(orders))
		return
	}

	orders, err := h.orders.List(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponses(orders))
}

func (h *Handler) createReservation(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SlotID == "" {
		respondErrorMsg(w, http.StatusBadRequest, "sales_slot_id is required")
		return
	}

	items := make([]order.ItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	o, err := h.orders.CreateReservation(r.Context(), req.SlotID, items)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderResponse(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	var req confirmOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.PaymentMethod.Valid() {
		respondErrorMsg(w, http.StatusBadRequest, "unknown payment method")
		return
	}

	t, err := h.orders.Confirm(r.Context(), chi.URLParam(r, "orderID"), req.PaymentMethod, req.TransactionID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toTicketResponse(t))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Cancel(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) orderByTicketNumber(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByTicketNumber(r.Context(), chi.URLParam(r, "ticketNumber"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}
