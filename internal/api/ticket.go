package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/timeseats/internal/domain/ticket"
)

type ticketPaymentRequest struct {
	IsPaid bool `json:"is_paid"`
}

func (h *Handler) listTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if orderID := q.Get("order_id"); orderID != "" {
		t, err := h.tickets.GetByOrderID(r.Context(), orderID)
		if err != nil {
			respondDomainError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, []ticketResponse{toTicketResponse(t)})
		return
	}

	var (
		tickets []ticket.Ticket
		err     error
	)
	switch {
	case q.Has("paid"):
		tickets, err = h.tickets.ListByPaid(r.Context(), q.Get("paid") == "true")
	case q.Has("delivered"):
		tickets, err = h.tickets.ListByDelivered(r.Context(), q.Get("delivered") == "true")
	default:
		tickets, err = h.tickets.List(r.Context())
	}
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTicketResponses(tickets))
}

func (h *Handler) getTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.tickets.GetByID(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handler) ticketByNumber(w http.ResponseWriter, r *http.Request) {
	t, err := h.tickets.GetByNumber(r.Context(), chi.URLParam(r, "ticketNumber"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handler) updateTicketPayment(w http.ResponseWriter, r *http.Request) {
	var req ticketPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	t, err := h.tickets.SetPaid(r.Context(), chi.URLParam(r, "ticketID"), req.IsPaid)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTicketResponse(t))
}

// deliverTicket hands the order over at the counter. Delivery goes through
// the order service so the payment guard and the lifecycle event both apply.
func (h *Handler) deliverTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.orders.MarkDelivered(r.Context(), chi.URLParam(r, "ticketID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handler) deleteTicket(w http.ResponseWriter, r *http.Request) {
	if err := h.tickets.Delete(r.Context(), chi.URLParam(r, "ticketID")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
