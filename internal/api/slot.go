package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/timeseats/internal/domain/slot"
)

type createSlotRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	IsActive  bool      `json:"is_active"`
}

type updateSlotRequest struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	IsActive  *bool      `json:"is_active"`
}

type toggleActiveRequest struct {
	IsActive bool `json:"is_active"`
}

type setInventoryRequest struct {
	InitialQuantity int `json:"initial_quantity"`
}

func (h *Handler) listSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		start, err := time.Parse(time.RFC3339, from)
		if err != nil {
			respondErrorMsg(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		end, err := time.Parse(time.RFC3339, to)
		if err != nil {
			respondErrorMsg(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		slots, err := h.scheduler.ListByTimeRange(r.Context(), start, end)
		if err != nil {
			respondDomainError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toSlotResponses(slots))
		return
	}

	var (
		slots []slot.SalesSlot
		err   error
	)
	if q.Get("active") == "true" {
		slots, err = h.scheduler.ListActive(r.Context())
	} else {
		slots, err = h.scheduler.List(r.Context())
	}
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSlotResponses(slots))
}

func (h *Handler) createSlot(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sl, err := h.scheduler.Create(r.Context(), req.StartTime, req.EndTime, req.IsActive)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.invalidateSlotCache(r)
	respondJSON(w, http.StatusCreated, toSlotResponse(sl))
}

func (h *Handler) getSlot(w http.ResponseWriter, r *http.Request) {
	sl, err := h.scheduler.GetByID(r.Context(), chi.URLParam(r, "slotID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toSlotResponse(sl))
}

func (h *Handler) updateSlot(w http.ResponseWriter, r *http.Request) {
	var req updateSlotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	params := slot.UpdateParams{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		IsActive:  req.IsActive,
	}
	sl, err := h.scheduler.Update(r.Context(), chi.URLParam(r, "slotID"), params)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.invalidateSlotCache(r)
	respondJSON(w, http.StatusOK, toSlotResponse(sl))
}

func (h *Handler) deleteSlot(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.Delete(r.Context(), chi.URLParam(r, "slotID")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.invalidateSlotCache(r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggleSlotActive(w http.ResponseWriter, r *http.Request) {
	var req toggleActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sl, err := h.scheduler.ToggleActive(r.Context(), chi.URLParam(r, "slotID"), req.IsActive)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.invalidateSlotCache(r)
	respondJSON(w, http.StatusOK, toSlotResponse(sl))
}

// currentSlot serves the active slot containing now, consulting the Redis
// cache first. A 204 means no slot is currently open.
func (h *Handler) currentSlot(w http.ResponseWriter, r *http.Request) {
	if h.slotCache != nil {
		if sl, ok := h.slotCache.GetCurrent(r.Context()); ok {
			respondJSON(w, http.StatusOK, toSlotResponse(sl))
			return
		}
	}

	sl, err := h.scheduler.Current(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if sl == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if h.slotCache != nil {
		h.slotCache.SetCurrent(r.Context(), sl)
	}
	respondJSON(w, http.StatusOK, toSlotResponse(sl))
}

func (h *Handler) nextSlot(w http.ResponseWriter, r *http.Request) {
	sl, err := h.scheduler.Next(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if sl == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, toSlotResponse(sl))
}

func (h *Handler) slotInventory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.scheduler.Inventory(r.Context(), chi.URLParam(r, "slotID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toInventoryResponses(rows))
}

func (h *Handler) getInventory(w http.ResponseWriter, r *http.Request) {
	row, err := h.ledger.Row(r.Context(), chi.URLParam(r, "productID"), chi.URLParam(r, "slotID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toInventoryResponse(row))
}

func (h *Handler) setInventory(w http.ResponseWriter, r *http.Request) {
	var req setInventoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	row, err := h.ledger.SetInitial(r.Context(),
		chi.URLParam(r, "productID"), chi.URLParam(r, "slotID"), req.InitialQuantity)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toInventoryResponse(row))
}

func (h *Handler) invalidateSlotCache(r *http.Request) {
	if h.slotCache != nil {
		h.slotCache.Invalidate(r.Context())
	}
}
