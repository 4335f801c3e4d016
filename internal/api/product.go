package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type productRequest struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	if query := r.URL.Query().Get("q"); query != "" {
		products, err := h.catalog.SearchByName(r.Context(), query)
		if err != nil {
			respondDomainError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, toProductResponses(products))
		return
	}

	products, err := h.catalog.List(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponses(products))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondErrorMsg(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Price.IsNegative() {
		respondErrorMsg(w, http.StatusBadRequest, "price must not be negative")
		return
	}

	p, err := h.catalog.Create(r.Context(), req.Name, req.Price)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toProductResponse(p))
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondErrorMsg(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Price.IsNegative() {
		respondErrorMsg(w, http.StatusBadRequest, "price must not be negative")
		return
	}

	p, err := h.catalog.Update(r.Context(), chi.URLParam(r, "productID"), req.Name, req.Price)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toProductResponse(p))
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "productID")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) productInventory(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.ByProduct(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toInventoryResponses(rows))
}
