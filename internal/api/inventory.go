package api

import (
	"net/http"

	"github.com/safar/go-grocery-store/internal/inventory"
)

type adjustStockRequest struct {
	Quantity  int    `json:"quantity" validate:"required,min=1"`
	Operation string `json:"operation" validate:"required,oneof=increase decrease"`
}

// GET /api/inventory/report
func (h *Handler) InventoryReport(w http.ResponseWriter, r *http.Request) {
	lines, err := h.inventory.Report(r.Context())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, lines)
}

// GET /api/inventory/{id}/reorder-point
func (h *Handler) ReorderPoint(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	reorder, err := h.inventory.ReorderPoint(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, reorder)
}

// PUT /api/inventory/{id}/stock
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req adjustStockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	change, err := h.inventory.Adjust(r.Context(), id, req.Quantity, inventory.Operation(req.Operation))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	h.cache.Purge(r.Context())

	respondJSON(w, http.StatusOK, change)
}
