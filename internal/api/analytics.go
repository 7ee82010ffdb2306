package api

import (
	"net/http"
	"time"

	"github.com/safar/go-grocery-store/internal/analytics"
)

// GET /api/analytics?timeRange=week|month|year
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.analytics.Dashboard(r.Context(), r.URL.Query().Get("timeRange"))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, dashboard)
}

// GET /api/analytics/report?start=&end=&groupBy=day|week|month
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	window, ok := h.window(w, r)
	if !ok {
		return
	}
	groupBy, err := analytics.ParseGroupBy(q.Get("groupBy"))
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	report, err := h.analytics.Report(r.Context(), window, groupBy)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GET /api/analytics/customers?start=&end=
func (h *Handler) Customers(w http.ResponseWriter, r *http.Request) {
	window, ok := h.window(w, r)
	if !ok {
		return
	}

	report, err := h.analytics.Customers(r.Context(), window)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GET /api/analytics/products?start=&end=
func (h *Handler) ProductAnalytics(w http.ResponseWriter, r *http.Request) {
	window, ok := h.window(w, r)
	if !ok {
		return
	}

	report, err := h.analytics.Products(r.Context(), window)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// GET /api/analytics/stockouts
func (h *Handler) Stockouts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.analytics.Stockouts(r.Context())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

func (h *Handler) window(w http.ResponseWriter, r *http.Request) (analytics.Window, bool) {
	q := r.URL.Query()
	window, err := analytics.ParseWindow(q.Get("start"), q.Get("end"), time.Now().UTC())
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return analytics.Window{}, false
	}
	return window, true
}
