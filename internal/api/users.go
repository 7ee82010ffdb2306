package api

import (
	"net/http"

	"github.com/safar/go-grocery-store/internal/store"
	"github.com/safar/go-grocery-store/internal/users"
)

type registerRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"required,max=100"`
	ReferralCode string `json:"referralCode" validate:"max=32"`
}

// POST /api/users
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.users.Register(r.Context(), users.RegisterRequest{
		Email:        req.Email,
		Name:         req.Name,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.users.Profile(user))
}

// GET /api/users/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.users.Profile(userFromContext(r.Context())))
}

// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := store.NormalizePage(queryInt(r, "page"), queryInt(r, "limit"), store.DefaultPageSize)
	result, err := h.users.List(r.Context(), page, pageSize)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// GET /api/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}
