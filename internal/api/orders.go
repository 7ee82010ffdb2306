package api

import (
	"errors"
	"net/http"

	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/safar/go-grocery-store/internal/orders"
	"github.com/safar/go-grocery-store/internal/store"
)

type orderItemRequest struct {
	Product  int64 `json:"product" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,min=1"`
}

type shippingAddressRequest struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
}

type placeOrderRequest struct {
	Items           []orderItemRequest      `json:"items" validate:"required,min=1,dive"`
	ShippingAddress *shippingAddressRequest `json:"shippingAddress" validate:"required"`
	PaymentMethod   string                  `json:"paymentMethod" validate:"required,oneof=cod card upi"`
	DeliveryNotes   string                  `json:"deliveryNotes" validate:"max=500"`
}

func (req placeOrderRequest) toService() orders.PlaceOrderRequest {
	items := make([]orders.ItemRequest, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.ItemRequest{ProductID: it.Product, Quantity: it.Quantity})
	}
	return orders.PlaceOrderRequest{
		Items: items,
		ShippingAddress: models.ShippingAddress{
			Street:  req.ShippingAddress.Street,
			City:    req.ShippingAddress.City,
			State:   req.ShippingAddress.State,
			Pincode: req.ShippingAddress.Pincode,
		},
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
		DeliveryNotes: req.DeliveryNotes,
	}
}

type statusRequest struct {
	Status   string `json:"status" validate:"required,oneof=pending confirmed processing shipped delivered cancelled"`
	Location string `json:"location" validate:"max=200"`
}

// paymentVerifyRequest carries the gateway callback fields verbatim.
type paymentVerifyRequest struct {
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

type paymentVerifyResponse struct {
	Message string        `json:"message"`
	Order   *models.Order `json:"order"`
}

// POST /api/orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user := userFromContext(r.Context())
	order, err := h.orders.PlaceOrder(r.Context(), user.ID, req.toService())
	if err != nil {
		respondPlacementError(w, r, h, err)
		return
	}
	h.cache.Purge(r.Context())

	respondJSON(w, http.StatusOK, order)
}

// respondPlacementError reports a missing product as a 400 naming the id,
// the same way a short stock is reported.
func respondPlacementError(w http.ResponseWriter, r *http.Request, h *Handler, err error) {
	var missing *database.ProductNotFoundError
	if errors.As(err, &missing) {
		respondMessage(w, http.StatusBadRequest, missing.Error())
		return
	}
	respondServiceError(w, r, h.log, err)
}

// GET /api/orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	q := r.URL.Query()

	if q.Has("cursor") {
		page, err := h.orders.ListOwnOrders(r.Context(), user, q.Get("cursor"), queryInt(r, "limit"))
		if err != nil {
			if errors.Is(err, store.ErrInvalidCursor) {
				respondValidation(w, []FieldError{{Field: "cursor", Message: "Invalid cursor"}})
				return
			}
			respondServiceError(w, r, h.log, err)
			return
		}
		respondJSON(w, http.StatusOK, page)
		return
	}

	page, pageSize := store.NormalizePage(queryInt(r, "page"), queryInt(r, "limit"), store.DefaultPageSize)
	result, err := h.orders.ListOrders(r.Context(), user, page, pageSize)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GET /api/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), userFromContext(r.Context()), id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// GET /api/orders/{id}/invoice
func (h *Handler) Invoice(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	invoice, err := h.orders.Invoice(r.Context(), userFromContext(r.Context()), id)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, invoice)
}

// PUT /api/orders/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), id, models.OrderStatus(req.Status), req.Location)
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// POST /api/orders/{id}/payment-verify
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req paymentVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	order, err := h.orders.VerifyPayment(r.Context(), userFromContext(r.Context()), id, orders.PaymentConfirmation{
		PaymentID:      req.PaymentID,
		GatewayOrderID: req.OrderID,
		Signature:      req.Signature,
	})
	if err != nil {
		respondServiceError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, paymentVerifyResponse{Message: "Payment verified successfully", Order: order})
}
