package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safar/go-grocery-store/internal/analytics"
	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/inventory"
	"github.com/safar/go-grocery-store/internal/orders"
	"github.com/safar/go-grocery-store/internal/sustainability"
	"github.com/safar/go-grocery-store/internal/users"
	"github.com/sirupsen/logrus"
)

type MessageResponse struct {
	Message string `json:"message"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationResponse struct {
	Errors []FieldError `json:"errors"`
}

var serverErrorBody = []byte(`{"message":"Server Error"}` + "\n")

// respondJSON encodes data before writing any header, so a value that cannot
// be encoded is reported as a 500 instead of a truncated body.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(serverErrorBody)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, MessageResponse{Message: message})
}

func respondValidation(w http.ResponseWriter, errs []FieldError) {
	respondJSON(w, http.StatusBadRequest, ValidationResponse{Errors: errs})
}

// respondServiceError maps domain errors to a status and message. Anything
// unrecognised is logged and reported as an opaque 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	var stockErr *database.InsufficientStockError

	switch {
	case errors.As(err, &stockErr):
		respondMessage(w, http.StatusBadRequest, stockErr.Error())
	case errors.Is(err, database.ErrProductNotFound):
		respondMessage(w, http.StatusNotFound, "Product not found")
	case errors.Is(err, database.ErrOrderNotFound):
		respondMessage(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, database.ErrUserNotFound):
		respondMessage(w, http.StatusNotFound, "User not found")
	case errors.Is(err, database.ErrDuplicateEmail):
		respondMessage(w, http.StatusBadRequest, "User already exists")
	case errors.Is(err, database.ErrProductInUse):
		respondMessage(w, http.StatusConflict, "Product is referenced by existing orders")
	case errors.Is(err, database.ErrOptimisticLockFailed):
		respondMessage(w, http.StatusConflict, "Product was modified concurrently, reload and retry")
	case errors.Is(err, orders.ErrForbidden):
		respondMessage(w, http.StatusUnauthorized, "Not authorized")
	case errors.Is(err, orders.ErrInvalidSignature):
		respondMessage(w, http.StatusBadRequest, "Payment verification failed")
	case errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidPaymentMethod),
		errors.Is(err, orders.ErrInvalidStatus),
		errors.Is(err, orders.ErrTransitionNotAllowed),
		errors.Is(err, users.ErrInvalidReferral),
		errors.Is(err, inventory.ErrUnknownOperation),
		errors.Is(err, sustainability.ErrUnknownPackaging),
		errors.Is(err, sustainability.ErrUnknownTransport),
		errors.Is(err, analytics.ErrInvalidWindow):
		respondMessage(w, http.StatusBadRequest, err.Error())
	default:
		log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		respondMessage(w, http.StatusInternalServerError, "Server Error")
	}
}
