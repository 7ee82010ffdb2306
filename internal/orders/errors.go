package orders

import "errors"

var (
	ErrEmptyOrder           = errors.New("order must contain at least one item")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidStatus        = errors.New("invalid order status")
	ErrInvalidSignature     = errors.New("payment verification failed")
	ErrForbidden            = errors.New("not authorized to access this order")
)
