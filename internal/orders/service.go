// Package orders runs the order pipeline: placement, payment verification
// and fulfillment status updates.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/inventory"
	"github.com/safar/go-grocery-store/internal/loyalty"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/safar/go-grocery-store/internal/payment"
	"github.com/safar/go-grocery-store/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	expectedDeliveryAfter = 48 * time.Hour
	gatewayTimeout        = 15 * time.Second
)

type ItemRequest struct {
	ProductID int64
	Quantity  int
}

type PlaceOrderRequest struct {
	Items           []ItemRequest
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
	DeliveryNotes   string
}

type PaymentConfirmation struct {
	PaymentID      string
	GatewayOrderID string
	Signature      string
}

type Config struct {
	Currency      string
	PaymentSecret string
	Policy        TransitionPolicy
}

type Service struct {
	db       *sql.DB
	gateway  payment.Gateway
	currency string
	secret   string
	policy   TransitionPolicy
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(db *sql.DB, gateway payment.Gateway, cfg Config, log logrus.FieldLogger) *Service {
	policy := cfg.Policy
	if policy == nil {
		policy = PermissiveTransitions{}
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "INR"
	}
	return &Service{
		db:       db,
		gateway:  gateway,
		currency: currency,
		secret:   cfg.PaymentSecret,
		policy:   policy,
		log:      log,
		now:      time.Now,
	}
}

// orderEvent is the outbox payload for every order event.
type orderEvent struct {
	OrderID       int64                `json:"orderId"`
	OrderNumber   string               `json:"orderNumber"`
	UserID        int64                `json:"userId"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	Total         decimal.Decimal      `json:"total"`
	Location      string               `json:"location,omitempty"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

func newOrderEvent(o *models.Order, at time.Time) orderEvent {
	return orderEvent{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		OccurredAt:    at.UTC(),
	}
}

func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%d-%s", now.UnixMilli(), suffix)
}

func validatePlaceOrder(req PlaceOrderRequest) error {
	if len(req.Items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("product %d: %w", item.ProductID, ErrInvalidQuantity)
		}
	}
	if !req.PaymentMethod.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	return nil
}

// PlaceOrder decrements stock for every item in input order, prices the
// order and stores it in one transaction: a missing product or short stock
// on any item leaves every product untouched and creates no order.
//
// Cash orders are finalized in that same transaction. Online orders open
// their gateway order after the stock locks are released and are finalized
// in a second short transaction; if either step fails the reserved stock is
// returned and the order removed.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, req PlaceOrderRequest) (*models.Order, error) {
	if err := validatePlaceOrder(req); err != nil {
		return nil, err
	}

	online := payment.RequiresGateway(req.PaymentMethod)

	var (
		order   *models.Order
		changes []*store.StockChange
		award   loyalty.Award
	)

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, changes, err = s.reserve(ctx, tx, userID, req)
		if err != nil {
			return err
		}
		if online {
			return nil
		}
		award, err = s.finalize(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	if online {
		award, err = s.attachGatewayOrder(ctx, order)
		if err != nil {
			s.release(ctx, order)
			return nil, err
		}
	}

	for _, change := range changes {
		inventory.NotifyLowStock(s.log, change)
	}

	s.log.WithFields(logrus.Fields{
		"order_id":       order.ID,
		"order_number":   order.OrderNumber,
		"user_id":        order.UserID,
		"total":          order.Total.StringFixed(2),
		"payment_method": order.PaymentMethod,
	}).Info("order placed")

	if award.TierChanged {
		s.log.WithFields(logrus.Fields{
			"user_id": order.UserID,
			"tier":    award.CurrentTier,
			"points":  award.TotalPoints,
		}).Info("loyalty tier changed")
	}

	return order, nil
}

// reserve decrements stock and inserts the priced order with its initial
// tracking event.
func (s *Service) reserve(ctx context.Context, tx *sql.Tx, userID int64, req PlaceOrderRequest) (*models.Order, []*store.StockChange, error) {
	user, err := store.GetUser(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	items := make([]models.OrderItem, 0, len(req.Items))
	changes := make([]*store.StockChange, 0, len(req.Items))
	subtotal := decimal.Zero

	for _, item := range req.Items {
		change, err := store.DecrementStock(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, nil, err
		}
		changes = append(changes, change)

		line := LineSubtotal(change.Price, item.Quantity)
		subtotal = subtotal.Add(line)
		items = append(items, models.OrderItem{
			ProductID:   item.ProductID,
			ProductName: change.Name,
			Quantity:    item.Quantity,
			UnitPrice:   change.Price,
			Subtotal:    line,
		})
	}

	totals := CalculateTotals(subtotal, decimal.Zero)
	expected := now.Add(expectedDeliveryAfter)

	order := &models.Order{
		UserID:           user.ID,
		OrderNumber:      generateOrderNumber(now),
		Items:            items,
		ShippingAddress:  req.ShippingAddress,
		PaymentMethod:    req.PaymentMethod,
		PaymentStatus:    models.PaymentStatusPending,
		Status:           models.OrderStatusPending,
		Subtotal:         totals.Subtotal,
		Tax:              totals.Tax,
		DeliveryCharge:   totals.DeliveryCharge,
		Discount:         totals.Discount,
		Total:            totals.Total,
		DeliveryNotes:    req.DeliveryNotes,
		ExpectedDelivery: &expected,
	}

	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return nil, nil, err
	}

	event, err := store.AppendTracking(ctx, tx, order.ID, models.TrackingOrderPlaced, models.TrackingLocationOnline)
	if err != nil {
		return nil, nil, err
	}
	order.Tracking = []models.TrackingEvent{event}

	return order, changes, nil
}

// finalize credits loyalty points and queues the order.placed event.
func (s *Service) finalize(ctx context.Context, tx *sql.Tx, order *models.Order) (loyalty.Award, error) {
	user, err := store.GetUser(ctx, tx, order.UserID)
	if err != nil {
		return loyalty.Award{}, err
	}

	award, err := s.awardLoyalty(ctx, tx, user, order.Total)
	if err != nil {
		return loyalty.Award{}, err
	}

	err = store.InsertOutboxEvent(ctx, tx, strconv.FormatInt(order.ID, 10), store.EventOrderPlaced, newOrderEvent(order, s.now()))
	return award, err
}

// attachGatewayOrder opens the remote order for the total, outside any
// transaction, then records its id and finalizes the order.
func (s *Service) attachGatewayOrder(ctx context.Context, order *models.Order) (loyalty.Award, error) {
	gctx, cancel := context.WithTimeout(ctx, gatewayTimeout)
	gatewayOrderID, err := s.gateway.CreateOrder(gctx, payment.MinorUnits(order.Total), s.currency, order.OrderNumber)
	cancel()
	if err != nil {
		return loyalty.Award{}, fmt.Errorf("create gateway order: %w", err)
	}

	var award loyalty.Award
	err = database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.SetGatewayOrderID(ctx, tx, order.ID, gatewayOrderID); err != nil {
			return err
		}
		order.GatewayOrderID = gatewayOrderID

		var err error
		award, err = s.finalize(ctx, tx, order)
		return err
	})
	if err != nil {
		order.GatewayOrderID = ""
		return loyalty.Award{}, err
	}

	order.Version++
	return award, nil
}

// release returns the stock reserved by an order that could not be
// finalized and deletes it. It runs even when ctx is already cancelled.
func (s *Service) release(ctx context.Context, order *models.Order) {
	ctx = context.WithoutCancel(ctx)

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		for _, item := range order.Items {
			if _, err := store.IncrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		return store.DeleteOrder(ctx, tx, order.ID)
	})
	if err != nil {
		s.log.WithError(err).WithField("order_id", order.ID).Error("failed to release order")
		return
	}

	s.log.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	}).Warn("order released")
}

// awardLoyalty credits the order's points and moves the customer to the tier
// their new balance earns.
func (s *Service) awardLoyalty(ctx context.Context, tx *sql.Tx, user *models.User, total decimal.Decimal) (loyalty.Award, error) {
	points := loyalty.Points(total)
	if points == 0 {
		return loyalty.Award{TotalPoints: user.LoyaltyPoints, CurrentTier: loyalty.Tier(user.LoyaltyTier)}, nil
	}

	balance, err := store.AwardLoyaltyPoints(ctx, tx, user.ID, points)
	if err != nil {
		return loyalty.Award{}, err
	}

	award := loyalty.Apply(balance-points, loyalty.Tier(user.LoyaltyTier), total)
	if err := store.SetLoyaltyTier(ctx, tx, user.ID, string(award.CurrentTier)); err != nil {
		return loyalty.Award{}, err
	}
	return award, nil
}

func canAccess(caller *models.User, order *models.Order) bool {
	return caller.IsAdmin() || (caller != nil && caller.ID == order.UserID)
}

// VerifyPayment accepts a gateway confirmation when it names the order's own
// gateway order and its signature matches
// HMAC-SHA256(secret, gatewayOrderId|paymentId). Replaying a valid
// confirmation against the same order rewrites the same fields.
func (s *Service) VerifyPayment(ctx context.Context, caller *models.User, orderID int64, conf PaymentConfirmation) (*models.Order, error) {
	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !canAccess(caller, order) {
			return ErrForbidden
		}

		// A confirmation only settles the gateway order it was issued for.
		if order.GatewayOrderID == "" || conf.GatewayOrderID != order.GatewayOrderID {
			return ErrInvalidSignature
		}

		if !payment.VerifySignature(s.secret, conf.GatewayOrderID, conf.PaymentID, conf.Signature) {
			return ErrInvalidSignature
		}

		if err := store.MarkPaymentCompleted(ctx, tx, order.ID, conf.PaymentID); err != nil {
			return err
		}

		order.PaymentStatus = models.PaymentStatusCompleted
		return store.InsertOutboxEvent(ctx, tx, strconv.FormatInt(order.ID, 10), store.EventOrderPaymentCompleted, newOrderEvent(order, s.now()))
	})
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			s.log.WithField("order_id", orderID).Warn("payment signature mismatch")
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":   orderID,
		"payment_id": conf.PaymentID,
	}).Info("payment verified")

	return store.GetOrder(ctx, s.db, orderID)
}

// UpdateStatus moves an order to status as allowed by the configured
// policy and records a tracking event at location.
func (s *Service) UpdateStatus(ctx context.Context, orderID int64, status models.OrderStatus, location string) (*models.Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w %q", ErrInvalidStatus, status)
	}

	location = strings.TrimSpace(location)
	if location == "" {
		location = models.TrackingDefaultLocation
	}

	var from models.OrderStatus
	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		from = order.Status

		if err := s.policy.Allow(order.Status, status); err != nil {
			return err
		}

		if err := store.UpdateOrderStatus(ctx, tx, order.ID, status); err != nil {
			return err
		}

		if _, err := store.AppendTracking(ctx, tx, order.ID, string(status), location); err != nil {
			return err
		}

		order.Status = status
		event := newOrderEvent(order, s.now())
		event.Location = location
		return store.InsertOutboxEvent(ctx, tx, strconv.FormatInt(order.ID, 10), store.EventOrderStatusUpdated, event)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     from,
		"to":       status,
		"location": location,
	}).Info("order status updated")

	return store.GetOrder(ctx, s.db, orderID)
}

func (s *Service) GetOrder(ctx context.Context, caller *models.User, orderID int64) (*models.Order, error) {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if !canAccess(caller, order) {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOrders returns every order for admins and only the caller's own
// orders otherwise, newest first.
func (s *Service) ListOrders(ctx context.Context, caller *models.User, page, pageSize int) (*store.OffsetPage, error) {
	filter := store.OrderFilter{Page: page, PageSize: pageSize}
	if !caller.IsAdmin() {
		filter.UserID = caller.ID
	}
	return store.ListOrders(ctx, s.db, filter)
}

// ListOwnOrders pages through the caller's orders by keyset cursor.
func (s *Service) ListOwnOrders(ctx context.Context, caller *models.User, cursor string, limit int) (*store.CursorPage, error) {
	if caller == nil {
		return nil, ErrForbidden
	}
	_, limit = store.NormalizePage(1, limit, store.DefaultPageSize)
	return store.ListOrdersCursor(ctx, s.db, caller.ID, cursor, limit)
}

func (s *Service) Invoice(ctx context.Context, caller *models.User, orderID int64) (*payment.Invoice, error) {
	order, err := s.GetOrder(ctx, caller, orderID)
	if err != nil {
		return nil, err
	}
	return payment.NewInvoice(order, s.now()), nil
}
