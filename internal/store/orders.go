package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/models"
)

const orderColumns = `id, user_id, order_number, shipping_street, shipping_city, shipping_state, shipping_pincode,
	payment_method, payment_status, COALESCE(gateway_order_id, ''), COALESCE(gateway_payment_id, ''), status,
	subtotal, tax, delivery_charge, discount, total, delivery_notes, expected_delivery,
	created_at, updated_at, version`

type OrderFilter struct {
	// UserID restricts the listing to one customer; zero lists everyone.
	UserID   int64
	Status   models.OrderStatus
	Page     int
	PageSize int
}

func scanOrder(row rowScanner, order *models.Order) error {
	var expected sql.NullTime
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.OrderNumber,
		&order.ShippingAddress.Street,
		&order.ShippingAddress.City,
		&order.ShippingAddress.State,
		&order.ShippingAddress.Pincode,
		&order.PaymentMethod,
		&order.PaymentStatus,
		&order.GatewayOrderID,
		&order.GatewayPaymentID,
		&order.Status,
		&order.Subtotal,
		&order.Tax,
		&order.DeliveryCharge,
		&order.Discount,
		&order.Total,
		&order.DeliveryNotes,
		&expected,
		&order.CreatedAt,
		&order.UpdatedAt,
		&order.Version,
	)
	if err != nil {
		return err
	}
	if expected.Valid {
		t := expected.Time
		order.ExpectedDelivery = &t
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertOrder writes the order header and its items. order.ID, timestamps,
// version and every item's ID are filled in from the database.
func InsertOrder(ctx context.Context, q Querier, order *models.Order) error {
	var expected sql.NullTime
	if order.ExpectedDelivery != nil {
		expected = sql.NullTime{Time: *order.ExpectedDelivery, Valid: true}
	}

	err := q.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, order_number, shipping_street, shipping_city, shipping_state, shipping_pincode,
		                     payment_method, payment_status, gateway_order_id, status,
		                     subtotal, tax, delivery_charge, discount, total, delivery_notes, expected_delivery,
		                     created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW(), 1)
		 RETURNING id, created_at, updated_at, version`,
		order.UserID, order.OrderNumber,
		order.ShippingAddress.Street, order.ShippingAddress.City, order.ShippingAddress.State, order.ShippingAddress.Pincode,
		order.PaymentMethod, order.PaymentStatus, nullString(order.GatewayOrderID), order.Status,
		order.Subtotal, order.Tax, order.DeliveryCharge, order.Discount, order.Total, order.DeliveryNotes, expected,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("duplicate order number %s: %w", order.OrderNumber, err)
		}
		return fmt.Errorf("create order: %w", err)
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		err := q.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, subtotal, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 RETURNING id, created_at`,
			order.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.Subtotal,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return fmt.Errorf("create order item: %w", err)
		}
	}

	return nil
}

// AppendTracking adds a tracking entry. Entries are returned in insertion
// order by GetOrder.
func AppendTracking(ctx context.Context, q Querier, orderID int64, status, location string) (models.TrackingEvent, error) {
	event := models.TrackingEvent{Status: status, Location: location}

	err := q.QueryRowContext(ctx,
		`INSERT INTO order_tracking (order_id, status, location)
		 VALUES ($1, $2, $3)
		 RETURNING created_at`,
		orderID, status, location).Scan(&event.Timestamp)
	if err != nil {
		return event, fmt.Errorf("append tracking: %w", err)
	}

	return event, nil
}

func GetOrder(ctx context.Context, q Querier, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if err := scanOrder(q.QueryRowContext(ctx, query, id), order); err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := attachItems(ctx, q, []*models.Order{order}); err != nil {
		return nil, err
	}

	tracking, err := listTracking(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Tracking = tracking

	return order, nil
}

// LockOrder reads an order header with FOR UPDATE inside tx. Items and
// tracking are not loaded.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	order := &models.Order{}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	if err := scanOrder(tx.QueryRowContext(ctx, query, id), order); err != nil {
		if database.IsNoRows(err) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	return order, nil
}

func attachItems(ctx context.Context, q Querier, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
		o.Items = []models.OrderItem{}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT oi.id, oi.order_id, oi.product_id, oi.product_name, oi.quantity, oi.unit_price, oi.subtotal, oi.created_at
		 FROM order_items oi
		 WHERE oi.order_id = ANY($1)
		 ORDER BY oi.order_id, oi.id`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.ProductName,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		o := byID[item.OrderID]
		o.Items = append(o.Items, item)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	return nil
}

func listTracking(ctx context.Context, q Querier, orderID int64) ([]models.TrackingEvent, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT status, location, created_at
		 FROM order_tracking
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order tracking: %w", err)
	}
	defer rows.Close()

	events := []models.TrackingEvent{}
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(&e.Status, &e.Location, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan tracking: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

// ListOrders returns a newest-first page of orders with their items.
func ListOrders(ctx context.Context, q Querier, filter OrderFilter) (*OffsetPage, error) {
	var (
		where string
		args  []any
	)
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		where = fmt.Sprintf(" WHERE user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		if where == "" {
			where = fmt.Sprintf(" WHERE status = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND status = $%d", len(args))
		}
	}

	var total int64
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	args = append(args, filter.PageSize, offset)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)-1, len(args))

	orders, err := queryOrders(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}

	return newOffsetPage(orders, total, filter.Page, filter.PageSize), nil
}

func ListOrdersCursor(ctx context.Context, q Querier, userID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1
		  AND (created_at, id) < ($2, $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	orders, err := queryOrders(ctx, q, query, userID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func queryOrders(ctx context.Context, q Querier, query string, args ...any) ([]models.Order, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		var order models.Order
		if err := scanOrder(rows, &order); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		order.Tracking = []models.TrackingEvent{}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	ptrs := make([]*models.Order, len(orders))
	for i := range orders {
		ptrs[i] = &orders[i]
	}
	if err := attachItems(ctx, q, ptrs); err != nil {
		return nil, err
	}

	return orders, nil
}

func UpdateOrderStatus(ctx context.Context, q Querier, id int64, status models.OrderStatus) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

// MarkPaymentCompleted records the gateway payment id and flips the payment
// status to completed.
func MarkPaymentCompleted(ctx context.Context, q Querier, id int64, paymentID string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET payment_status = $1, gateway_payment_id = $2, version = version + 1, updated_at = NOW()
		 WHERE id = $3`,
		models.PaymentStatusCompleted, paymentID, id)
	if err != nil {
		return fmt.Errorf("mark payment completed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

// SetGatewayOrderID records the gateway order opened for an order that does
// not have one yet.
func SetGatewayOrderID(ctx context.Context, q Querier, id int64, gatewayOrderID string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET gateway_order_id = $1, version = version + 1, updated_at = NOW()
		 WHERE id = $2 AND gateway_order_id IS NULL`,
		gatewayOrderID, id)
	if err != nil {
		return fmt.Errorf("set gateway order id: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}

// DeleteOrder removes an order together with its items and tracking log.
func DeleteOrder(ctx context.Context, q Querier, id int64) error {
	result, err := q.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrOrderNotFound
	}

	return nil
}
