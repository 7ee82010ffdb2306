package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/shopspring/decimal"
)

type OrderFact struct {
	ID            int64                `db:"id"`
	UserID        int64                `db:"user_id"`
	Total         decimal.Decimal      `db:"total"`
	PaymentMethod models.PaymentMethod `db:"payment_method"`
	CreatedAt     time.Time            `db:"created_at"`
}

type ItemFact struct {
	OrderID     int64           `db:"order_id"`
	ProductID   int64           `db:"product_id"`
	ProductName string          `db:"product_name"`
	Category    models.Category `db:"category"`
	Quantity    int             `db:"quantity"`
	Subtotal    decimal.Decimal `db:"subtotal"`
	CreatedAt   time.Time       `db:"created_at"`
}

type CustomerSpend struct {
	UserID     int64           `db:"user_id"`
	TotalSpent decimal.Decimal `db:"total_spent"`
	OrderCount int             `db:"order_count"`
}

type CategoryCount struct {
	Category models.Category `db:"category" json:"category"`
	Count    int             `db:"count" json:"count"`
}

// Facts serves the read-only reporting queries. Windows are half-open:
// start <= created_at < end.
type Facts struct {
	db *sqlx.DB
}

func NewFacts(db *sql.DB) *Facts {
	return &Facts{db: sqlx.NewDb(db, "postgres")}
}

func (f *Facts) Orders(ctx context.Context, start, end time.Time) ([]OrderFact, error) {
	var facts []OrderFact
	err := f.db.SelectContext(ctx, &facts,
		`SELECT id, user_id, total, payment_method, created_at
		 FROM orders
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at, id`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("select order facts: %w", err)
	}
	return facts, nil
}

func (f *Facts) Items(ctx context.Context, start, end time.Time) ([]ItemFact, error) {
	var facts []ItemFact
	err := f.db.SelectContext(ctx, &facts,
		`SELECT oi.order_id, oi.product_id, oi.product_name, p.category,
		        oi.quantity, oi.subtotal, o.created_at
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 JOIN products p ON p.id = oi.product_id
		 WHERE o.created_at >= $1 AND o.created_at < $2
		 ORDER BY o.created_at, oi.id`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("select item facts: %w", err)
	}
	return facts, nil
}

func (f *Facts) NewCustomers(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	err := f.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM users WHERE role = $1 AND created_at >= $2 AND created_at < $3`,
		models.RoleUser, start, end)
	if err != nil {
		return 0, fmt.Errorf("count new customers: %w", err)
	}
	return n, nil
}

func (f *Facts) CustomerSpend(ctx context.Context, start, end time.Time) ([]CustomerSpend, error) {
	var spend []CustomerSpend
	err := f.db.SelectContext(ctx, &spend,
		`SELECT user_id, SUM(total) AS total_spent, COUNT(*) AS order_count
		 FROM orders
		 WHERE created_at >= $1 AND created_at < $2
		 GROUP BY user_id
		 ORDER BY total_spent DESC, user_id`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("select customer spend: %w", err)
	}
	return spend, nil
}

func (f *Facts) StockoutsByCategory(ctx context.Context) ([]CategoryCount, error) {
	var counts []CategoryCount
	err := f.db.SelectContext(ctx, &counts,
		`SELECT category, COUNT(*) AS count
		 FROM products
		 WHERE stock = 0
		 GROUP BY category
		 ORDER BY count DESC, category`)
	if err != nil {
		return nil, fmt.Errorf("select stockouts: %w", err)
	}
	return counts, nil
}

// UnitsSold sums the quantity of productID ordered since the given time,
// ignoring cancelled orders.
func (f *Facts) UnitsSold(ctx context.Context, productID int64, since time.Time) (int, error) {
	var n int
	err := f.db.GetContext(ctx, &n,
		`SELECT COALESCE(SUM(oi.quantity), 0)
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE oi.product_id = $1 AND o.created_at >= $2 AND o.status <> $3`,
		productID, since, models.OrderStatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("sum units sold: %w", err)
	}
	return n, nil
}
