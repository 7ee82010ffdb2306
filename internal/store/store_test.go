package store_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/safar/go-grocery-store/internal/database"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/safar/go-grocery-store/internal/store"
	"github.com/safar/go-grocery-store/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProduct(t *testing.T, db *sql.DB, name string, price int64, stock int) *models.Product {
	t.Helper()
	product, err := store.CreateProduct(context.Background(), db, store.ProductInput{
		Name:              name,
		Description:       name + " description",
		Price:             decimal.NewFromInt(price),
		Category:          models.CategoryGroceries,
		Brand:             "Acme",
		Stock:             stock,
		Unit:              "kg",
		Tags:              []string{"staple"},
		LowStockThreshold: 5,
	})
	require.NoError(t, err)
	return product
}

func newUser(t *testing.T, db *sql.DB, email string) *models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), db, store.UserInput{Email: email, Name: "Test User"})
	require.NoError(t, err)
	return user
}

func TestUsers(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	user := newUser(t, db, "one@example.com")
	assert.Equal(t, models.RoleUser, user.Role)
	assert.Equal(t, "BRONZE", user.LoyaltyTier)

	_, err := store.CreateUser(ctx, db, store.UserInput{Email: "one@example.com", Name: "Dup"})
	assert.ErrorIs(t, err, database.ErrDuplicateEmail)

	balance, err := store.AwardLoyaltyPoints(ctx, db, user.ID, 1200)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), balance)

	require.NoError(t, store.SetLoyaltyTier(ctx, db, user.ID, "SILVER"))

	got, err := store.GetUser(ctx, db, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), got.LoyaltyPoints)
	assert.Equal(t, "SILVER", got.LoyaltyTier)

	_, err = store.GetUser(ctx, db, 999999)
	assert.ErrorIs(t, err, database.ErrUserNotFound)

	page, err := store.ListUsers(ctx, db, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 1, page.TotalPages)
}

func TestProductListFilters(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	newProduct(t, db, "Basmati Rice", 120, 40)
	newProduct(t, db, "Brown Rice", 90, 40)
	_, err := store.CreateProduct(ctx, db, store.ProductInput{
		Name:        "Orange Juice",
		Description: "Fresh 100% juice",
		Price:       decimal.NewFromInt(60),
		Category:    models.CategoryBeverages,
		Brand:       "Sunny",
		Stock:       10,
		Unit:        "l",
	})
	require.NoError(t, err)

	page, err := store.ListProducts(ctx, db, store.ProductFilter{Search: "rice", Sort: "price", Page: 1, PageSize: 12})
	require.NoError(t, err)
	products := page.Items.([]models.Product)
	require.Len(t, products, 2)
	assert.Equal(t, "Brown Rice", products[0].Name)
	assert.Equal(t, "Basmati Rice", products[1].Name)

	page, err = store.ListProducts(ctx, db, store.ProductFilter{Category: models.CategoryBeverages, Page: 1, PageSize: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	// A literal percent sign must not act as a wildcard.
	page, err = store.ListProducts(ctx, db, store.ProductFilter{Search: "100%", Page: 1, PageSize: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)

	page, err = store.ListProducts(ctx, db, store.ProductFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Items.([]models.Product), 1)
}

func TestUpdateProductOptimistic(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	product := newProduct(t, db, "Milk", 30, 50)

	price := decimal.NewFromInt(35)
	updated, err := store.UpdateProduct(ctx, db, product.ID, store.ProductPatch{
		Price:           &price,
		ExpectedVersion: &product.Version,
	})
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(price))
	assert.Equal(t, product.Version+1, updated.Version)

	_, err = store.UpdateProduct(ctx, db, product.ID, store.ProductPatch{
		Price:           &price,
		ExpectedVersion: &product.Version,
	})
	assert.ErrorIs(t, err, database.ErrOptimisticLockFailed)

	_, err = store.UpdateProduct(ctx, db, 999999, store.ProductPatch{Price: &price})
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestAddRatingRecomputesAverage(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	product := newProduct(t, db, "Bread", 40, 10)
	user := newUser(t, db, "rater@example.com")

	for _, r := range []int{5, 4, 1} {
		err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
			return store.AddRating(ctx, tx, product.ID, user.ID, r, "ok")
		})
		require.NoError(t, err)
	}

	got, err := store.GetProduct(ctx, db, product.ID)
	require.NoError(t, err)
	require.Len(t, got.Ratings, 3)
	assert.InDelta(t, models.AverageRating(got.Ratings), got.AverageRating, 1e-9)
	assert.InDelta(t, 10.0/3, got.AverageRating, 1e-9)
}

func TestDecrementStock(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	product := newProduct(t, db, "Eggs", 6, 5)

	change, err := store.DecrementStock(ctx, db, product.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, change.Stock)
	assert.Equal(t, "Eggs", change.Name)

	_, err = store.DecrementStock(ctx, db, product.ID, 3)
	var stockErr *database.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Eggs", stockErr.ProductName)
	assert.Equal(t, 2, stockErr.Available)

	_, err = store.DecrementStock(ctx, db, 999999, 1)
	assert.ErrorIs(t, err, database.ErrProductNotFound)

	change, err = store.IncrementStock(ctx, db, product.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 12, change.Stock)
}

func TestConcurrentDecrementNeverOversells(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	product := newProduct(t, db, "Butter", 50, 10)

	concurrency := 8
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.DecrementStock(ctx, db, product.ID, 2)
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.ErrorIs(t, err, database.ErrInsufficientStock)
	}
	assert.Equal(t, 5, successCount)

	got, err := store.GetProduct(ctx, db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestDeleteProductInUse(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := newUser(t, db, "buyer@example.com")
	product := newProduct(t, db, "Tea", 100, 10)
	spare := newProduct(t, db, "Coffee", 100, 10)

	order := testOrder(user.ID, product, 1)
	require.NoError(t, store.InsertOrder(ctx, db, order))

	assert.ErrorIs(t, store.DeleteProduct(ctx, db, product.ID), database.ErrProductInUse)
	assert.NoError(t, store.DeleteProduct(ctx, db, spare.ID))
	assert.ErrorIs(t, store.DeleteProduct(ctx, db, spare.ID), database.ErrProductNotFound)
}

var orderSeq atomic.Int64

func testOrder(userID int64, product *models.Product, quantity int) *models.Order {
	subtotal := product.Price.Mul(decimal.NewFromInt(int64(quantity)))
	tax := subtotal.Mul(decimal.NewFromFloat(0.18)).Round(2)
	delivery := decimal.NewFromInt(50)
	expected := time.Now().Add(48 * time.Hour)
	return &models.Order{
		UserID:          userID,
		OrderNumber:     fmt.Sprintf("ORD-TEST-%d", orderSeq.Add(1)),
		ShippingAddress: models.ShippingAddress{Street: "1 Main St", City: "Pune", State: "MH", Pincode: "411001"},
		PaymentMethod:   models.PaymentMethodCOD,
		PaymentStatus:   models.PaymentStatusPending,
		Status:          models.OrderStatusPending,
		Items: []models.OrderItem{{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    quantity,
			UnitPrice:   product.Price,
			Subtotal:    subtotal,
		}},
		Subtotal:         subtotal,
		Tax:              tax,
		DeliveryCharge:   delivery,
		Discount:         decimal.Zero,
		Total:            subtotal.Add(tax).Add(delivery),
		ExpectedDelivery: &expected,
	}
}

func TestOrderRoundTrip(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := newUser(t, db, "orders@example.com")
	product := newProduct(t, db, "Oats", 250, 10)

	order := testOrder(user.ID, product, 2)
	require.NoError(t, store.InsertOrder(ctx, db, order))
	require.NotZero(t, order.ID)

	_, err := store.AppendTracking(ctx, db, order.ID, models.TrackingOrderPlaced, models.TrackingLocationOnline)
	require.NoError(t, err)
	require.NoError(t, store.UpdateOrderStatus(ctx, db, order.ID, models.OrderStatusShipped))
	_, err = store.AppendTracking(ctx, db, order.ID, string(models.OrderStatusShipped), "Hub")
	require.NoError(t, err)
	require.NoError(t, store.MarkPaymentCompleted(ctx, db, order.ID, "pay_123"))

	got, err := store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, got.Status)
	assert.Equal(t, models.PaymentStatusCompleted, got.PaymentStatus)
	assert.Equal(t, "pay_123", got.GatewayPaymentID)
	assert.Equal(t, "Pune", got.ShippingAddress.City)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Oats", got.Items[0].ProductName)
	require.Len(t, got.Tracking, 2)
	assert.Equal(t, models.TrackingOrderPlaced, got.Tracking[0].Status)
	assert.Equal(t, "Hub", got.Tracking[1].Location)
	assert.True(t, got.Total.Equal(got.Subtotal.Add(got.Tax).Add(got.DeliveryCharge).Sub(got.Discount)))

	_, err = store.GetOrder(ctx, db, 999999)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)
}

func TestOrderItemKeepsNameAtPurchase(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := newUser(t, db, "rename@example.com")
	product := newProduct(t, db, "Jaggery", 80, 10)

	order := testOrder(user.ID, product, 1)
	require.NoError(t, store.InsertOrder(ctx, db, order))

	renamed := "Organic Jaggery Powder"
	_, err := store.UpdateProduct(ctx, db, product.ID, store.ProductPatch{Name: &renamed})
	require.NoError(t, err)

	got, err := store.GetOrder(ctx, db, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Jaggery", got.Items[0].ProductName)

	items, err := store.NewFacts(db).Items(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Jaggery", items[0].ProductName)
}

func TestInsertOrderRejectsInconsistentTotal(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := newUser(t, db, "bad@example.com")
	product := newProduct(t, db, "Salt", 20, 10)

	order := testOrder(user.ID, product, 1)
	order.Total = order.Total.Add(decimal.NewFromInt(1))

	err := store.InsertOrder(ctx, db, order)
	require.Error(t, err)
	assert.True(t, database.IsCheckViolation(err))
}

func TestListOrders(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	alice := newUser(t, db, "alice@example.com")
	bob := newUser(t, db, "bob@example.com")
	product := newProduct(t, db, "Sugar", 45, 100)

	for i := 0; i < 15; i++ {
		require.NoError(t, store.InsertOrder(ctx, db, testOrder(alice.ID, product, 1)))
	}
	require.NoError(t, store.InsertOrder(ctx, db, testOrder(bob.ID, product, 1)))

	all, err := store.ListOrders(ctx, db, store.OrderFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(16), all.Total)

	mine, err := store.ListOrders(ctx, db, store.OrderFilter{UserID: bob.ID, Page: 1, PageSize: 20})
	require.NoError(t, err)
	orders := mine.Items.([]models.Order)
	require.Len(t, orders, 1)
	assert.Equal(t, bob.ID, orders[0].UserID)
	assert.Len(t, orders[0].Items, 1)

	page1, err := store.ListOrdersCursor(ctx, db, alice.ID, "", 10)
	require.NoError(t, err)
	assert.True(t, page1.HasMore)
	assert.NotEmpty(t, page1.NextCursor)

	page2, err := store.ListOrdersCursor(ctx, db, alice.ID, page1.NextCursor, 10)
	require.NoError(t, err)
	assert.False(t, page2.HasMore)
	assert.Len(t, page2.Items.([]models.Order), 5)
}

func TestOutbox(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()

	require.NoError(t, store.InsertOutboxEvent(ctx, db, "42", store.EventOrderPlaced, map[string]any{"orderId": 42}))
	require.NoError(t, store.InsertOutboxEvent(ctx, db, "42", store.EventOrderStatusUpdated, map[string]any{"status": "shipped"}))

	outbox := store.NewOutbox(db)
	events, err := outbox.Unpublished(ctx, 100)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, store.EventOrderPlaced, events[0].EventType)
	assert.JSONEq(t, `{"orderId":42}`, string(events[0].Payload))

	require.NoError(t, outbox.MarkPublished(ctx, events[0].ID))

	events, err = outbox.Unpublished(ctx, 100)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, store.EventOrderStatusUpdated, events[0].EventType)
}

func TestFacts(t *testing.T) {
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	user := newUser(t, db, "facts@example.com")
	product := newProduct(t, db, "Flour", 100, 100)
	require.NoError(t, store.InsertOrder(ctx, db, testOrder(user.ID, product, 3)))

	_, err := store.DecrementStock(ctx, db, newProduct(t, db, "Ghee", 500, 1).ID, 1)
	require.NoError(t, err)

	facts := store.NewFacts(db)
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)

	orders, err := facts.Orders(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.PaymentMethodCOD, orders[0].PaymentMethod)

	items, err := facts.Items(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.CategoryGroceries, items[0].Category)
	assert.Equal(t, 3, items[0].Quantity)

	n, err := facts.NewCustomers(ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sold, err := facts.UnitsSold(ctx, product.ID, start)
	require.NoError(t, err)
	assert.Equal(t, 3, sold)

	stockouts, err := facts.StockoutsByCategory(ctx)
	require.NoError(t, err)
	require.Len(t, stockouts, 1)
	assert.Equal(t, 1, stockouts[0].Count)

	spend, err := facts.CustomerSpend(ctx, start, end)
	require.NoError(t, err)
	require.Len(t, spend, 1)
	assert.Equal(t, 1, spend[0].OrderCount)
}
