package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/safar/go-grocery-store/internal/analytics"
	"github.com/safar/go-grocery-store/internal/api"
	"github.com/safar/go-grocery-store/internal/cache"
	"github.com/safar/go-grocery-store/internal/inventory"
	"github.com/safar/go-grocery-store/internal/models"
	"github.com/safar/go-grocery-store/internal/orders"
	"github.com/safar/go-grocery-store/internal/payment"
	"github.com/safar/go-grocery-store/internal/store"
	"github.com/safar/go-grocery-store/internal/testutil"
	"github.com/safar/go-grocery-store/internal/users"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paymentSecret = "router-secret"

type client struct {
	t      *testing.T
	server *httptest.Server
}

func (c *client) do(method, path string, userID int64, body interface{}) *http.Response {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	}

	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func setupRouter(t *testing.T) (*client, *models.User) {
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	log, _ := test.NewNullLogger()
	responses := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = responses.Close() })

	router := api.NewRouter(api.Config{
		DB: db,
		Orders: orders.NewService(db, payment.OfflineGateway{}, orders.Config{
			Currency:      "INR",
			PaymentSecret: paymentSecret,
			Policy:        orders.ForwardOnlyTransitions{},
		}, log),
		Users:     users.NewService(db, log),
		Analytics: analytics.NewService(store.NewFacts(db)),
		Inventory: inventory.NewService(db, log),
		Cache:     responses,
		CacheTTL:  time.Minute,
		Log:       log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	admin, err := store.CreateUser(context.Background(), db, store.UserInput{
		Email: "admin@example.com",
		Name:  "Admin",
		Role:  models.RoleAdmin,
	})
	require.NoError(t, err)

	return &client{t: t, server: server}, admin
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	c, admin := setupRouter(t)

	resp := c.do(http.MethodGet, "/health", 0, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.do(http.MethodPost, "/api/products", 0, map[string]interface{}{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = c.do(http.MethodPost, "/api/products", admin.ID, map[string]interface{}{
		"name":        "Basmati Rice",
		"description": "Aged long grain rice",
		"price":       600,
		"category":    "groceries",
		"brand":       "India Gate",
		"stock":       10,
		"unit":        "kg",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var product models.Product
	decode(t, resp, &product)

	resp = c.do(http.MethodPost, "/api/users", 0, map[string]string{
		"email": "Shopper@Example.com",
		"name":  "Shopper",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var shopper users.Profile
	decode(t, resp, &shopper)
	assert.Equal(t, "shopper@example.com", shopper.Email)

	resp = c.do(http.MethodPost, "/api/products", shopper.ID, map[string]interface{}{})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	productPath := "/api/products/" + strconv.FormatInt(product.ID, 10)
	resp = c.do(http.MethodGet, productPath, 0, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	resp = c.do(http.MethodGet, productPath, 0, nil)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	resp = c.do(http.MethodPost, "/api/orders", shopper.ID, map[string]interface{}{
		"items": []map[string]interface{}{{"product": product.ID, "quantity": 2}},
		"shippingAddress": map[string]string{
			"street": "1 MG Road", "city": "Pune", "state": "MH", "pincode": "411001",
		},
		"paymentMethod": "card",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var order models.Order
	decode(t, resp, &order)
	assert.True(t, decimal.NewFromInt(1416).Equal(order.Total), "total %s", order.Total)
	assert.True(t, order.DeliveryCharge.IsZero())
	require.NotEmpty(t, order.GatewayOrderID)

	// Placement purges cached product responses.
	resp = c.do(http.MethodGet, productPath, 0, nil)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	decode(t, resp, &product)
	assert.Equal(t, 8, product.Stock)

	orderPath := "/api/orders/" + strconv.FormatInt(order.ID, 10)
	resp = c.do(http.MethodPost, orderPath+"/payment-verify", shopper.ID, map[string]string{
		"razorpay_payment_id": "pay_1",
		"razorpay_order_id":   order.GatewayOrderID,
		"razorpay_signature":  "forged",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = c.do(http.MethodPost, orderPath+"/payment-verify", shopper.ID, map[string]string{
		"razorpay_payment_id": "pay_1",
		"razorpay_order_id":   order.GatewayOrderID,
		"razorpay_signature":  payment.Signature(paymentSecret, order.GatewayOrderID, "pay_1"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verified struct {
		Message string       `json:"message"`
		Order   models.Order `json:"order"`
	}
	decode(t, resp, &verified)
	assert.Equal(t, models.PaymentStatusCompleted, verified.Order.PaymentStatus)

	resp = c.do(http.MethodPut, orderPath+"/status", shopper.ID, map[string]string{"status": "shipped"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = c.do(http.MethodPut, orderPath+"/status", admin.ID, map[string]string{"status": "shipped", "location": "Pune hub"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.do(http.MethodPut, orderPath+"/status", admin.ID, map[string]string{"status": "pending"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = c.do(http.MethodGet, orderPath+"/invoice", shopper.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.do(http.MethodGet, "/api/analytics?timeRange=week", admin.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dashboard analytics.Dashboard
	decode(t, resp, &dashboard)
	assert.Equal(t, 1, dashboard.Summary.TotalOrders)

	resp = c.do(http.MethodGet, "/api/analytics?timeRange=decade", admin.ID, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPlaceOrderFailuresOverHTTP(t *testing.T) {
	c, admin := setupRouter(t)

	resp := c.do(http.MethodPost, "/api/products", admin.ID, map[string]interface{}{
		"name": "Milk", "description": "Toned", "price": 30, "category": "dairy",
		"brand": "Amul", "stock": 1, "unit": "l",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var milk models.Product
	decode(t, resp, &milk)

	address := map[string]string{"street": "s", "city": "c", "state": "st", "pincode": "p"}

	resp = c.do(http.MethodPost, "/api/orders", admin.ID, map[string]interface{}{
		"items":           []map[string]interface{}{{"product": milk.ID, "quantity": 3}},
		"shippingAddress": address,
		"paymentMethod":   "cod",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var msg api.MessageResponse
	decode(t, resp, &msg)
	assert.Equal(t, "Insufficient stock for Milk", msg.Message)

	resp = c.do(http.MethodPost, "/api/orders", admin.ID, map[string]interface{}{
		"items":           []map[string]interface{}{{"product": 999999, "quantity": 1}},
		"shippingAddress": address,
		"paymentMethod":   "cod",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	decode(t, resp, &msg)
	assert.Equal(t, "Product 999999 not found", msg.Message)

	resp = c.do(http.MethodPost, "/api/orders", 0, map[string]interface{}{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = c.do(http.MethodGet, "/api/orders?cursor=%25%25bad", admin.ID, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
