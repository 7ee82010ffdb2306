package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/safar/go-grocery-store/internal/models"
	"github.com/safar/go-grocery-store/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFacts struct {
	orders    []store.OrderFact
	items     []store.ItemFact
	newCount  int
	spend     map[int64][]store.CustomerSpend
	stockouts []store.CategoryCount
	err       error
}

func (f *fakeFacts) Orders(context.Context, time.Time, time.Time) ([]store.OrderFact, error) {
	return f.orders, f.err
}

func (f *fakeFacts) Items(context.Context, time.Time, time.Time) ([]store.ItemFact, error) {
	return f.items, nil
}

func (f *fakeFacts) NewCustomers(context.Context, time.Time, time.Time) (int, error) {
	return f.newCount, nil
}

func (f *fakeFacts) CustomerSpend(_ context.Context, start, _ time.Time) ([]store.CustomerSpend, error) {
	return f.spend[start.Unix()], nil
}

func (f *fakeFacts) StockoutsByCategory(context.Context) ([]store.CategoryCount, error) {
	return f.stockouts, nil
}

func TestDashboard(t *testing.T) {
	facts := &fakeFacts{
		orders:   sampleOrders,
		items:    []store.ItemFact{{ProductID: 1, Category: models.CategoryDairy, Quantity: 1, Subtotal: d("640")}},
		newCount: 2,
	}
	svc := NewService(facts)

	dash, err := svc.Dashboard(context.Background(), "month")
	require.NoError(t, err)
	assert.Equal(t, 3, dash.Summary.TotalOrders)
	assert.Equal(t, 2, dash.Summary.NewCustomers)
	assert.Len(t, dash.SalesTrend, 2)
	assert.Len(t, dash.CategoryDistribution, 1)
	assert.Len(t, dash.PaymentMethodDistribution, 2)

	_, err = svc.Dashboard(context.Background(), "fortnight")
	assert.Error(t, err)
}

func TestDashboardPropagatesErrors(t *testing.T) {
	svc := NewService(&fakeFacts{err: errors.New("db down")})
	_, err := svc.Dashboard(context.Background(), "week")
	assert.EqualError(t, err, "db down")
}

func TestCustomersComparesWithPreviousWindow(t *testing.T) {
	w := Window{Start: at("2024-03-10T00:00:00Z"), End: at("2024-03-20T00:00:00Z")}
	facts := &fakeFacts{
		spend: map[int64][]store.CustomerSpend{
			w.Start.Unix():            {{UserID: 1, TotalSpent: d("6000")}, {UserID: 3, TotalSpent: d("10")}},
			w.Previous().Start.Unix(): {{UserID: 1, TotalSpent: d("200")}, {UserID: 2, TotalSpent: d("300")}},
		},
		newCount: 1,
	}

	report, err := NewService(facts).Customers(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, 1, report.NewCustomers)
	assert.Equal(t, 1, report.Retention.RepeatCustomers)
	assert.InDelta(t, 50.0, report.Retention.RetentionRate, 1e-9)
	assert.Equal(t, 1, report.Segments[1].CustomerCount)
	assert.Equal(t, 1, report.Segments[3].CustomerCount)
}

func TestProductsLimitsTopTen(t *testing.T) {
	var items []store.ItemFact
	for i := 1; i <= 12; i++ {
		items = append(items, store.ItemFact{ProductID: int64(i), Quantity: 1, Subtotal: decimal.NewFromInt(int64(i * 10))})
	}

	report, err := NewService(&fakeFacts{items: items}).Products(context.Background(), Window{})
	require.NoError(t, err)
	assert.Len(t, report.TopProducts, 10)
	assert.Len(t, report.ProductPerformance, 12)
	assert.Equal(t, int64(12), report.TopProducts[0].ProductID)
}

func TestStockoutsNeverNil(t *testing.T) {
	counts, err := NewService(&fakeFacts{}).Stockouts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, counts)
	assert.Empty(t, counts)
}
