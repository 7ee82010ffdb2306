// Package analytics turns order, line item and customer facts into the
// admin dashboard and reports.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/safar/go-grocery-store/internal/store"
	"github.com/shopspring/decimal"
)

type Summary struct {
	TotalSales        decimal.Decimal `json:"totalSales"`
	TotalOrders       int             `json:"totalOrders"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	NewCustomers      int             `json:"newCustomers"`
}

type TrendPoint struct {
	Date   string          `json:"date"`
	Sales  decimal.Decimal `json:"sales"`
	Orders int             `json:"orders"`
}

// NamedValue is one slice of a distribution chart.
type NamedValue struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

func Summarize(orders []store.OrderFact, newCustomers int) Summary {
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.Total)
	}

	avg := decimal.Zero
	if len(orders) > 0 {
		avg = total.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)
	}

	return Summary{
		TotalSales:        total,
		TotalOrders:       len(orders),
		AverageOrderValue: avg,
		NewCustomers:      newCustomers,
	}
}

type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

func ParseGroupBy(s string) (GroupBy, error) {
	switch GroupBy(s) {
	case "", GroupByDay:
		return GroupByDay, nil
	case GroupByWeek, GroupByMonth:
		return GroupBy(s), nil
	}
	return "", fmt.Errorf("%w: groupBy must be day, week or month, got %q", ErrInvalidWindow, s)
}

// bucketKey labels t in UTC: 2006-01-02, 2006-W01 (ISO week) or 2006-01.
func bucketKey(t time.Time, g GroupBy) string {
	t = t.UTC()
	switch g {
	case GroupByWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case GroupByMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// Trend buckets orders by period, ascending.
func Trend(orders []store.OrderFact, g GroupBy) []TrendPoint {
	byKey := make(map[string]*TrendPoint)
	for _, o := range orders {
		key := bucketKey(o.CreatedAt, g)
		p, ok := byKey[key]
		if !ok {
			p = &TrendPoint{Date: key, Sales: decimal.Zero}
			byKey[key] = p
		}
		p.Sales = p.Sales.Add(o.Total)
		p.Orders++
	}

	points := make([]TrendPoint, 0, len(byKey))
	for _, p := range byKey {
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })
	return points
}

func sortedValues(m map[string]decimal.Decimal) []NamedValue {
	values := make([]NamedValue, 0, len(m))
	for name, v := range m {
		values = append(values, NamedValue{Name: name, Value: v})
	}
	sort.Slice(values, func(i, j int) bool {
		if c := values[i].Value.Cmp(values[j].Value); c != 0 {
			return c > 0
		}
		return values[i].Name < values[j].Name
	})
	return values
}

// CategoryDistribution sums line item revenue per product category.
func CategoryDistribution(items []store.ItemFact) []NamedValue {
	m := make(map[string]decimal.Decimal)
	for _, it := range items {
		m[string(it.Category)] = m[string(it.Category)].Add(it.Subtotal)
	}
	return sortedValues(m)
}

// PaymentMethodDistribution counts orders per payment method.
func PaymentMethodDistribution(orders []store.OrderFact) []NamedValue {
	m := make(map[string]decimal.Decimal)
	one := decimal.NewFromInt(1)
	for _, o := range orders {
		m[string(o.PaymentMethod)] = m[string(o.PaymentMethod)].Add(one)
	}
	return sortedValues(m)
}

type Segment string

const (
	SegmentVIP     Segment = "VIP"
	SegmentPremium Segment = "Premium"
	SegmentRegular Segment = "Regular"
	SegmentNew     Segment = "New"
)

var (
	vipThreshold     = decimal.NewFromInt(10000)
	premiumThreshold = decimal.NewFromInt(5000)
	regularThreshold = decimal.NewFromInt(1000)
)

func SegmentFor(spent decimal.Decimal) Segment {
	switch {
	case spent.GreaterThanOrEqual(vipThreshold):
		return SegmentVIP
	case spent.GreaterThanOrEqual(premiumThreshold):
		return SegmentPremium
	case spent.GreaterThanOrEqual(regularThreshold):
		return SegmentRegular
	default:
		return SegmentNew
	}
}

type SegmentStats struct {
	Segment       Segment         `json:"segment"`
	CustomerCount int             `json:"customerCount"`
	TotalRevenue  decimal.Decimal `json:"totalRevenue"`
	AverageSpend  decimal.Decimal `json:"averageSpend"`
}

var segmentOrder = []Segment{SegmentVIP, SegmentPremium, SegmentRegular, SegmentNew}

// Segmentation groups customers by what they spent in the window. Every
// segment is reported, empty ones with zero counts.
func Segmentation(spend []store.CustomerSpend) []SegmentStats {
	stats := make(map[Segment]*SegmentStats, len(segmentOrder))
	for _, s := range segmentOrder {
		stats[s] = &SegmentStats{Segment: s, TotalRevenue: decimal.Zero, AverageSpend: decimal.Zero}
	}

	for _, c := range spend {
		st := stats[SegmentFor(c.TotalSpent)]
		st.CustomerCount++
		st.TotalRevenue = st.TotalRevenue.Add(c.TotalSpent)
	}

	out := make([]SegmentStats, 0, len(segmentOrder))
	for _, s := range segmentOrder {
		st := stats[s]
		if st.CustomerCount > 0 {
			st.AverageSpend = st.TotalRevenue.Div(decimal.NewFromInt(int64(st.CustomerCount))).Round(2)
		}
		out = append(out, *st)
	}
	return out
}

type Retention struct {
	RetentionRate     float64 `json:"retentionRate"`
	PreviousCustomers int     `json:"previousCustomers"`
	RepeatCustomers   int     `json:"repeatCustomers"`
}

// ComputeRetention is the share of the previous window's customers who
// ordered again in the current window, as a percentage.
func ComputeRetention(previous, current []store.CustomerSpend) Retention {
	seen := make(map[int64]struct{}, len(previous))
	for _, c := range previous {
		seen[c.UserID] = struct{}{}
	}

	repeat := 0
	for _, c := range current {
		if _, ok := seen[c.UserID]; ok {
			repeat++
		}
	}

	r := Retention{PreviousCustomers: len(seen), RepeatCustomers: repeat}
	if len(seen) > 0 {
		r.RetentionRate = float64(repeat) / float64(len(seen)) * 100
	}
	return r
}

type ProductMetric struct {
	ProductID        int64           `json:"productId"`
	Name             string          `json:"name"`
	Category         string          `json:"category"`
	TotalSold        int             `json:"totalSold"`
	Revenue          decimal.Decimal `json:"revenue"`
	OrderCount       int             `json:"orderCount"`
	AverageOrderSize float64         `json:"averageOrderSize"`
}

// ProductPerformance ranks products by revenue, highest first.
func ProductPerformance(items []store.ItemFact) []ProductMetric {
	byID := make(map[int64]*ProductMetric)
	for _, it := range items {
		m, ok := byID[it.ProductID]
		if !ok {
			m = &ProductMetric{ProductID: it.ProductID, Name: it.ProductName, Category: string(it.Category), Revenue: decimal.Zero}
			byID[it.ProductID] = m
		}
		m.TotalSold += it.Quantity
		m.Revenue = m.Revenue.Add(it.Subtotal)
		m.OrderCount++
	}

	metrics := make([]ProductMetric, 0, len(byID))
	for _, m := range byID {
		m.AverageOrderSize = float64(m.TotalSold) / float64(m.OrderCount)
		metrics = append(metrics, *m)
	}
	sort.Slice(metrics, func(i, j int) bool {
		if c := metrics[i].Revenue.Cmp(metrics[j].Revenue); c != 0 {
			return c > 0
		}
		return metrics[i].ProductID < metrics[j].ProductID
	})
	return metrics
}
