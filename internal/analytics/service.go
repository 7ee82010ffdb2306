package analytics

import (
	"context"
	"time"

	"github.com/safar/go-grocery-store/internal/store"
	"golang.org/x/sync/errgroup"
)

const topProductsLimit = 10

type FactSource interface {
	Orders(ctx context.Context, start, end time.Time) ([]store.OrderFact, error)
	Items(ctx context.Context, start, end time.Time) ([]store.ItemFact, error)
	NewCustomers(ctx context.Context, start, end time.Time) (int, error)
	CustomerSpend(ctx context.Context, start, end time.Time) ([]store.CustomerSpend, error)
	StockoutsByCategory(ctx context.Context) ([]store.CategoryCount, error)
}

type Service struct {
	facts FactSource
	now   func() time.Time
}

func NewService(facts FactSource) *Service {
	return &Service{facts: facts, now: time.Now}
}

type Dashboard struct {
	Summary                   Summary      `json:"summary"`
	SalesTrend                []TrendPoint `json:"salesTrend"`
	CategoryDistribution      []NamedValue `json:"categoryDistribution"`
	PaymentMethodDistribution []NamedValue `json:"paymentMethodDistribution"`
}

func (s *Service) Dashboard(ctx context.Context, timeRange string) (*Dashboard, error) {
	w, err := WindowFor(timeRange, s.now())
	if err != nil {
		return nil, err
	}

	var (
		orders       []store.OrderFact
		items        []store.ItemFact
		newCustomers int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = s.facts.Orders(gctx, w.Start, w.End)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.facts.Items(gctx, w.Start, w.End)
		return err
	})
	g.Go(func() error {
		var err error
		newCustomers, err = s.facts.NewCustomers(gctx, w.Start, w.End)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Dashboard{
		Summary:                   Summarize(orders, newCustomers),
		SalesTrend:                Trend(orders, GroupByDay),
		CategoryDistribution:      CategoryDistribution(items),
		PaymentMethodDistribution: PaymentMethodDistribution(orders),
	}, nil
}

type Report struct {
	Start   time.Time    `json:"start"`
	End     time.Time    `json:"end"`
	GroupBy GroupBy      `json:"groupBy"`
	Series  []TrendPoint `json:"series"`
	Summary Summary      `json:"summary"`
}

func (s *Service) Report(ctx context.Context, w Window, groupBy GroupBy) (*Report, error) {
	orders, err := s.facts.Orders(ctx, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	return &Report{
		Start:   w.Start,
		End:     w.End,
		GroupBy: groupBy,
		Series:  Trend(orders, groupBy),
		Summary: Summarize(orders, 0),
	}, nil
}

type CustomerReport struct {
	NewCustomers int            `json:"newCustomers"`
	Retention    Retention      `json:"customerRetention"`
	Segments     []SegmentStats `json:"customerSegmentation"`
}

func (s *Service) Customers(ctx context.Context, w Window) (*CustomerReport, error) {
	var (
		current, previous []store.CustomerSpend
		newCustomers      int
	)
	prev := w.Previous()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.facts.CustomerSpend(gctx, w.Start, w.End)
		return err
	})
	g.Go(func() error {
		var err error
		previous, err = s.facts.CustomerSpend(gctx, prev.Start, prev.End)
		return err
	})
	g.Go(func() error {
		var err error
		newCustomers, err = s.facts.NewCustomers(gctx, w.Start, w.End)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &CustomerReport{
		NewCustomers: newCustomers,
		Retention:    ComputeRetention(previous, current),
		Segments:     Segmentation(current),
	}, nil
}

type ProductReport struct {
	TopProducts        []ProductMetric `json:"topProducts"`
	ProductPerformance []ProductMetric `json:"productPerformance"`
}

func (s *Service) Products(ctx context.Context, w Window) (*ProductReport, error) {
	items, err := s.facts.Items(ctx, w.Start, w.End)
	if err != nil {
		return nil, err
	}

	all := ProductPerformance(items)
	top := all
	if len(top) > topProductsLimit {
		top = top[:topProductsLimit]
	}
	return &ProductReport{TopProducts: top, ProductPerformance: all}, nil
}

func (s *Service) Stockouts(ctx context.Context) ([]store.CategoryCount, error) {
	counts, err := s.facts.StockoutsByCategory(ctx)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = []store.CategoryCount{}
	}
	return counts, nil
}
