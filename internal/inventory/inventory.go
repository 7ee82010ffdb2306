// Package inventory classifies stock levels, predicts reorder points and
// applies manual stock adjustments.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/safar/go-grocery-store/internal/store"
	"github.com/sirupsen/logrus"
)

type Status string

const (
	StatusOutOfStock Status = "OUT_OF_STOCK"
	StatusLowStock   Status = "LOW_STOCK"
	StatusInStock    Status = "IN_STOCK"
)

const (
	salesWindowDays = 30
	safetyStockDays = 7
)

type Operation string

const (
	OperationIncrease Operation = "increase"
	OperationDecrease Operation = "decrease"
)

var ErrUnknownOperation = errors.New("operation must be increase or decrease")

func StockStatus(stock, threshold int) Status {
	switch {
	case stock <= 0:
		return StatusOutOfStock
	case stock <= threshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}

// IsLow reports whether stock is at or below its alert threshold.
func IsLow(stock, threshold int) bool {
	return stock <= threshold
}

type ReportLine struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Category          string `json:"category"`
	CurrentStock      int    `json:"currentStock"`
	LowStockThreshold int    `json:"lowStockThreshold"`
	Status            Status `json:"status"`
}

func BuildReport(levels []store.StockLevel) []ReportLine {
	lines := make([]ReportLine, 0, len(levels))
	for _, l := range levels {
		lines = append(lines, ReportLine{
			ID:                l.ID,
			Name:              l.Name,
			Category:          string(l.Category),
			CurrentStock:      l.Stock,
			LowStockThreshold: l.LowStockThreshold,
			Status:            StockStatus(l.Stock, l.LowStockThreshold),
		})
	}
	return lines
}

type Reorder struct {
	ProductID               int64   `json:"productId"`
	UnitsSold               int     `json:"unitsSold"`
	AverageDailySales       float64 `json:"averageDailySales"`
	RecommendedReorderPoint int     `json:"recommendedReorderPoint"`
}

// ReorderPoint turns the units sold over the last 30 days into a daily
// average and a seven-day safety stock.
func ReorderPoint(soldLast30Days int) (avg float64, point int) {
	avg = float64(soldLast30Days) / salesWindowDays
	return avg, int(math.Ceil(avg * safetyStockDays))
}

// NotifyLowStock logs an alert when a product has fallen to its threshold.
func NotifyLowStock(log logrus.FieldLogger, change *store.StockChange) {
	if change == nil || !IsLow(change.Stock, change.LowStockThreshold) {
		return
	}
	log.WithFields(logrus.Fields{
		"product_id": change.ProductID,
		"product":    change.Name,
		"stock":      change.Stock,
		"threshold":  change.LowStockThreshold,
	}).Warn("low stock alert")
}

type Service struct {
	db    *sql.DB
	facts *store.Facts
	log   logrus.FieldLogger
	now   func() time.Time
}

func NewService(db *sql.DB, log logrus.FieldLogger) *Service {
	return &Service{db: db, facts: store.NewFacts(db), log: log, now: time.Now}
}

func (s *Service) Report(ctx context.Context) ([]ReportLine, error) {
	levels, err := store.ListStockLevels(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return BuildReport(levels), nil
}

func (s *Service) ReorderPoint(ctx context.Context, productID int64) (*Reorder, error) {
	if _, err := store.GetProduct(ctx, s.db, productID); err != nil {
		return nil, err
	}

	since := s.now().AddDate(0, 0, -salesWindowDays)
	sold, err := s.facts.UnitsSold(ctx, productID, since)
	if err != nil {
		return nil, err
	}

	avg, point := ReorderPoint(sold)
	return &Reorder{
		ProductID:               productID,
		UnitsSold:               sold,
		AverageDailySales:       avg,
		RecommendedReorderPoint: point,
	}, nil
}

// Adjust atomically moves a product's stock up or down. Decreases never
// take stock below zero.
func (s *Service) Adjust(ctx context.Context, productID int64, quantity int, op Operation) (*store.StockChange, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be at least 1")
	}

	var (
		change *store.StockChange
		err    error
	)
	switch op {
	case OperationIncrease:
		change, err = store.IncrementStock(ctx, s.db, productID, quantity)
	case OperationDecrease:
		change, err = store.DecrementStock(ctx, s.db, productID, quantity)
	default:
		return nil, ErrUnknownOperation
	}
	if err != nil {
		return nil, err
	}

	NotifyLowStock(s.log, change)
	return change, nil
}
