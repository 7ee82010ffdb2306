package payment

import (
	"time"

	"github.com/safar/go-grocery-store/internal/models"
	"github.com/shopspring/decimal"
)

const InvoiceStatusGenerated = "GENERATED"

type InvoiceLine struct {
	ProductID int64           `json:"product"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
	Amount    decimal.Decimal `json:"amount"`
}

type Invoice struct {
	InvoiceNumber  string               `json:"invoiceNumber"`
	Date           time.Time            `json:"date"`
	OrderID        int64                `json:"orderId"`
	OrderNumber    string               `json:"orderNumber"`
	Lines          []InvoiceLine        `json:"lines"`
	Subtotal       decimal.Decimal      `json:"subtotal"`
	Tax            decimal.Decimal      `json:"tax"`
	DeliveryCharge decimal.Decimal      `json:"deliveryCharge"`
	Discount       decimal.Decimal      `json:"discount"`
	Total          decimal.Decimal      `json:"total"`
	PaymentMethod  models.PaymentMethod `json:"paymentMethod"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus"`
	TransactionID  string               `json:"transactionId,omitempty"`
	Status         string               `json:"status"`
}

func NewInvoice(order *models.Order, now time.Time) *Invoice {
	lines := make([]InvoiceLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, InvoiceLine{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Amount:    item.Subtotal,
		})
	}

	return &Invoice{
		InvoiceNumber:  "INV-" + order.OrderNumber,
		Date:           now.UTC(),
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Lines:          lines,
		Subtotal:       order.Subtotal,
		Tax:            order.Tax,
		DeliveryCharge: order.DeliveryCharge,
		Discount:       order.Discount,
		Total:          order.Total,
		PaymentMethod:  order.PaymentMethod,
		PaymentStatus:  order.PaymentStatus,
		TransactionID:  order.GatewayPaymentID,
		Status:         InvoiceStatusGenerated,
	}
}
