package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	LoyaltyPoints int64     `json:"loyaltyPoints"`
	LoyaltyTier   string    `json:"loyaltyTier"`
	ReferredBy    *int64    `json:"referredBy,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Version       int       `json:"version"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Category string

const (
	CategoryGroceries    Category = "groceries"
	CategoryHousehold    Category = "household"
	CategoryPersonalCare Category = "personalCare"
	CategoryBeverages    Category = "beverages"
	CategorySnacks       Category = "snacks"
	CategoryDairy        Category = "dairy"
	CategoryFruits       Category = "fruits"
	CategoryVegetables   Category = "vegetables"
)

var Categories = []Category{
	CategoryGroceries,
	CategoryHousehold,
	CategoryPersonalCare,
	CategoryBeverages,
	CategorySnacks,
	CategoryDairy,
	CategoryFruits,
	CategoryVegetables,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Product struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Price             decimal.Decimal `json:"price"`
	Category          Category        `json:"category"`
	SubCategory       string          `json:"subCategory,omitempty"`
	Brand             string          `json:"brand"`
	Stock             int             `json:"stock"`
	Unit              string          `json:"unit"`
	Discount          decimal.Decimal `json:"discount"`
	Ratings           []Rating        `json:"ratings"`
	AverageRating     float64         `json:"averageRating"`
	Featured          bool            `json:"featured"`
	Tags              []string        `json:"tags"`
	LowStockThreshold int             `json:"lowStockThreshold"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	Version           int             `json:"version"`
}

type Rating struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user"`
	Rating    int       `json:"rating"`
	Review    string    `json:"review"`
	CreatedAt time.Time `json:"date"`
}

// AverageRating is the arithmetic mean of ratings, or zero when there are none.
func AverageRating(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Rating
	}
	return float64(sum) / float64(len(ratings))
}

type PaymentMethod string

const (
	PaymentMethodCOD  PaymentMethod = "cod"
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodUPI  PaymentMethod = "upi"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodCard, PaymentMethodUPI:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists the fulfillment stages in lifecycle order, followed by
// the cancellation escape.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

const (
	TrackingOrderPlaced     = "Order Placed"
	TrackingLocationOnline  = "Online"
	TrackingDefaultLocation = "Processing Center"
)

type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

type Order struct {
	ID               int64           `json:"id"`
	UserID           int64           `json:"user"`
	OrderNumber      string          `json:"orderNumber"`
	Items            []OrderItem     `json:"items"`
	ShippingAddress  ShippingAddress `json:"shippingAddress"`
	PaymentMethod    PaymentMethod   `json:"paymentMethod"`
	PaymentStatus    PaymentStatus   `json:"paymentStatus"`
	GatewayOrderID   string          `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string          `json:"gatewayPaymentId,omitempty"`
	Status           OrderStatus     `json:"status"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Tax              decimal.Decimal `json:"tax"`
	DeliveryCharge   decimal.Decimal `json:"deliveryCharge"`
	Discount         decimal.Decimal `json:"discount"`
	Total            decimal.Decimal `json:"total"`
	DeliveryNotes    string          `json:"deliveryNotes,omitempty"`
	Tracking         []TrackingEvent `json:"trackingInfo"`
	ExpectedDelivery *time.Time      `json:"expectedDelivery,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Version          int             `json:"version"`
}

type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"orderId"`
	ProductID   int64           `json:"product"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type TrackingEvent struct {
	Status    string    `json:"status"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}
