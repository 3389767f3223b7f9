package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status order
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusPaid       = "paid"
	OrderStatusFailed     = "failed"
	OrderStatusCancelled  = "cancelled"
)

// Known order types. Anything else is stored as given.
const (
	OrderTypeOnline   = "online"
	OrderTypeDelivery = "delivery"
	OrderTypeKiosk    = "kiosk"
)

// OpenOrderStatuses are the states a payment event may still move an order out of.
var OpenOrderStatuses = []string{OrderStatusPending, OrderStatusProcessing}

func init() {
	// prices travel as JSON numbers, e.g. 12.99 rather than "12.99"
	decimal.MarshalJSONWithoutQuotes = true
}

type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Status          string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	OrderType       string          `gorm:"type:varchar(30);not null;default:'online'" json:"order_type"`
	Subtotal        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"subtotal"`
	Tax             decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"tax"`
	Total           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	PaymentIntentID *string         `gorm:"type:varchar(255);uniqueIndex" json:"payment_intent_id,omitempty"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null" json:"updated_at"`
	OrderItems      []OrderItem     `gorm:"foreignKey:OrderID" json:"order_items,omitempty"`
	Payments        []Payment       `gorm:"foreignKey:OrderID" json:"payments,omitempty"`
}

// IsFinal reports whether the order can no longer change status.
func (o *Order) IsFinal() bool {
	return o.Status == OrderStatusPaid || o.Status == OrderStatusFailed || o.Status == OrderStatusCancelled
}
