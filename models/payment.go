package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment status, mirrors the processor's view of one payment intent
const (
	PaymentStatusRequiresPayment = "requires_payment"
	PaymentStatusSucceeded       = "succeeded"
	PaymentStatusFailed          = "failed"
	PaymentStatusCanceled        = "canceled"
)

// Payment records one payment intent opened for an order. An order may
// collect several when a customer switches between card and reader.
type Payment struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	OrderID         uint            `gorm:"not null;index" json:"order_id"`
	Order           Order           `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	PaymentIntentID string          `gorm:"type:varchar(255);not null;uniqueIndex" json:"payment_intent_id"`
	PaymentMethod   string          `gorm:"type:varchar(20);not null" json:"payment_method"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency        string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status          string          `gorm:"type:varchar(20);not null;default:'requires_payment'" json:"status"`
	PaymentTime     *time.Time      `json:"payment_time"` // Time when payment succeeded
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
