package services

import (
	"context"
	"errors"
	"time"

	"github.com/yeremiapane/restaurant-pos/hub"
	"github.com/yeremiapane/restaurant-pos/models"
	"github.com/yeremiapane/restaurant-pos/utils"
	"gorm.io/gorm"
)

const DefaultQueryTimeout = 10 * time.Second

// OrderEvent is the payload pushed to realtime subscribers.
type OrderEvent struct {
	OrderID   uint   `json:"orderId"`
	Status    string `json:"status"`
	OrderType string `json:"orderType,omitempty"`
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, d)
}

func publishOrderEvent(ctx context.Context, publisher hub.Publisher, event string, order *models.Order) {
	if publisher == nil {
		return
	}
	payload := OrderEvent{OrderID: order.ID, Status: order.Status, OrderType: order.OrderType}
	if err := publisher.Publish(ctx, hub.RoomOrders, event, payload); err != nil {
		utils.ErrorLogger.Printf("Failed to publish %s for order #%d: %v", event, order.ID, err)
	}
}

func findOrder(ctx context.Context, db *gorm.DB, timeout time.Duration, id uint) (*models.Order, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var order models.Order
	if err := db.WithContext(ctx).First(&order, id).Error; err != nil {
		return nil, utils.WrapDBError(orderLookupError(err, id), "failed to load order")
	}
	return &order, nil
}

// advanceStatus moves an order to status `to` only while it is in one of
// `from`. It reports whether a row changed, which makes repeated calls no-ops.
func advanceStatus(tx *gorm.DB, orderID uint, to string, from []string, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// releaseIntent cancels an intent at the processor before the order stops
// pointing at it, so an abandoned intent can never be charged.
func releaseIntent(ctx context.Context, intents IntentCanceler, orderID uint, intentID string) error {
	if _, err := intents.CancelPaymentIntent(ctx, intentID); err != nil {
		if errors.Is(err, ErrIntentNotCancelable) {
			return utils.NewConflictError("payment for order %d is already being completed", orderID)
		}
		utils.ErrorLogger.Printf("Cancel of payment intent %s for order #%d failed: %v", intentID, orderID, err)
		return utils.NewUpstreamPaymentError("failed to cancel payment intent", err)
	}
	utils.InfoLogger.Printf("Payment intent %s for order #%d canceled", intentID, orderID)
	return nil
}

// setPaymentStatus settles a ledger row that is still awaiting payment.
func setPaymentStatus(tx *gorm.DB, intentID, status string, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	return tx.Model(&models.Payment{}).
		Where("payment_intent_id = ? AND status = ?", intentID, models.PaymentStatusRequiresPayment).
		Updates(updates).Error
}
