package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-pos/hub"
	"github.com/yeremiapane/restaurant-pos/models"
	"github.com/yeremiapane/restaurant-pos/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentSession is what a client needs to confirm a payment.
type PaymentSession struct {
	OrderID         uint            `json:"orderId"`
	ClientSecret    string          `json:"clientSecret"`
	PaymentIntentID string          `json:"paymentIntentId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
}

type PaymentService struct {
	db             *gorm.DB
	gateway        PaymentGateway
	verifier       WebhookVerifier
	publisher      hub.Publisher
	currency       string
	queryTimeout   time.Duration
	paymentTimeout time.Duration
}

func NewPaymentService(db *gorm.DB, gateway PaymentGateway, verifier WebhookVerifier, publisher hub.Publisher, currency string, queryTimeout, paymentTimeout time.Duration) *PaymentService {
	if publisher == nil {
		publisher = hub.Noop{}
	}
	return &PaymentService{
		db:             db,
		gateway:        gateway,
		verifier:       verifier,
		publisher:      publisher,
		currency:       currency,
		queryTimeout:   queryTimeout,
		paymentTimeout: paymentTimeout,
	}
}

// BeginPayment opens a payment intent for the stored order total and moves
// the order to processing. When amount is given it must equal that total.
// Card-present payments are authorized only and captured later.
func (s *PaymentService) BeginPayment(ctx context.Context, orderID uint, amount *decimal.Decimal, presentCard bool) (*PaymentSession, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.IsFinal() {
		return nil, utils.NewConflictError("order %d is already %s", orderID, order.Status)
	}
	if amount != nil && !amount.Equal(order.Total) {
		return nil, utils.NewValidationError("amount does not match order total")
	}
	if !order.Total.IsPositive() {
		return nil, utils.NewValidationError("order total must be greater than zero")
	}

	cents := utils.ToMinorUnits(order.Total)
	method := PaymentMethodCard
	if presentCard {
		method = PaymentMethodCardPresent
	}
	if err := s.abandonOtherIntent(ctx, order, method); err != nil {
		return nil, err
	}
	attempt, err := s.abandonedPayments(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("order-%d-%s-%d", order.ID, method, cents)
	if attempt > 0 {
		// the key of a canceled intent would replay that intent
		key = fmt.Sprintf("%s-r%d", key, attempt)
	}
	req := PaymentIntentRequest{
		OrderID:        order.ID,
		OrderType:      order.OrderType,
		AmountMinor:    cents,
		Currency:       s.currency,
		PaymentMethod:  method,
		ManualCapture:  presentCard,
		IdempotencyKey: key,
	}

	payCtx, cancel := withTimeout(ctx, s.paymentTimeout)
	defer cancel()
	intent, err := s.gateway.CreatePaymentIntent(payCtx, req)
	if err != nil {
		utils.ErrorLogger.Printf("Payment intent for order #%d failed: %v", order.ID, err)
		return nil, utils.NewUpstreamPaymentError("failed to create payment intent", err)
	}

	dbCtx, dbCancel := withTimeout(ctx, s.queryTimeout)
	defer dbCancel()
	err = s.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("payment_intent_id IS NULL OR payment_intent_id = ?", intent.ID)
		changed, err := advanceStatus(q, order.ID, models.OrderStatusProcessing, models.OpenOrderStatuses,
			map[string]interface{}{"payment_intent_id": intent.ID})
		if err != nil {
			return err
		}
		if !changed {
			return utils.NewConflictError("order %d changed while payment was starting", order.ID)
		}
		return recordPayment(tx, order, intent.ID, method, s.currency)
	})
	if err != nil {
		return nil, utils.WrapDBError(err, "failed to attach payment intent")
	}

	order.Status = models.OrderStatusProcessing
	order.PaymentIntentID = &intent.ID
	utils.InfoLogger.Printf("Payment intent %s created for order #%d (%s, %d %s)", intent.ID, order.ID, method, cents, s.currency)
	publishOrderEvent(ctx, s.publisher, hub.EventOrderUpdated, order)

	return &PaymentSession{
		OrderID:         order.ID,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          order.Total,
		Currency:        s.currency,
	}, nil
}

// CapturePayment captures a previously authorized card-present intent. The
// order becomes paid when the processor reports success through the webhook.
func (s *PaymentService) CapturePayment(ctx context.Context, orderID uint) (*PaymentIntent, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusProcessing || order.PaymentIntentID == nil {
		return nil, utils.NewConflictError("order %d has no authorized payment to capture", orderID)
	}

	payCtx, cancel := withTimeout(ctx, s.paymentTimeout)
	defer cancel()
	intent, err := s.gateway.CapturePaymentIntent(payCtx, *order.PaymentIntentID)
	if err != nil {
		utils.ErrorLogger.Printf("Capture for order #%d failed: %v", order.ID, err)
		return nil, utils.NewUpstreamPaymentError("failed to capture payment", err)
	}
	utils.InfoLogger.Printf("Payment intent %s captured for order #%d", intent.ID, order.ID)
	return intent, nil
}

// ConnectionToken returns a token for a card reader to connect to the processor.
func (s *PaymentService) ConnectionToken(ctx context.Context) (string, error) {
	payCtx, cancel := withTimeout(ctx, s.paymentTimeout)
	defer cancel()

	secret, err := s.gateway.CreateConnectionToken(payCtx)
	if err != nil {
		utils.ErrorLogger.Printf("Connection token request failed: %v", err)
		return "", utils.NewUpstreamPaymentError("failed to create connection token", err)
	}
	return secret, nil
}

// HandleWebhook applies a signed processor event to its order. Events are
// idempotent: a transition that already happened is acknowledged and ignored.
// Unknown event types and unknown orders are acknowledged too.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.verifier.VerifyWebhook(payload, signature)
	if err != nil {
		utils.ErrorLogger.Printf("Webhook rejected: %v", err)
		return utils.NewWebhookVerificationError(err)
	}

	var target string
	switch event.Type {
	case EventPaymentSucceeded:
		target = models.OrderStatusPaid
	case EventPaymentFailed:
		target = models.OrderStatusFailed
	case EventPaymentCanceled:
		target = models.OrderStatusCancelled
	default:
		utils.InfoLogger.Printf("Webhook %s: ignoring event type %s", event.ID, event.Type)
		return nil
	}

	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var order models.Order
	applied := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := resolveOrderID(tx, event)
		if err != nil {
			return err
		}
		q := tx
		if target != models.OrderStatusPaid && event.PaymentIntentID != "" {
			// a failure of a superseded intent must not touch the order
			q = tx.Where("payment_intent_id = ?", event.PaymentIntentID)
		}
		applied, err = advanceStatus(q, id, target, models.OpenOrderStatuses, nil)
		if err != nil {
			return err
		}
		if err := markPayment(tx, event); err != nil {
			return err
		}
		return tx.First(&order, id).Error
	})
	if utils.IsKind(err, utils.KindNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		utils.InfoLogger.Printf("Webhook %s (%s): no matching order, acknowledged", event.ID, event.Type)
		return nil
	}
	if err != nil {
		return utils.WrapDBError(err, "failed to apply payment event")
	}

	if !applied {
		utils.InfoLogger.Printf("Webhook %s: order #%d already %s, nothing to do", event.ID, order.ID, order.Status)
		return nil
	}
	utils.InfoLogger.Printf("Webhook %s: order #%d is now %s", event.ID, order.ID, order.Status)
	publishOrderEvent(ctx, s.publisher, hub.EventOrderUpdated, &order)
	return nil
}

// abandonOtherIntent cancels the order's current intent when the customer
// switches payment method, and puts the order back to pending. Retrying with
// the same method keeps the intent. The order is detached from the intent
// before the processor is asked, so a cancel notification for it can no
// longer match the order.
func (s *PaymentService) abandonOtherIntent(ctx context.Context, order *models.Order, method string) error {
	if order.PaymentIntentID == nil {
		return nil
	}
	prev := *order.PaymentIntentID

	var current models.Payment
	err := s.inTx(ctx, func(tx *gorm.DB) error {
		return tx.Where("payment_intent_id = ?", prev).Take(&current).Error
	})
	if err == nil && current.PaymentMethod == method {
		return nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.WrapDBError(err, "failed to load payment")
	}

	err = s.inTx(ctx, func(tx *gorm.DB) error {
		changed, err := advanceStatus(tx.Where("payment_intent_id = ?", prev), order.ID, models.OrderStatusPending,
			[]string{models.OrderStatusProcessing}, map[string]interface{}{"payment_intent_id": nil})
		if err != nil {
			return err
		}
		if !changed {
			return utils.NewConflictError("order %d changed while payment was starting", order.ID)
		}
		return nil
	})
	if err != nil {
		return utils.WrapDBError(err, "failed to release payment intent")
	}

	payCtx, cancel := withTimeout(ctx, s.paymentTimeout)
	defer cancel()
	if err := releaseIntent(payCtx, s.gateway, order.ID, prev); err != nil {
		// balikin ke intent lama, webhook sukses tetap bisa menandai paid
		restoreErr := s.inTx(ctx, func(tx *gorm.DB) error {
			_, err := advanceStatus(tx.Where("payment_intent_id IS NULL"), order.ID, models.OrderStatusProcessing,
				[]string{models.OrderStatusPending}, map[string]interface{}{"payment_intent_id": prev})
			return err
		})
		if restoreErr != nil {
			utils.ErrorLogger.Printf("Failed to restore payment intent %s on order #%d: %v", prev, order.ID, restoreErr)
		}
		return err
	}

	if err := s.inTx(ctx, func(tx *gorm.DB) error {
		return setPaymentStatus(tx, prev, models.PaymentStatusCanceled, nil)
	}); err != nil {
		return utils.WrapDBError(err, "failed to update payment")
	}
	order.Status = models.OrderStatusPending
	order.PaymentIntentID = nil
	return nil
}

func (s *PaymentService) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.db.WithContext(ctx).Transaction(fn)
}

func (s *PaymentService) abandonedPayments(ctx context.Context, orderID uint) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.queryTimeout)
	defer cancel()

	var n int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("order_id = ? AND status = ?", orderID, models.PaymentStatusCanceled).
		Count(&n).Error
	if err != nil {
		return 0, utils.WrapDBError(err, "failed to count payments")
	}
	return n, nil
}

func (s *PaymentService) loadOrder(ctx context.Context, id uint) (*models.Order, error) {
	return findOrder(ctx, s.db, s.queryTimeout, id)
}

// resolveOrderID reads the order id from event metadata and falls back to the
// payment intent reference stored on the order.
func resolveOrderID(tx *gorm.DB, event *PaymentEvent) (uint, error) {
	if raw, ok := event.Metadata["orderId"]; ok {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil && id > 0 {
			return uint(id), nil
		}
	}
	if event.PaymentIntentID == "" {
		return 0, utils.NewNotFoundError("event carries no order reference")
	}
	var order models.Order
	if err := tx.Select("id").Where("payment_intent_id = ?", event.PaymentIntentID).First(&order).Error; err != nil {
		return 0, err
	}
	return order.ID, nil
}

// recordPayment stores the intent once. A replayed request returns the same
// intent id, so an existing row is left alone.
func recordPayment(tx *gorm.DB, order *models.Order, intentID, method, currency string) error {
	payment := models.Payment{
		OrderID:         order.ID,
		PaymentIntentID: intentID,
		PaymentMethod:   method,
		Amount:          order.Total,
		Currency:        currency,
		Status:          models.PaymentStatusRequiresPayment,
	}
	return tx.Omit(clause.Associations).Where(models.Payment{PaymentIntentID: intentID}).FirstOrCreate(&payment).Error
}

func markPayment(tx *gorm.DB, event *PaymentEvent) error {
	if event.PaymentIntentID == "" {
		return nil
	}
	switch event.Type {
	case EventPaymentSucceeded:
		return setPaymentStatus(tx, event.PaymentIntentID, models.PaymentStatusSucceeded,
			map[string]interface{}{"payment_time": time.Now()})
	case EventPaymentFailed:
		return setPaymentStatus(tx, event.PaymentIntentID, models.PaymentStatusFailed, nil)
	case EventPaymentCanceled:
		return setPaymentStatus(tx, event.PaymentIntentID, models.PaymentStatusCanceled, nil)
	}
	return nil
}
