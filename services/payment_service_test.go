package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/yeremiapane/restaurant-pos/hub"
	"github.com/yeremiapane/restaurant-pos/models"
	"github.com/yeremiapane/restaurant-pos/utils"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_secret"

type paymentFixture struct {
	db      *gorm.DB
	menu    testMenu
	pub     *recordingPublisher
	gateway *fakeGateway
	orders  *OrderService
	svc     *PaymentService
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	db := openTestDB(t)
	f := &paymentFixture{
		db:      db,
		menu:    seedTestMenu(t, db),
		pub:     &recordingPublisher{},
		gateway: &fakeGateway{},
	}
	f.orders = newTestOrderServiceWithGateway(db, f.pub, f.gateway)
	verifier := NewStripeGateway("sk_test_unused", testWebhookSecret, time.Second)
	f.svc = NewPaymentService(db, f.gateway, verifier, f.pub, "usd", time.Second, time.Second)
	return f
}

func (f *paymentFixture) kioskOrder(t *testing.T) uint {
	id, err := f.orders.CreateOrder(context.Background(), CreateOrderInput{
		Items: []OrderItemInput{
			{MenuItemID: f.menu.MisoSoup.ID, Quantity: 2},
			{MenuItemID: f.menu.California.ID, Quantity: 1},
		},
		OrderType: models.OrderTypeKiosk,
	})
	require.NoError(t, err)
	return id
}

func (f *paymentFixture) status(t *testing.T, id uint) string {
	var order models.Order
	require.NoError(t, f.db.First(&order, id).Error)
	return order.Status
}

func signedEvent(t *testing.T, secret, eventType, intentID string, orderID uint) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":     "evt_" + intentID,
		"object": "event",
		"type":   eventType,
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       intentID,
				"object":   "payment_intent",
				"metadata": map[string]string{"orderId": fmt.Sprint(orderID)},
			},
		},
	})
	require.NoError(t, err)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	return payload, signed.Header
}

func TestPaymentService_BeginPaymentCardPresent(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)

	session, err := f.svc.BeginPayment(context.Background(), id, money("20.49"), true)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ClientSecret)
	assert.Equal(t, "20.49", session.Amount.StringFixed(2))

	require.Len(t, f.gateway.requests, 1)
	req := f.gateway.requests[0]
	assert.Equal(t, int64(2049), req.AmountMinor)
	assert.Equal(t, PaymentMethodCardPresent, req.PaymentMethod)
	assert.True(t, req.ManualCapture)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, models.OrderTypeKiosk, req.OrderType)
	assert.Equal(t, fmt.Sprintf("order-%d-card_present-2049", id), req.IdempotencyKey)

	var order models.Order
	require.NoError(t, f.db.First(&order, id).Error)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	require.NotNil(t, order.PaymentIntentID)
	assert.Equal(t, session.PaymentIntentID, *order.PaymentIntentID)

	var payments []models.Payment
	require.NoError(t, f.db.Where("order_id = ?", id).Find(&payments).Error)
	require.Len(t, payments, 1)
	assert.Equal(t, PaymentMethodCardPresent, payments[0].PaymentMethod)
	assert.Equal(t, "20.49", payments[0].Amount.StringFixed(2))
	assert.Equal(t, models.PaymentStatusRequiresPayment, payments[0].Status)

	events := f.pub.Events()
	require.Len(t, events, 2)
	assert.Equal(t, hub.EventOrderUpdated, events[1].Event)

	// retrying the same request reuses the intent
	_, err = f.svc.BeginPayment(context.Background(), id, nil, true)
	require.NoError(t, err)
	var count int64
	f.db.Model(&models.Payment{}).Where("order_id = ?", id).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestPaymentService_BeginPaymentOnlineCard(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)

	_, err := f.svc.BeginPayment(context.Background(), id, nil, false)
	require.NoError(t, err)
	require.Len(t, f.gateway.requests, 1)
	assert.Equal(t, PaymentMethodCard, f.gateway.requests[0].PaymentMethod)
	assert.False(t, f.gateway.requests[0].ManualCapture)
}

func TestPaymentService_BeginPaymentRejects(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	_, err := f.svc.BeginPayment(ctx, id, money("5.00"), false)
	assert.True(t, utils.IsKind(err, utils.KindValidation))

	_, err = f.svc.BeginPayment(ctx, 999, nil, false)
	assert.True(t, utils.IsKind(err, utils.KindNotFound))

	_, err = f.orders.CancelOrder(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.BeginPayment(ctx, id, nil, false)
	assert.True(t, utils.IsKind(err, utils.KindConflict))

	assert.Empty(t, f.gateway.requests)
}

func TestPaymentService_GatewayFailureLeavesOrderPending(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	f.gateway.err = errors.New("card_declined: raw processor detail")

	_, err := f.svc.BeginPayment(context.Background(), id, nil, false)
	require.Error(t, err)
	assert.Equal(t, 500, utils.StatusCode(err))
	assert.Equal(t, "payment processor error", utils.PublicMessage(err))
	assert.Equal(t, models.OrderStatusPending, f.status(t, id))
}

func TestPaymentService_CapturePayment(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	_, err := f.svc.CapturePayment(ctx, id)
	assert.True(t, utils.IsKind(err, utils.KindConflict))

	session, err := f.svc.BeginPayment(ctx, id, nil, true)
	require.NoError(t, err)

	intent, err := f.svc.CapturePayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.PaymentIntentID, intent.ID)
	assert.Equal(t, []string{session.PaymentIntentID}, f.gateway.captured)
}

func TestPaymentService_ConnectionToken(t *testing.T) {
	f := newPaymentFixture(t)

	token, err := f.svc.ConnectionToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pst_test_token", token)
}

func TestPaymentService_WebhookSucceededIsIdempotent(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	session, err := f.svc.BeginPayment(ctx, id, nil, true)
	require.NoError(t, err)

	payload, sig := signedEvent(t, testWebhookSecret, EventPaymentSucceeded, session.PaymentIntentID, id)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusPaid, f.status(t, id))

	before := len(f.pub.Events())
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusPaid, f.status(t, id))
	assert.Len(t, f.pub.Events(), before)

	order, err := f.orders.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Len(t, order.Payments, 1)
	assert.Equal(t, models.PaymentStatusSucceeded, order.Payments[0].Status)
	assert.NotNil(t, order.Payments[0].PaymentTime)
}

func TestPaymentService_WebhookBadSignature(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	payload, _ := signedEvent(t, testWebhookSecret, EventPaymentSucceeded, "pi_x", id)
	_, wrongSig := signedEvent(t, "whsec_someone_else", EventPaymentSucceeded, "pi_x", id)

	err := f.svc.HandleWebhook(ctx, payload, wrongSig)
	require.Error(t, err)
	assert.True(t, utils.IsKind(err, utils.KindWebhookVerification))
	assert.Equal(t, 400, utils.StatusCode(err))

	err = f.svc.HandleWebhook(ctx, payload, "")
	assert.True(t, utils.IsKind(err, utils.KindWebhookVerification))

	assert.Equal(t, models.OrderStatusPending, f.status(t, id))
}

func TestPaymentService_WebhookFailureAndCancel(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	failed := f.kioskOrder(t)
	s1, err := f.svc.BeginPayment(ctx, failed, nil, false)
	require.NoError(t, err)
	payload, sig := signedEvent(t, testWebhookSecret, EventPaymentFailed, s1.PaymentIntentID, failed)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusFailed, f.status(t, failed))

	// a later success must not reopen a final order
	payload, sig = signedEvent(t, testWebhookSecret, EventPaymentSucceeded, s1.PaymentIntentID, failed)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusFailed, f.status(t, failed))

	canceled := f.kioskOrder(t)
	s2, err := f.svc.BeginPayment(ctx, canceled, nil, true)
	require.NoError(t, err)
	payload, sig = signedEvent(t, testWebhookSecret, EventPaymentCanceled, s2.PaymentIntentID, canceled)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusCancelled, f.status(t, canceled))
}

func TestPaymentService_WebhookStaleIntentFailureIgnored(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	_, err := f.svc.BeginPayment(ctx, id, nil, false)
	require.NoError(t, err)

	payload, sig := signedEvent(t, testWebhookSecret, EventPaymentFailed, "pi_superseded", id)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusProcessing, f.status(t, id))
}

func TestPaymentService_WebhookUnknownEventsAcknowledged(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	payload, sig := signedEvent(t, testWebhookSecret, "charge.refunded", "pi_x", id)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusPending, f.status(t, id))

	payload, sig = signedEvent(t, testWebhookSecret, EventPaymentSucceeded, "pi_ghost", 9999)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
}

func TestPaymentService_KioskCheckoutEndToEnd(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	id, err := f.orders.CreateOrder(ctx, CreateOrderInput{
		Items: []OrderItemInput{
			{MenuItemID: f.menu.MisoSoup.ID, Quantity: 2, Price: money("4.99")},
			{MenuItemID: f.menu.California.ID, Quantity: 1, Price: money("8.99")},
		},
		Subtotal:  money("18.97"),
		Tax:       money("1.52"),
		Total:     money("20.49"),
		OrderType: models.OrderTypeKiosk,
	})
	require.NoError(t, err)

	session, err := f.svc.BeginPayment(ctx, id, money("20.49"), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2049), f.gateway.requests[0].AmountMinor)
	assert.Equal(t, models.OrderStatusProcessing, f.status(t, id))

	_, err = f.svc.CapturePayment(ctx, id)
	require.NoError(t, err)

	payload, sig := signedEvent(t, testWebhookSecret, EventPaymentSucceeded, session.PaymentIntentID, id)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))

	order, err := f.orders.GetOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, "20.49", order.Total.StringFixed(2))

	var kinds []string
	for _, e := range f.pub.Events() {
		kinds = append(kinds, e.Event)
	}
	assert.Equal(t, []string{hub.EventOrderCreated, hub.EventOrderUpdated, hub.EventOrderUpdated}, kinds)
}

func (f *paymentFixture) payments(t *testing.T, id uint) []models.Payment {
	var payments []models.Payment
	require.NoError(t, f.db.Where("order_id = ?", id).Order("id ASC").Find(&payments).Error)
	return payments
}

func TestPaymentService_CancelOrderCancelsLiveIntent(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	session, err := f.svc.BeginPayment(ctx, id, nil, false)
	require.NoError(t, err)

	order, err := f.orders.CancelOrder(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, order.Status)
	assert.Equal(t, []string{session.PaymentIntentID}, f.gateway.Canceled())

	payments := f.payments(t, id)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusCanceled, payments[0].Status)

	// the processor's own cancel notification changes nothing more
	before := len(f.pub.Events())
	payload, sig := signedEvent(t, testWebhookSecret, EventPaymentCanceled, session.PaymentIntentID, id)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusCancelled, f.status(t, id))
	assert.Len(t, f.pub.Events(), before)
}

func TestPaymentService_CancelOrderKeepsCompletingPayment(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	session, err := f.svc.BeginPayment(ctx, id, nil, true)
	require.NoError(t, err)

	f.gateway.cancelErr = fmt.Errorf("stripe: cancel payment intent: %w", ErrIntentNotCancelable)
	_, err = f.orders.CancelOrder(ctx, id)
	assert.True(t, utils.IsKind(err, utils.KindConflict))
	assert.Equal(t, models.OrderStatusProcessing, f.status(t, id))

	payload, sig := signedEvent(t, testWebhookSecret, EventPaymentSucceeded, session.PaymentIntentID, id)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusPaid, f.status(t, id))

	payments := f.payments(t, id)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusSucceeded, payments[0].Status)
}

func TestPaymentService_CancelOrderProcessorDown(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	_, err := f.svc.BeginPayment(ctx, id, nil, false)
	require.NoError(t, err)

	f.gateway.cancelErr = errors.New("connection reset")
	_, err = f.orders.CancelOrder(ctx, id)
	require.Error(t, err)
	assert.Equal(t, 500, utils.StatusCode(err))
	assert.Equal(t, models.OrderStatusProcessing, f.status(t, id))
}

func TestPaymentService_SwitchingMethodCancelsPreviousIntent(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	online, err := f.svc.BeginPayment(ctx, id, nil, false)
	require.NoError(t, err)
	reader, err := f.svc.BeginPayment(ctx, id, nil, true)
	require.NoError(t, err)
	require.NotEqual(t, online.PaymentIntentID, reader.PaymentIntentID)
	assert.Equal(t, []string{online.PaymentIntentID}, f.gateway.Canceled())

	var order models.Order
	require.NoError(t, f.db.First(&order, id).Error)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	require.NotNil(t, order.PaymentIntentID)
	assert.Equal(t, reader.PaymentIntentID, *order.PaymentIntentID)

	// back to card: a fresh intent, never the canceled one
	again, err := f.svc.BeginPayment(ctx, id, nil, false)
	require.NoError(t, err)
	assert.NotEqual(t, online.PaymentIntentID, again.PaymentIntentID)
	assert.Equal(t, []string{online.PaymentIntentID, reader.PaymentIntentID}, f.gateway.Canceled())
	assert.Equal(t, fmt.Sprintf("order-%d-card-2049-r2", id), f.gateway.requests[len(f.gateway.requests)-1].IdempotencyKey)

	payments := f.payments(t, id)
	require.Len(t, payments, 3)
	assert.Equal(t, models.PaymentStatusCanceled, payments[0].Status)
	assert.Equal(t, models.PaymentStatusCanceled, payments[1].Status)
	assert.Equal(t, models.PaymentStatusRequiresPayment, payments[2].Status)

	// a late cancel notification for an abandoned intent leaves the order alone
	payload, sig := signedEvent(t, testWebhookSecret, EventPaymentCanceled, online.PaymentIntentID, id)
	require.NoError(t, f.svc.HandleWebhook(ctx, payload, sig))
	assert.Equal(t, models.OrderStatusProcessing, f.status(t, id))
}

func TestPaymentService_SwitchingMethodBlockedWhilePaymentCompletes(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	reader, err := f.svc.BeginPayment(ctx, id, nil, true)
	require.NoError(t, err)

	f.gateway.cancelErr = fmt.Errorf("stripe: cancel payment intent: %w", ErrIntentNotCancelable)
	_, err = f.svc.BeginPayment(ctx, id, nil, false)
	assert.True(t, utils.IsKind(err, utils.KindConflict))
	require.Len(t, f.gateway.requests, 1)

	var order models.Order
	require.NoError(t, f.db.First(&order, id).Error)
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	require.NotNil(t, order.PaymentIntentID)
	assert.Equal(t, reader.PaymentIntentID, *order.PaymentIntentID)
}

func TestPaymentService_ConcurrentSuccessDeliveries(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.kioskOrder(t)
	ctx := context.Background()

	session, err := f.svc.BeginPayment(ctx, id, nil, false)
	require.NoError(t, err)
	before := len(f.pub.Events())

	payload, sig := signedEvent(t, testWebhookSecret, EventPaymentSucceeded, session.PaymentIntentID, id)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.HandleWebhook(ctx, payload, sig)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, models.OrderStatusPaid, f.status(t, id))

	events := f.pub.Events()[before:]
	require.Len(t, events, 1)
	assert.Equal(t, hub.EventOrderUpdated, events[0].Event)
	assert.Equal(t, models.OrderStatusPaid, events[0].Payload.(OrderEvent).Status)
}
