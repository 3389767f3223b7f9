package services

import (
	"context"
	"errors"
)

// Payment event types understood by HandleWebhook.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
	EventPaymentCanceled  = "payment_intent.canceled"
)

// Payment method types
const (
	PaymentMethodCard        = "card"
	PaymentMethodCardPresent = "card_present"
)

type PaymentIntentRequest struct {
	OrderID        uint
	OrderType      string
	AmountMinor    int64
	Currency       string
	PaymentMethod  string
	ManualCapture  bool
	IdempotencyKey string
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
}

// PaymentEvent is a verified notification from the payment processor.
type PaymentEvent struct {
	ID              string
	Type            string
	PaymentIntentID string
	Metadata        map[string]string
}

// ErrIntentNotCancelable is returned when the processor refuses to cancel an
// intent because money is already moving, e.g. it succeeded or is mid-capture.
var ErrIntentNotCancelable = errors.New("payment intent can no longer be canceled")

// IntentCanceler releases a payment intent that the order no longer uses.
// Canceling an intent that is already canceled is not an error.
type IntentCanceler interface {
	CancelPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
}

// PaymentGateway is the outbound side of the payment processor.
type PaymentGateway interface {
	IntentCanceler
	CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error)
	CapturePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	CreateConnectionToken(ctx context.Context) (string, error)
}

// WebhookVerifier authenticates and decodes inbound processor events.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, signature string) (*PaymentEvent, error)
}
