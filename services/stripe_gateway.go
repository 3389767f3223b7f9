package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/yeremiapane/restaurant-pos/utils"
)

const stripeMaxNetworkRetries = 2

// StripeGateway talks to Stripe with its own client instance, so the package
// level stripe.Key is never touched.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
}

func NewStripeGateway(secretKey, webhookSecret string, timeout time.Duration) *StripeGateway {
	httpClient := &http.Client{Timeout: timeout}
	cfg := func() *stripe.BackendConfig {
		return &stripe.BackendConfig{
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(stripeMaxNetworkRetries),
			LeveledLogger:     stripeLogger{},
		}
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg()),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg()),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg()),
	}
	return &StripeGateway{
		api:           client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountMinor),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{req.PaymentMethod}),
	}
	if req.ManualCapture {
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	} else {
		params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic))
	}
	params.Context = ctx
	params.AddMetadata("orderId", strconv.FormatUint(uint64(req.OrderID), 10))
	params.AddMetadata("orderType", req.OrderType)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return fromStripeIntent(pi), nil
}

func (g *StripeGateway) CapturePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + intentID)

	pi, err := g.api.PaymentIntents.Capture(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: capture payment intent %s: %w", intentID, err)
	}
	return fromStripeIntent(pi), nil
}

// CancelPaymentIntent cancels an intent that was never completed. An intent
// Stripe already canceled is returned as is.
func (g *StripeGateway) CancelPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("cancel-" + intentID)

	pi, err := g.api.PaymentIntents.Cancel(intentID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			if stripeErr.PaymentIntent != nil && stripeErr.PaymentIntent.Status == stripe.PaymentIntentStatusCanceled {
				return fromStripeIntent(stripeErr.PaymentIntent), nil
			}
			return nil, fmt.Errorf("stripe: cancel payment intent %s: %w", intentID, ErrIntentNotCancelable)
		}
		return nil, fmt.Errorf("stripe: cancel payment intent %s: %w", intentID, err)
	}
	return fromStripeIntent(pi), nil
}

func (g *StripeGateway) CreateConnectionToken(ctx context.Context) (string, error) {
	params := &stripe.TerminalConnectionTokenParams{}
	params.Context = ctx

	token, err := g.api.TerminalConnectionTokens.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create connection token: %w", err)
	}
	return token.Secret, nil
}

// VerifyWebhook checks the Stripe-Signature header against the raw body.
func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}

	out := &PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(out.Type, "payment_intent.") && event.Data != nil {
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		out.PaymentIntentID = pi.ID
		out.Metadata = pi.Metadata
	}
	return out, nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	return &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
}

// stripeLogger routes stripe-go's own logging through logrus.
type stripeLogger struct{}

func (stripeLogger) Debugf(format string, v ...interface{}) { utils.InfoLogger.Debugf(format, v...) }
func (stripeLogger) Infof(format string, v ...interface{})  { utils.InfoLogger.Debugf(format, v...) }
func (stripeLogger) Warnf(format string, v ...interface{})  { utils.ErrorLogger.Warnf(format, v...) }
func (stripeLogger) Errorf(format string, v ...interface{}) { utils.ErrorLogger.Errorf(format, v...) }
