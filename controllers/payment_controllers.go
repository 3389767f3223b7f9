package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/yeremiapane/restaurant-pos/services"
	"github.com/yeremiapane/restaurant-pos/utils"
)

const SignatureHeader = "Stripe-Signature"

type PaymentController struct {
	Payments *services.PaymentService
}

func NewPaymentController(payments *services.PaymentService) *PaymentController {
	return &PaymentController{Payments: payments}
}

type beginPaymentRequest struct {
	OrderID uint             `json:"orderId" binding:"required"`
	Amount  *decimal.Decimal `json:"amount"`
	IsKiosk bool             `json:"isKiosk"`
}

// CreatePayment starts a payment for an order. Kiosk payments go through a
// card reader and are captured separately.
func (pc *PaymentController) CreatePayment(c *gin.Context) {
	var req beginPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondFailure(c, invalidBody(err))
		return
	}

	session, err := pc.Payments.BeginPayment(c.Request.Context(), req.OrderID, req.Amount, req.IsKiosk)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment intent created", session)
}

func (pc *PaymentController) CapturePayment(c *gin.Context) {
	orderID, err := paramID(c, "order_id")
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	intent, err := pc.Payments.CapturePayment(c.Request.Context(), orderID)
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Payment captured", gin.H{
		"orderId":         orderID,
		"paymentIntentId": intent.ID,
		"status":          intent.Status,
	})
}

func (pc *PaymentController) ConnectionToken(c *gin.Context) {
	secret, err := pc.Payments.ConnectionToken(c.Request.Context())
	if err != nil {
		utils.RespondFailure(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Connection token created", gin.H{"secret": secret})
}

// HandleWebhook needs the body exactly as sent, the signature covers it.
func (pc *PaymentController) HandleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		utils.RespondFailure(c, utils.NewValidationError("unreadable request body"))
		return
	}

	if err := pc.Payments.HandleWebhook(c.Request.Context(), payload, c.GetHeader(SignatureHeader)); err != nil {
		utils.RespondFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
