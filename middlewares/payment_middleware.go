package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/restaurant-pos/utils"
	"golang.org/x/time/rate"
)

// PaymentSecurityHeaders keeps payment responses out of caches.
func PaymentSecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// PaymentRateLimiter allows 10 payment requests per second per IP, bursting to 20.
func PaymentRateLimiter() gin.HandlerFunc {
	return NewRateLimiter(rate.Limit(10), 20).RateLimit("Please wait before making another payment request")
}

// LogPaymentRequest logs payment request details
func LogPaymentRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}
		if id, ok := c.Get(utils.RequestIDKey); ok {
			fields["request_id"] = id
		}
		if orderID := c.Param("order_id"); orderID != "" {
			fields["order_id"] = orderID
		}
		utils.InfoLogger.WithFields(fields).Info("payment request")
	}
}
