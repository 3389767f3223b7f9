package utils

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type JSONResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func RespondJSON(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, JSONResponse{
		Status:  code >= 200 && code < 300,
		Message: message,
		Data:    data,
	})
}

// RespondFailure maps err to a status and a sanitized message. Server-side
// failures are logged with their cause.
func RespondFailure(c *gin.Context, err error) {
	code := StatusCode(err)
	if code >= 500 {
		fields := logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}
		if id, ok := c.Get(RequestIDKey); ok {
			fields["request_id"] = id
		}
		var appErr *AppError
		if errors.As(err, &appErr) && appErr.Err != nil {
			fields["cause"] = appErr.Err.Error()
		}
		ErrorLogger.WithFields(fields).Error(err.Error())
	}
	c.JSON(code, JSONResponse{
		Status:  false,
		Message: PublicMessage(err),
	})
}

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"
