// Package middleware provides the gin middleware of the permit-to-work API.
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "hseptw.io/ptw/internal/pkg/errors"
	"hseptw.io/ptw/internal/pkg/logger"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Params      map[string]interface{} `json:"params,omitempty"`
	FieldErrors []apperrors.FieldError `json:"field_errors,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
}

// ErrorHandler captures errors added via c.Error() and writes one
// consistent JSON response. Handlers never write error bodies themselves.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		rid := GetRequestID(c.Request.Context())

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			fields := []zap.Field{
				zap.String("request_id", rid),
				zap.String("method", c.Request.Method),
				zap.String("path", c.FullPath()),
				zap.String("code", appErr.Code),
				zap.Int("status", appErr.HTTPStatus),
				zap.String("message", appErr.Message),
			}
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Error("Request error", append(fields, zap.Error(appErr.Err))...)
			} else {
				logger.Warn("Request error", fields...)
			}
			c.JSON(appErr.HTTPStatus, ErrorResponse{
				Code:        appErr.Code,
				Message:     appErr.Message,
				Params:      appErr.Params,
				FieldErrors: appErr.FieldErrors,
				RequestID:   rid,
			})
			return
		}

		logger.Error("Unhandled request error", zap.String("request_id", rid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:      apperrors.CodeInternal,
			Message:   "An internal error occurred",
			RequestID: rid,
		})
	}
}

// abort writes err through the error handler and stops the chain.
func abort(c *gin.Context, err *apperrors.AppError) {
	_ = c.Error(err)
	c.Abort()
}
